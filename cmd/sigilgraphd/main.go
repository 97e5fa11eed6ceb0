// Command sigilgraphd runs the SigilGraph fact-sync server: the HTTP
// adapter wiring Storage, the Authorization/Distribution engines, the
// reactive InverseSpecificationEngine, and the wire-format listeners onto
// one runnable process, following core/cmd/helm/main.go's subcommand
// dispatch shape in the teacher codebase.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

var httpClient = http.DefaultClient

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: it never calls os.Exit itself.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServer(stdout, stderr)
		return 0
	}

	switch args[1] {
	case "server", "serve":
		runServer(stdout, stderr)
		return 0
	case "health":
		return runHealthCmd(stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Usage: sigilgraphd [server|health]\n")
		return 2
	}
}

func runHealthCmd(out, errOut io.Writer) int {
	addr := os.Getenv("SIGILGRAPH_HEALTH_ADDR")
	if addr == "" {
		addr = "http://localhost:8080/health"
	}
	resp, err := httpGet(addr)
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Close()
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}

// httpGet is split out so tests never need a live listener to exercise
// Run's dispatch branches.
var httpGet = func(url string) (io.ReadCloser, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func init() {
	log.SetFlags(0)
}
