package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sigilrun/sigilgraph/pkg/canonicalize"
	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
)

// GraphWriter serializes facts as the forward stream of spec.md §6.4: a
// `PK{n}` declaration the first time a public key is used, then one
// record per fact referencing its predecessors by 0-based index into
// everything already written to this stream. Facts must be written in
// an order where every predecessor precedes its successor; duplicate
// (type, hash) facts are silently skipped.
type GraphWriter struct {
	w         io.Writer
	factIndex map[fact.Reference]int
	pkIndex   map[string]int
	nextFact  int
	nextPKey  int
}

// NewGraphWriter returns a GraphWriter over w.
func NewGraphWriter(w io.Writer) *GraphWriter {
	return &GraphWriter{
		w:         w,
		factIndex: make(map[fact.Reference]int),
		pkIndex:   make(map[string]int),
	}
}

// WriteFact appends f to the stream, or does nothing if f's (type, hash)
// has already been written.
func (g *GraphWriter) WriteFact(f *fact.Fact) error {
	ref := f.Reference()
	if _, ok := g.factIndex[ref]; ok {
		return nil
	}

	predIndices := make(map[string]interface{}, len(f.Predecessors))
	for role, refs := range f.Predecessors {
		idxs := make([]int, len(refs))
		for i, r := range refs {
			idx, ok := g.factIndex[r]
			if !ok {
				return sigilerr.UnknownFact(fmt.Sprintf("predecessor %s not yet written to stream", r))
			}
			idxs[i] = idx
		}
		predIndices[role] = encodeIndices(idxs)
	}

	for _, sig := range f.Signatures {
		if _, ok := g.pkIndex[sig.PublicKey]; ok {
			continue
		}
		idx := g.nextPKey
		g.nextPKey++
		g.pkIndex[sig.PublicKey] = idx
		if _, err := fmt.Fprintf(g.w, "PK%d\n", idx); err != nil {
			return err
		}
		if err := g.writeJSONLine(sig.PublicKey); err != nil {
			return err
		}
		if _, err := fmt.Fprint(g.w, "\n"); err != nil {
			return err
		}
	}

	if err := g.writeJSONLine(f.Type); err != nil {
		return err
	}
	if err := g.writeJSONLine(predIndices); err != nil {
		return err
	}
	if err := g.writeJSONLine(f.Fields); err != nil {
		return err
	}
	for _, sig := range f.Signatures {
		if _, err := fmt.Fprintf(g.w, "PK%d\n", g.pkIndex[sig.PublicKey]); err != nil {
			return err
		}
		if err := g.writeJSONLine(sig.Signature); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(g.w, "\n"); err != nil {
		return err
	}

	g.factIndex[ref] = g.nextFact
	g.nextFact++
	return nil
}

func (g *GraphWriter) writeJSONLine(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encoding graph record: %w", err)
	}
	_, err = fmt.Fprintf(g.w, "%s\n", b)
	return err
}

// encodeIndices collapses a single-element index list to a bare int, per
// spec.md §6.4 ("single or array"); multi-predecessor roles stay arrays.
func encodeIndices(idxs []int) interface{} {
	if len(idxs) == 1 {
		return idxs[0]
	}
	return idxs
}

// indexList decodes a predecessor-index entry that is either a bare
// JSON number or an array of numbers.
type indexList []int

func (l *indexList) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*l = []int{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// GraphReader deserializes the stream GraphWriter produces, resolving
// each fact's content-addressed hash from its type, fields, and the
// now-resolved references of its predecessors.
type GraphReader struct {
	r       *bufio.Reader
	facts   []fact.Reference
	pubkeys map[int]string
	schemas *SchemaRegistry
}

// NewGraphReader returns a GraphReader over r.
func NewGraphReader(r io.Reader) *GraphReader {
	return &GraphReader{r: bufio.NewReader(r), pubkeys: make(map[int]string)}
}

// WithSchemas attaches a SchemaRegistry: every fact read afterward has
// its fields validated against its type's registered schema, if any.
func (g *GraphReader) WithSchemas(r *SchemaRegistry) *GraphReader {
	g.schemas = r
	return g
}

// ReadFact reads the next fact record, skipping and internalizing any
// `PK{n}` declarations encountered first. It returns io.EOF once the
// stream is exhausted.
func (g *GraphReader) ReadFact() (*fact.Fact, error) {
	for {
		line, err := g.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			continue
		}
		if n, ok := parsePKKeyword(line); ok {
			if err := g.readPKDeclaration(n); err != nil {
				return nil, err
			}
			continue
		}
		return g.readFactRecord(line)
	}
}

func (g *GraphReader) readPKDeclaration(index int) error {
	keyLine, err := g.readLine()
	if err != nil {
		return fmt.Errorf("wire: reading PK%d key: %w", index, err)
	}
	var pubkey string
	if err := json.Unmarshal([]byte(keyLine), &pubkey); err != nil {
		return fmt.Errorf("wire: decoding PK%d key: %w", index, err)
	}
	blank, err := g.readLine()
	if err != nil {
		return fmt.Errorf("wire: reading PK%d terminator: %w", index, err)
	}
	if blank != "" {
		return fmt.Errorf("wire: PK%d declaration missing blank terminator", index)
	}
	g.pubkeys[index] = pubkey
	return nil
}

func (g *GraphReader) readFactRecord(typeLine string) (*fact.Fact, error) {
	var typeName string
	if err := json.Unmarshal([]byte(typeLine), &typeName); err != nil {
		return nil, fmt.Errorf("wire: decoding fact type: %w", err)
	}

	predLine, err := g.readLine()
	if err != nil {
		return nil, fmt.Errorf("wire: reading predecessor map: %w", err)
	}
	var rawPreds map[string]indexList
	if err := json.Unmarshal([]byte(predLine), &rawPreds); err != nil {
		return nil, fmt.Errorf("wire: decoding predecessor map: %w", err)
	}

	fieldsLine, err := g.readLine()
	if err != nil {
		return nil, fmt.Errorf("wire: reading fields: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(fieldsLine), &fields); err != nil {
		return nil, fmt.Errorf("wire: decoding fields: %w", err)
	}
	if g.schemas != nil {
		if err := g.schemas.Validate(typeName, fields); err != nil {
			return nil, err
		}
	}

	preds := make(fact.Predecessors, len(rawPreds))
	for role, idxs := range rawPreds {
		refs := make([]fact.Reference, len(idxs))
		for i, idx := range idxs {
			if idx < 0 || idx >= len(g.facts) {
				return nil, sigilerr.UnknownFact(fmt.Sprintf("predecessor index %d out of range", idx))
			}
			refs[i] = g.facts[idx]
		}
		preds[role] = refs
	}

	var signatures []fact.Signature
	for {
		line, err := g.readLine()
		if err != nil {
			return nil, fmt.Errorf("wire: reading signature block: %w", err)
		}
		if line == "" {
			break
		}
		n, ok := parsePKKeyword(line)
		if !ok {
			return nil, fmt.Errorf("wire: expected PK reference, got %q", line)
		}
		pubkey, ok := g.pubkeys[n]
		if !ok {
			return nil, fmt.Errorf("wire: signature references undeclared PK%d", n)
		}
		sigLine, err := g.readLine()
		if err != nil {
			return nil, fmt.Errorf("wire: reading signature value: %w", err)
		}
		var sigValue string
		if err := json.Unmarshal([]byte(sigLine), &sigValue); err != nil {
			return nil, fmt.Errorf("wire: decoding signature value: %w", err)
		}
		signatures = append(signatures, fact.Signature{PublicKey: pubkey, Signature: sigValue})
	}

	hash, err := canonicalize.CanonicalHash(struct {
		Type         string            `json:"type"`
		Fields       map[string]any    `json:"fields"`
		Predecessors fact.Predecessors `json:"predecessors"`
	}{Type: typeName, Fields: fields, Predecessors: preds})
	if err != nil {
		return nil, fmt.Errorf("wire: hashing fact: %w", err)
	}

	f := &fact.Fact{
		Type:         typeName,
		Hash:         hash,
		Fields:       fields,
		Predecessors: preds,
		Signatures:   signatures,
	}
	g.facts = append(g.facts, f.Reference())
	return f, nil
}

func (g *GraphReader) readLine() (string, error) {
	line, err := g.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return trimNewline(line), nil
		}
		return "", err
	}
	return trimNewline(line), nil
}

// parsePKKeyword reports whether line is a "PK{n}" token and, if so, n.
func parsePKKeyword(line string) (int, bool) {
	if !strings.HasPrefix(line, "PK") {
		return 0, false
	}
	n, err := strconv.Atoi(line[2:])
	if err != nil {
		return 0, false
	}
	return n, true
}
