package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/wire"
)

func TestParseReference_RoundTripsWithString(t *testing.T) {
	ref := fact.Reference{Type: "User", Hash: "u-alice"}
	parsed, err := parseReference(ref.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != ref {
		t.Errorf("expected %v, got %v", ref, parsed)
	}
}

func TestParseReference_RejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "NoColon", "Trailing:", ":NoType"} {
		if _, err := parseReference(bad); err == nil {
			t.Errorf("expected error parsing %q", bad)
		}
	}
}

func TestHandleIssueToken_ThenAuthenticateRoundTrips(t *testing.T) {
	s := &Server{Tokens: wire.NewTokenIssuer([]byte("test-secret"), "sigilgraphd-test")}

	body := strings.NewReader(`{"subscriber":"User:u-alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/token", body)
	rec := httptest.NewRecorder()
	s.handleIssueToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp issueTokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a non-empty token")
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	authReq.Header.Set("Authorization", "Bearer "+resp.Token)
	user, err := s.authenticate(authReq)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user != (fact.Reference{Type: "User", Hash: "u-alice"}) {
		t.Errorf("expected User:u-alice, got %v", user)
	}
}

func TestAuthenticate_RejectsMissingHeader(t *testing.T) {
	s := &Server{Tokens: wire.NewTokenIssuer([]byte("test-secret"), "sigilgraphd-test")}
	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	if _, err := s.authenticate(req); err == nil {
		t.Fatal("expected an error with no Authorization header")
	}
}

func TestAuthenticate_RejectsTamperedToken(t *testing.T) {
	issuer := wire.NewTokenIssuer([]byte("test-secret"), "sigilgraphd-test")
	other := wire.NewTokenIssuer([]byte("other-secret"), "sigilgraphd-test")
	s := &Server{Tokens: issuer}

	signed, err := other.Issue("User:u-alice", tokenTTL)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	if _, err := s.authenticate(req); err == nil {
		t.Fatal("expected signature verification to fail for a token signed with a different secret")
	}
}
