package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sigilrun/sigilgraph/pkg/api"
	"github.com/sigilrun/sigilgraph/pkg/fact"
)

// tokenTTL is how long an issued subscriber token stays valid. Short
// enough that a revoked identity stops being able to open new streams or
// save facts within one TTL window; a live SUB connection is unaffected
// by expiry once the handshake has completed.
const tokenTTL = 15 * time.Minute

type issueTokenRequest struct {
	// Subscriber names the fact identifying the caller, rendered as
	// "Type:Hash" (fact.Reference.String()) — e.g. the reference of a
	// Device or User fact the caller already holds a private key for.
	Subscriber string `json:"subscriber"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleIssueToken exchanges a caller-asserted fact identity for a signed
// bearer token (pkg/wire.TokenIssuer). Apart from /health, this is the
// only unauthenticated endpoint: it is where a client's fact identity first
// becomes a wire-level credential, the same bootstrap step
// core/pkg/identity's login endpoints perform for a session token.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "malformed request body: "+err.Error())
		return
	}
	if _, err := parseReference(req.Subscriber); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}

	signed, err := s.Tokens.Issue(req.Subscriber, tokenTTL)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(issueTokenResponse{
		Token:     signed,
		ExpiresAt: time.Now().Add(tokenTTL),
	})
}

// authenticate verifies r's Authorization: Bearer token and returns the
// fact.Reference it asserts, used by every other endpoint as the "user"
// argument to Authz.IsAuthorized / Distribution.CanDistribute.
func (s *Server) authenticate(r *http.Request) (fact.Reference, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return fact.Reference{}, fmt.Errorf("missing bearer token")
	}
	claims, err := s.Tokens.Verify(strings.TrimPrefix(header, prefix))
	if err != nil {
		return fact.Reference{}, fmt.Errorf("invalid bearer token: %w", err)
	}
	return parseReference(claims.Subscriber)
}

// parseReference parses "Type:Hash" into a fact.Reference, the inverse of
// fact.Reference.String.
func parseReference(s string) (fact.Reference, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return fact.Reference{}, fmt.Errorf("malformed fact reference %q, want \"Type:Hash\"", s)
	}
	return fact.Reference{Type: s[:idx], Hash: s[idx+1:]}, nil
}
