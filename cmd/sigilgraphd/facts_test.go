package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sigilrun/sigilgraph/pkg/authz"
	"github.com/sigilrun/sigilgraph/pkg/distribution"
	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/reactive"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/store/memstore"
	"github.com/sigilrun/sigilgraph/pkg/wire"
)

// announcementRuleSpec authorizes any User bound as an Announcement's
// "author" predecessor to save it.
func announcementRuleSpec() *spec.Specification {
	return &spec.Specification{
		Given: []spec.Given{{Name: "announcement", Type: "Announcement"}},
		Matches: []spec.Match{
			{
				Unknown: spec.Label{Name: "user", Type: "User"},
				Conditions: []spec.Condition{spec.PathCondition{
					RolesRight: []spec.Role{{Name: "author", PredecessorType: "User"}},
					LabelRight: "announcement",
				}},
			},
		},
		Projection: spec.FactProjection{Label: "user"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	storage := memstore.New()
	rules := authz.NewRuleSet()
	rules.Add("User", authz.Rule{Kind: authz.Any})
	rules.Add("Announcement", authz.Rule{Kind: authz.Specification, Spec: announcementRuleSpec()})

	return &Server{
		Storage:      storage,
		Authz:        authz.New(rules, storage),
		Distribution: distribution.New(distribution.NewRuleSet(), storage),
		Reactive:     reactive.NewEngine(),
		Tokens:       wire.NewTokenIssuer([]byte("test-secret"), "sigilgraphd-test"),
	}
}

func bearerFor(t *testing.T, s *Server, subject string) string {
	t.Helper()
	token, err := s.Tokens.Issue(subject, tokenTTL)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return token
}

func writeGraphBody(t *testing.T, facts ...*fact.Fact) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := wire.NewGraphWriter(&buf)
	for _, f := range facts {
		if err := gw.WriteFact(f); err != nil {
			t.Fatalf("writing fact %v: %v", f.Reference(), err)
		}
	}
	return buf.Bytes()
}

// realUserReference writes a lone User fact through the wire pipeline and
// reads it back, returning the content-addressed Reference the server
// will actually see — the wire format recomputes each fact's hash from
// its canonical (type, fields, predecessors) on read, so a literal Hash
// set on a Go-side fixture never survives the round trip.
func realUserReference(t *testing.T, publicKey string) fact.Reference {
	t.Helper()
	body := writeGraphBody(t, &fact.Fact{Type: "User", Fields: map[string]any{"publicKey": publicKey}})
	facts, err := readFacts(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("reading back fixture: %v", err)
	}
	return facts[0].Reference()
}

func TestHandleSaveFacts_AuthorizedSaveSucceeds(t *testing.T) {
	s := newTestServer(t)
	alice := realUserReference(t, "alice-pk")

	body := writeGraphBody(t,
		&fact.Fact{Type: "User", Fields: map[string]any{"publicKey": "alice-pk"}},
		&fact.Fact{Type: "Announcement", Hash: "ann-1", Predecessors: fact.Predecessors{"author": {alice}}},
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/facts", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerFor(t, s, alice.String()))
	rec := httptest.NewRecorder()

	s.handleSaveFacts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSaveFacts_UnauthorizedSaveRejected(t *testing.T) {
	s := newTestServer(t)
	alice := realUserReference(t, "alice-pk")
	bob := fact.Reference{Type: "User", Hash: "u-bob"}

	// Announcement names alice as its author, but bob is the caller.
	body := writeGraphBody(t,
		&fact.Fact{Type: "User", Fields: map[string]any{"publicKey": "alice-pk"}},
		&fact.Fact{Type: "Announcement", Hash: "ann-2", Predecessors: fact.Predecessors{"author": {alice}}},
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/facts", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerFor(t, s, bob.String()))
	rec := httptest.NewRecorder()

	s.handleSaveFacts(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSaveFacts_RequiresBearerToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/facts", bytes.NewReader(nil))
	rec := httptest.NewRecorder()

	s.handleSaveFacts(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSaveFacts_RejectsWrongMethod(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/facts", nil)
	rec := httptest.NewRecorder()

	s.handleSaveFacts(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d: %s", rec.Code, rec.Body.String())
	}
}
