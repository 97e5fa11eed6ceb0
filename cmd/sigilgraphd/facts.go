package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sigilrun/sigilgraph/pkg/api"
	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/wire"
)

// saveAck is the JSON body handleSaveFacts returns: the references of
// every fact that was genuinely new (already-known facts are accepted
// but not re-announced).
type saveAck struct {
	Saved []fact.Reference `json:"saved"`
}

// handleSaveFacts accepts the forward graph-serialization stream (spec.md
// §6.4) as a POST body: every fact it contains is parsed, signature-
// checked, authorized against the submitter's bearer identity, and saved.
// A fact any declared rule doesn't authorize aborts the whole request —
// saving is all-or-nothing per request, so a client never has to reconcile
// a partial write.
func (s *Server) handleSaveFacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}

	user, err := s.authenticate(r)
	if err != nil {
		api.WriteUnauthorized(w, err.Error())
		return
	}

	facts, err := readFacts(r.Body)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if len(facts) == 0 {
		api.WriteBadRequest(w, "request body contained no facts")
		return
	}

	graph := fact.NewGraph(facts)
	for _, f := range facts {
		if err := wire.VerifySignatures(f); err != nil {
			api.WriteBadRequest(w, err.Error())
			return
		}
		ok, err := s.Authz.IsAuthorized(r.Context(), f.Reference(), graph, user)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		if !ok {
			writeAPIError(w, r, sigilerr.AuthorizationDenied("no rule authorizes "+user.String()+" to save "+f.Reference().String()))
			return
		}
	}

	saved, err := s.Storage.Save(r.Context(), facts)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	for _, f := range saved {
		if err := s.Reactive.NotifySaved(r.Context(), s.Storage, f); err != nil {
			s.Logger.Error("reactive notification failed", "fact", f.Reference(), "error", err)
		}
	}

	refs := make([]fact.Reference, len(saved))
	for i, f := range saved {
		refs[i] = f.Reference()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(saveAck{Saved: refs})
}

// readFacts drains every fact record off r using the forward graph
// stream's wire format.
func readFacts(r io.Reader) ([]*fact.Fact, error) {
	gr := wire.NewGraphReader(r)
	var facts []*fact.Fact
	for {
		f, err := gr.ReadFact()
		if err == io.EOF {
			return facts, nil
		}
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
}
