package main

import (
	"testing"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/store"
)

func TestFlattenTuples_CollectsEveryBoundFact(t *testing.T) {
	projectFact := &fact.Fact{Type: "Project", Hash: "p1"}
	memberFact := &fact.Fact{Type: "Project.Member", Hash: "m1"}

	tuples := []store.Tuple{
		{Facts: map[string]*fact.Fact{"project": projectFact, "member": memberFact}},
	}

	facts := flattenTuples(tuples)
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}

	seen := map[fact.Reference]bool{}
	for _, f := range facts {
		seen[f.Reference()] = true
	}
	if !seen[projectFact.Reference()] || !seen[memberFact.Reference()] {
		t.Errorf("expected both project and member facts present, got %v", facts)
	}
}

func TestFlattenTuples_EmptyInputProducesNoFacts(t *testing.T) {
	if facts := flattenTuples(nil); len(facts) != 0 {
		t.Errorf("expected no facts, got %d", len(facts))
	}
}
