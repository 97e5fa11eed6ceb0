package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigilrun/sigilgraph/pkg/fact"
)

func TestGraphWriter_ThenReader_RoundTripsPredecessorChain(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGraphWriter(&buf)

	root := &fact.Fact{Type: "Root", Hash: "r1", Fields: map[string]any{"id": "r1"}}
	require.NoError(t, gw.WriteFact(root))

	child := &fact.Fact{
		Type:   "Child",
		Hash:   "c1",
		Fields: map[string]any{"name": "first"},
		Predecessors: fact.Predecessors{
			"parent": {root.Reference()},
		},
	}
	require.NoError(t, gw.WriteFact(child))

	gr := NewGraphReader(&buf)

	got1, err := gr.ReadFact()
	require.NoError(t, err)
	require.Equal(t, "Root", got1.Type)
	require.Empty(t, got1.Predecessors)

	got2, err := gr.ReadFact()
	require.NoError(t, err)
	require.Equal(t, "Child", got2.Type)
	refs, ok := got2.Predecessors.Single("parent")
	require.True(t, ok)
	require.Equal(t, got1.Reference(), refs)

	_, err = gr.ReadFact()
	require.ErrorIs(t, err, io.EOF)
}

func TestGraphWriter_SkipsDuplicateFact(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGraphWriter(&buf)

	f := &fact.Fact{Type: "Root", Hash: "r1"}
	require.NoError(t, gw.WriteFact(f))
	require.NoError(t, gw.WriteFact(f))

	gr := NewGraphReader(&buf)
	_, err := gr.ReadFact()
	require.NoError(t, err)
	_, err = gr.ReadFact()
	require.ErrorIs(t, err, io.EOF)
}

func TestGraphWriter_ErrorsOnUnknownPredecessor(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGraphWriter(&buf)

	orphan := &fact.Fact{
		Type: "Child",
		Hash: "c1",
		Predecessors: fact.Predecessors{
			"parent": {{Type: "Root", Hash: "never-written"}},
		},
	}
	require.Error(t, gw.WriteFact(orphan))
}

func TestGraphWriter_RoundTripsSignaturesAcrossPKDeclarations(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGraphWriter(&buf)

	f1 := &fact.Fact{
		Type:       "Root",
		Hash:       "r1",
		Signatures: []fact.Signature{{PublicKey: "pk-a", Signature: "sig-1"}},
	}
	f2 := &fact.Fact{
		Type:       "Root",
		Hash:       "r2",
		Signatures: []fact.Signature{{PublicKey: "pk-a", Signature: "sig-2"}, {PublicKey: "pk-b", Signature: "sig-3"}},
	}
	require.NoError(t, gw.WriteFact(f1))
	require.NoError(t, gw.WriteFact(f2))

	gr := NewGraphReader(&buf)
	got1, err := gr.ReadFact()
	require.NoError(t, err)
	require.Len(t, got1.Signatures, 1)
	require.Equal(t, "pk-a", got1.Signatures[0].PublicKey)
	require.Equal(t, "sig-1", got1.Signatures[0].Signature)

	got2, err := gr.ReadFact()
	require.NoError(t, err)
	require.Len(t, got2.Signatures, 2)
	require.Equal(t, "pk-a", got2.Signatures[0].PublicKey)
	require.Equal(t, "pk-b", got2.Signatures[1].PublicKey)
}

func TestGraphWriter_MultiplePredecessorsEncodeAsArray(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGraphWriter(&buf)

	p1 := &fact.Fact{Type: "Parent", Hash: "p1"}
	p2 := &fact.Fact{Type: "Parent", Hash: "p2"}
	require.NoError(t, gw.WriteFact(p1))
	require.NoError(t, gw.WriteFact(p2))

	child := &fact.Fact{
		Type: "Child",
		Hash: "c1",
		Predecessors: fact.Predecessors{
			"parents": {p1.Reference(), p2.Reference()},
		},
	}
	require.NoError(t, gw.WriteFact(child))

	gr := NewGraphReader(&buf)
	_, err := gr.ReadFact()
	require.NoError(t, err)
	_, err = gr.ReadFact()
	require.NoError(t, err)
	got, err := gr.ReadFact()
	require.NoError(t, err)
	require.Len(t, got.Predecessors.Many("parents"), 2)
}
