package ruletext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexer_TokenizesPunctuationAndArrows(t *testing.T) {
	toks, err := newLexer(`(a: T) { b: U [b->r:T = a] } => b`).tokenize()
	require.NoError(t, err)

	var kinds []tokenKind
	for _, tk := range toks {
		kinds = append(kinds, tk.kind)
	}
	require.Equal(t, tokEOF, kinds[len(kinds)-1])

	var arrows, fatArrows int
	for _, tk := range toks {
		switch tk.kind {
		case tokArrow:
			arrows++
		case tokFatArrow:
			fatArrows++
		}
	}
	require.Equal(t, 1, arrows)
	require.Equal(t, 1, fatArrows)
}

func TestLexer_SkipsLineComments(t *testing.T) {
	toks, err := newLexer("any Announcement # trailing comment\nno Secret").tokenize()
	require.NoError(t, err)

	var idents []string
	for _, tk := range toks {
		if tk.kind == tokIdent {
			idents = append(idents, tk.text)
		}
	}
	require.Equal(t, []string{"any", "Announcement", "no", "Secret"}, idents)
}

func TestLexer_TracksLineNumbersAcrossNewlines(t *testing.T) {
	toks, err := newLexer("a\nb\nc").tokenize()
	require.NoError(t, err)
	require.Equal(t, 1, toks[0].line)
	require.Equal(t, 2, toks[1].line)
	require.Equal(t, 3, toks[2].line)
}

func TestLexer_ErrorsOnUnterminatedString(t *testing.T) {
	_, err := newLexer(`"unterminated`).tokenize()
	require.Error(t, err)
}

func TestLexer_ErrorsOnUnexpectedCharacter(t *testing.T) {
	_, err := newLexer("a ~ b").tokenize()
	require.Error(t, err)
}
