// Package ruletext implements the parser and canonical renderer for the
// authorization/distribution rule text format of spec.md §6.5.
package ruletext

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSymbol // single-rune punctuation: ( ) { } [ ] , : = . ! # (->, =>, <- are multi-rune symbols below)
	tokArrow  // ->
	tokFatArrow
)

type token struct {
	kind tokenKind
	text string
	line int
}

// lexer turns rule text into a flat token stream, tracking line numbers
// for error messages and skipping line comments and whitespace. Byte-at-a-
// time scanning with explicit string/escape state, rather than a
// generated or regex-based tokenizer, follows the hand-rolled scanner
// style used elsewhere in the corpus for small domain-specific languages
// (see DESIGN.md).
type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) tokenize() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipWhitespaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	startLine := l.line
	b := l.src[l.pos]

	switch {
	case b == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '>':
		l.pos += 2
		return token{kind: tokArrow, text: "->", line: startLine}, nil
	case b == '=' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '>':
		l.pos += 2
		return token{kind: tokFatArrow, text: "=>", line: startLine}, nil
	case strings.ContainsRune("(){}[],:=.!#", rune(b)):
		l.pos++
		return token{kind: tokSymbol, text: string(b), line: startLine}, nil
	case b == '"':
		return l.scanString()
	case isIdentStart(b):
		return l.scanIdent(), nil
	case isDigit(b):
		return l.scanNumber(), nil
	default:
		return token{}, fmt.Errorf("ruletext: line %d: unexpected character %q", l.line, b)
	}
}

func (l *lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.src) {
		b := l.src[l.pos]
		switch {
		case b == '\n':
			l.line++
			l.pos++
		case b == ' ' || b == '\t' || b == '\r':
			l.pos++
		case b == '#' && (l.pos+1 >= len(l.src) || !isIdentStart(l.src[l.pos+1])):
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) scanIdent() token {
	start := l.pos
	startLine := l.line
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: l.src[start:l.pos], line: startLine}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	startLine := l.line
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], line: startLine}
}

func (l *lexer) scanString() (token, error) {
	startLine := l.line
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		b := l.src[l.pos]
		if b == '\\' && l.pos+1 < len(l.src) {
			sb.WriteByte(l.src[l.pos+1])
			l.pos += 2
			continue
		}
		if b == '"' {
			l.pos++
			return token{kind: tokString, text: sb.String(), line: startLine}, nil
		}
		if b == '\n' {
			l.line++
		}
		sb.WriteByte(b)
		l.pos++
	}
	return token{}, fmt.Errorf("ruletext: line %d: unterminated string literal", startLine)
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || isDigit(b)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
