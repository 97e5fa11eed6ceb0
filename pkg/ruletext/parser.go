package ruletext

import (
	"fmt"

	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// parser is a hand-written recursive-descent parser over the token stream
// produced by lexer. Each production corresponds to one grammar rule of
// §6.5's rule text format; there is no grammar-generator dependency
// anywhere in the corpus for a DSL this small, so this follows the same
// shape as the corpus's other hand-rolled small-language front ends (see
// DESIGN.md).
type parser struct {
	toks []token
	pos  int
}

func newParser(toks []token) *parser {
	return &parser{toks: toks}
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return sigilerr.Malformed(fmt.Sprintf("ruletext: line %d: %s", p.peek().line, fmt.Sprintf(format, args...)))
}

func (p *parser) expectSymbol(sym string) error {
	t := p.peek()
	if t.kind != tokSymbol || t.text != sym {
		return p.errorf("expected %q, found %q", sym, t.text)
	}
	p.advance()
	return nil
}

func (p *parser) atSymbol(sym string) bool {
	t := p.peek()
	return t.kind == tokSymbol && t.text == sym
}

func (p *parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == kw
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errorf("expected %q, found %q", kw, p.peek().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.errorf("expected identifier, found %q", t.text)
	}
	p.advance()
	return t.text, nil
}

// parseTypeName reads a dotted type name such as Project.Member: one or
// more identifiers joined by '.' symbols.
func (p *parser) parseTypeName() (string, error) {
	name, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	for p.atSymbol(".") {
		p.advance()
		part, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		name += "." + part
	}
	return name, nil
}

// parseSpecification parses "(" givens ")" "{" matches "}" "=>" projection.
func (p *parser) parseSpecification() (*spec.Specification, error) {
	givens, err := p.parseGivens()
	if err != nil {
		return nil, err
	}
	matches, err := p.parseBracedMatches()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("=>"); err != nil {
		return nil, err
	}
	proj, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	return &spec.Specification{Given: givens, Matches: matches, Projection: proj}, nil
}

func (p *parser) parseGivens() ([]spec.Given, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var givens []spec.Given
	for !p.atSymbol(")") {
		if len(givens) > 0 {
			if err := p.expectSymbol(","); err != nil {
				return nil, err
			}
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		var conds []spec.Condition
		if p.atSymbol("[") {
			conds, err = p.parseBracketedConditions()
			if err != nil {
				return nil, err
			}
		}
		givens = append(givens, spec.Given{Name: name, Type: typ, Conditions: conds})
	}
	p.advance() // ")"
	return givens, nil
}

// parseBracedMatches parses "{" matchList "}".
func (p *parser) parseBracedMatches() ([]spec.Match, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	matches, err := p.parseMatchList("}")
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return matches, nil
}

// parseMatchList parses zero or more matches up to (not consuming) the
// terminator symbol.
func (p *parser) parseMatchList(terminator string) ([]spec.Match, error) {
	var matches []spec.Match
	for !p.atSymbol(terminator) {
		m, err := p.parseMatch()
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (p *parser) parseMatch() (spec.Match, error) {
	name, err := p.expectIdent()
	if err != nil {
		return spec.Match{}, err
	}
	if err := p.expectSymbol(":"); err != nil {
		return spec.Match{}, err
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return spec.Match{}, err
	}
	var conds []spec.Condition
	if p.atSymbol("[") {
		conds, err = p.parseBracketedConditions()
		if err != nil {
			return spec.Match{}, err
		}
	}
	return spec.Match{Unknown: spec.Label{Name: name, Type: typ}, Conditions: conds}, nil
}

func (p *parser) parseBracketedConditions() ([]spec.Condition, error) {
	if err := p.expectSymbol("["); err != nil {
		return nil, err
	}
	var conds []spec.Condition
	for !p.atSymbol("]") {
		if len(conds) > 0 {
			if err := p.expectSymbol(","); err != nil {
				return nil, err
			}
		}
		c, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	p.advance() // "]"
	return conds, nil
}

func (p *parser) parseCondition() (spec.Condition, error) {
	if p.atSymbol("!") || (p.peek().kind == tokIdent && p.peek().text == "E") {
		return p.parseExistential()
	}
	return p.parsePathCondition()
}

func (p *parser) parseExistential() (spec.Condition, error) {
	exists := true
	if p.atSymbol("!") {
		p.advance()
		exists = false
	}
	t := p.peek()
	if t.kind != tokIdent || t.text != "E" {
		return nil, p.errorf("expected existential marker E, found %q", t.text)
	}
	p.advance()
	matches, err := p.parseBracedMatches()
	if err != nil {
		return nil, err
	}
	return spec.ExistentialCondition{Exists: exists, Matches: matches}, nil
}

// parsePathCondition parses <chain> "=" <chain>, where each chain is a
// label optionally followed by one or more "->" role:Type steps.
func (p *parser) parsePathCondition() (spec.Condition, error) {
	// The left chain's leading identifier names the enclosing match's own
	// unknown (walking RolesLeft is always relative to it), so only the
	// role steps are kept; parseChain is reused for its "->role:Type"
	// loop, not for the leading label.
	_, leftRoles, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	rightLabel, rightRoles, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	return spec.PathCondition{
		RolesLeft:  leftRoles,
		LabelRight: rightLabel,
		RolesRight: rightRoles,
	}, nil
}

func (p *parser) parseChain() (label string, roles []spec.Role, err error) {
	label, err = p.expectIdent()
	if err != nil {
		return "", nil, err
	}
	for p.peek().kind == tokArrow {
		p.advance()
		roleName, err := p.expectIdent()
		if err != nil {
			return "", nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return "", nil, err
		}
		roleType, err := p.parseTypeName()
		if err != nil {
			return "", nil, err
		}
		roles = append(roles, spec.Role{Name: roleName, PredecessorType: roleType})
	}
	return label, roles, nil
}

func (p *parser) parseProjection() (spec.Projection, error) {
	if p.atSymbol("{") {
		return p.parseCompositeProjection()
	}
	if p.atSymbol("#") {
		p.advance()
		label, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return spec.HashProjection{Label: label}, nil
	}
	label, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.atSymbol(".") {
		p.advance()
		field, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return spec.FieldProjection{Label: label, Field: field}, nil
	}
	return spec.FactProjection{Label: label}, nil
}

func (p *parser) parseCompositeProjection() (spec.Projection, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var components []spec.NamedComponent
	for !p.atSymbol("}") {
		if len(components) > 0 {
			if err := p.expectSymbol(","); err != nil {
				return nil, err
			}
			if p.atSymbol("}") {
				break
			}
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		comp, err := p.parseComponentProjection()
		if err != nil {
			return nil, err
		}
		components = append(components, spec.NamedComponent{Name: name, Projection: comp})
	}
	p.advance() // "}"
	return spec.CompositeProjection{Components: components}, nil
}

// parseComponentProjection parses either a nested projection
// ("[" matches "]" "=>" projection) or a plain singular projection.
func (p *parser) parseComponentProjection() (spec.Projection, error) {
	if p.atSymbol("[") {
		p.advance()
		matches, err := p.parseMatchList("]")
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		if err := p.expectSymbol("=>"); err != nil {
			return nil, err
		}
		inner, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		return spec.NestedProjection{Matches: matches, Projection: inner}, nil
	}
	return p.parseProjection()
}
