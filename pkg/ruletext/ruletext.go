package ruletext

import (
	"github.com/sigilrun/sigilgraph/pkg/authz"
	"github.com/sigilrun/sigilgraph/pkg/distribution"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// ParseAuthorization parses an "authorization { ... }" block (spec.md
// §6.5) into an authz.RuleSet. Entries are "any <Type>", "no <Type>", or
// "<Type> <specification>".
func ParseAuthorization(src string) (*authz.RuleSet, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := newParser(toks)

	if err := p.expectKeyword("authorization"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}

	rules := authz.NewRuleSet()
	for !p.atSymbol("}") {
		if p.atKeyword("any") {
			p.advance()
			typ, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			rules.Add(typ, authz.Rule{Kind: authz.Any})
			continue
		}
		if p.atKeyword("no") {
			p.advance()
			typ, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			rules.Add(typ, authz.Rule{Kind: authz.None})
			continue
		}

		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		s, err := p.parseSpecification()
		if err != nil {
			return nil, err
		}
		rules.Add(typ, authz.Rule{Kind: authz.Specification, Spec: s})
	}
	p.advance() // "}"
	return rules, nil
}

// ParseDistribution parses a "distribution { ... }" block (spec.md §6.5)
// into a distribution.RuleSet. Entries are "share <Type> with any",
// "share <Type> with none", or "share <Type> <given> <matches> with
// <projection>" — "with" plays the role "=>" plays in a bare
// specification, naming the projection that identifies the receiving
// user or device.
func ParseDistribution(src string) (*distribution.RuleSet, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := newParser(toks)

	if err := p.expectKeyword("distribution"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}

	rules := distribution.NewRuleSet()
	for !p.atSymbol("}") {
		if err := p.expectKeyword("share"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}

		if p.atKeyword("with") {
			p.advance()
			switch {
			case p.atKeyword("any"):
				p.advance()
				rules.Add(typ, distribution.Rule{Kind: distribution.Any})
			case p.atKeyword("none"):
				p.advance()
				rules.Add(typ, distribution.Rule{Kind: distribution.None})
			default:
				return nil, p.errorf("expected \"any\" or \"none\" after \"with\", found %q", p.peek().text)
			}
			continue
		}

		givens, err := p.parseGivens()
		if err != nil {
			return nil, err
		}
		matches, err := p.parseBracedMatches()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("with"); err != nil {
			return nil, err
		}
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		rules.Add(typ, distribution.Rule{
			Kind: distribution.Specification,
			Spec: &spec.Specification{Given: givens, Matches: matches, Projection: proj},
		})
	}
	p.advance() // "}"
	return rules, nil
}
