package ruletext

import (
	"fmt"
	"strings"

	"github.com/sigilrun/sigilgraph/pkg/authz"
	"github.com/sigilrun/sigilgraph/pkg/distribution"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// RenderAuthorization returns the canonical "authorization { ... }" text
// for rules, one entry per (factType, Rule) pair. Entry order is the
// iteration order of factTypes, which callers should supply sorted for a
// deterministic rendering.
func RenderAuthorization(rules *authz.RuleSet, factTypes []string) string {
	var sb strings.Builder
	sb.WriteString("authorization {\n")
	for _, typ := range factTypes {
		for _, r := range rules.Rules(typ) {
			sb.WriteString("    ")
			switch r.Kind {
			case authz.Any:
				fmt.Fprintf(&sb, "any %s\n", typ)
			case authz.None:
				fmt.Fprintf(&sb, "no %s\n", typ)
			case authz.Specification:
				fmt.Fprintf(&sb, "%s %s\n", typ, indentBlock(RenderSpecification(r.Spec), 1))
			}
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// RenderDistribution returns the canonical "distribution { ... }" text for
// rules, one entry per (feedType, Rule) pair.
func RenderDistribution(rules *distribution.RuleSet, feedTypes []string) string {
	var sb strings.Builder
	sb.WriteString("distribution {\n")
	for _, typ := range feedTypes {
		for _, r := range rules.Rules(typ) {
			sb.WriteString("    share ")
			switch r.Kind {
			case distribution.Any:
				fmt.Fprintf(&sb, "%s with any\n", typ)
			case distribution.None:
				fmt.Fprintf(&sb, "%s with none\n", typ)
			case distribution.Specification:
				var body strings.Builder
				renderGivens(&body, r.Spec.Given)
				body.WriteString(" {")
				if len(r.Spec.Matches) > 0 {
					body.WriteString("\n")
					renderMatches(&body, r.Spec.Matches, 1)
				}
				body.WriteString("} with ")
				renderProjection(&body, r.Spec.Projection, 1)
				fmt.Fprintf(&sb, "%s %s\n", typ, indentBlock(body.String(), 1))
			}
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// indentBlock indents every line of block after the first by depth levels,
// so a multi-line specification nests visually under its "authorization"/
// "distribution" entry.
func indentBlock(block string, depth int) string {
	lines := strings.Split(block, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] == "" {
			continue
		}
		lines[i] = strings.Repeat("    ", depth) + lines[i]
	}
	return strings.Join(lines, "\n")
}

// RenderSpecification returns the canonical whitespace-indented textual
// form of s described by spec.md §6.5:
// "(p1: T1, …) { u1: T1 [ u1->role:T = p1 !E { … } ] } => <projection>".
// Parsing RenderSpecification's own output back with ParseSpecification
// must yield a structurally equal Specification (the validator idempotence
// property, spec.md §8).
func RenderSpecification(s *spec.Specification) string {
	var sb strings.Builder
	renderGivens(&sb, s.Given)
	sb.WriteString(" {")
	if len(s.Matches) > 0 {
		sb.WriteString("\n")
		renderMatches(&sb, s.Matches, 1)
	}
	sb.WriteString("} => ")
	renderProjection(&sb, s.Projection, 1)
	return sb.String()
}

// ParseSpecification parses the canonical form produced by
// RenderSpecification.
func ParseSpecification(src string) (*spec.Specification, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	return newParser(toks).parseSpecification()
}

func renderGivens(sb *strings.Builder, givens []spec.Given) {
	sb.WriteString("(")
	for i, g := range givens {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s: %s", g.Name, g.Type)
		if len(g.Conditions) > 0 {
			sb.WriteString(" [")
			renderConditions(sb, g.Name, g.Conditions)
			sb.WriteString("]")
		}
	}
	sb.WriteString(")")
}

func indent(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("    ", depth))
}

func renderMatches(sb *strings.Builder, matches []spec.Match, depth int) {
	for _, m := range matches {
		indent(sb, depth)
		fmt.Fprintf(sb, "%s: %s", m.Unknown.Name, m.Unknown.Type)
		if len(m.Conditions) > 0 {
			sb.WriteString(" [")
			renderConditions(sb, m.Unknown.Name, m.Conditions)
			sb.WriteString("]")
		}
		sb.WriteString("\n")
	}
}

func renderConditions(sb *strings.Builder, ownerLabel string, conds []spec.Condition) {
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch cc := c.(type) {
		case spec.PathCondition:
			sb.WriteString(ownerLabel)
			renderChain(sb, cc.RolesLeft)
			sb.WriteString(" = ")
			sb.WriteString(cc.LabelRight)
			renderChain(sb, cc.RolesRight)
		case spec.ExistentialCondition:
			if !cc.Exists {
				sb.WriteString("!")
			}
			sb.WriteString("E {")
			if len(cc.Matches) > 0 {
				sb.WriteString("\n")
				renderMatches(sb, cc.Matches, 1)
			}
			sb.WriteString("}")
		default:
			fmt.Fprintf(sb, "<unknown condition %T>", c)
		}
	}
}

// renderChain writes the "->role:Type" suffix for a role walk; it never
// writes the leading label, which callers supply separately (the
// PathCondition struct does not itself store the left-hand label, since it
// is always the enclosing match's own unknown).
func renderChain(sb *strings.Builder, roles []spec.Role) {
	for _, r := range roles {
		fmt.Fprintf(sb, "->%s:%s", r.Name, r.PredecessorType)
	}
}

func renderProjection(sb *strings.Builder, p spec.Projection, depth int) {
	switch pp := p.(type) {
	case spec.CompositeProjection:
		sb.WriteString("{")
		if len(pp.Components) > 0 {
			sb.WriteString("\n")
			for _, c := range pp.Components {
				indent(sb, depth)
				fmt.Fprintf(sb, "%s: ", c.Name)
				renderComponent(sb, c.Projection, depth)
				sb.WriteString(",\n")
			}
			indent(sb, depth-1)
		}
		sb.WriteString("}")
	case spec.FactProjection:
		sb.WriteString(pp.Label)
	case spec.FieldProjection:
		fmt.Fprintf(sb, "%s.%s", pp.Label, pp.Field)
	case spec.HashProjection:
		fmt.Fprintf(sb, "#%s", pp.Label)
	default:
		fmt.Fprintf(sb, "<unknown projection %T>", p)
	}
}

func renderComponent(sb *strings.Builder, p spec.Projection, depth int) {
	if np, ok := p.(spec.NestedProjection); ok {
		sb.WriteString("[")
		if len(np.Matches) > 0 {
			sb.WriteString("\n")
			renderMatches(sb, np.Matches, depth+1)
			indent(sb, depth)
		}
		sb.WriteString("] => ")
		renderProjection(sb, np.Projection, depth+1)
		return
	}
	renderProjection(sb, p, depth+1)
}
