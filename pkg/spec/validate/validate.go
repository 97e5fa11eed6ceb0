// Package validate implements the Specification Validator (spec.md §4.1):
// static invariant checks plus connectivity analysis, before any
// Specification is executed by the Runner or Planner.
//
// The error shape follows core/pkg/envelope/validator.go's
// ValidationResult{Valid, Errors} convention, adapted to specification
// labels instead of envelope fields.
package validate

import (
	"fmt"
	"log/slog"

	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
	"github.com/sigilrun/sigilgraph/pkg/spec"
)

// ConnectivityMode controls how the connectivity check responds to a
// disconnected Specification.
type ConnectivityMode int

const (
	// ConnectivityOff skips the connectivity check entirely.
	ConnectivityOff ConnectivityMode = iota
	// ConnectivityWarn logs disconnected specifications but accepts them.
	ConnectivityWarn
	// ConnectivityError rejects disconnected specifications.
	ConnectivityError
)

// Result carries every violation found; Valid is true iff Errors is empty.
type Result struct {
	Valid  bool
	Errors []Violation
}

// Violation names one field/label and the reason it failed.
type Violation struct {
	Label   string
	Code    string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Label, v.Message, v.Code)
}

// Validator runs the invariant and connectivity checks over a
// Specification.
type Validator struct {
	Mode   ConnectivityMode
	Logger *slog.Logger
}

// New returns a Validator in error mode, the safe default.
func New() *Validator {
	return &Validator{Mode: ConnectivityError, Logger: slog.Default()}
}

// Validate runs every check against s and returns the accumulated Result.
// It never panics; malformed shapes are reported as Violations, not Go
// errors, except where spec.md marks a check as fatal (see ValidateErr).
func (v *Validator) Validate(s *spec.Specification) *Result {
	r := &Result{Valid: true}
	v.checkInvariants(s, r)
	if v.Mode != ConnectivityOff {
		v.checkConnectivity(s, r)
	}
	return r
}

// ValidateErr is a convenience wrapper returning a sigilerr-classified
// error when Validate finds any violation, or nil when the specification
// is valid. Callers that want the full Result should call Validate
// directly.
func (v *Validator) ValidateErr(s *spec.Specification) error {
	r := v.Validate(s)
	if r.Valid {
		return nil
	}
	msg := ""
	for i, e := range r.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += e.String()
	}
	for _, e := range r.Errors {
		if e.Code == "DISCONNECTED" {
			return sigilerr.Disconnected(msg)
		}
	}
	return sigilerr.Malformed(msg)
}

func (v *Validator) addError(r *Result, label, code, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, Violation{Label: label, Code: code, Message: message})
}

// checkInvariants enforces spec.md §4.1's invariant check: every non-first
// match has at least one condition, whose first condition must be a Path,
// whose LabelRight must already be in scope.
func (v *Validator) checkInvariants(s *spec.Specification, r *Result) {
	scope := make(map[string]bool, len(s.Given))
	for _, g := range s.Given {
		scope[g.Name] = true
		v.checkGivenConditions(g, scope, r)
	}
	v.checkMatchList(s.Matches, scope, r)
}

// checkGivenConditions walks a Given's own existential conditions
// (pkg/ruletext/parser.go's bracketed "name: Type [!E {...}]" syntax) the
// same way checkMatchList walks a match's nested existentials: the inner
// matches see this given's own name plus everything already in scope.
func (v *Validator) checkGivenConditions(g spec.Given, scope map[string]bool, r *Result) {
	for _, c := range g.Conditions {
		if ex, ok := c.(spec.ExistentialCondition); ok {
			v.checkMatchList(ex.Matches, scope, r)
		}
	}
}

func (v *Validator) checkMatchList(matches []spec.Match, scope map[string]bool, r *Result) {
	for i, m := range matches {
		if i > 0 {
			if len(m.Conditions) == 0 {
				v.addError(r, m.Unknown.Name, "MISSING_CONDITIONS",
					"non-first match must have at least one condition")
			} else if path, ok := m.Conditions[0].(spec.PathCondition); !ok {
				v.addError(r, m.Unknown.Name, "FIRST_CONDITION_NOT_PATH",
					"a match's first condition must be a Path condition")
				_ = path
			} else if !scope[path.LabelRight] {
				v.addError(r, m.Unknown.Name, "LABEL_OUT_OF_SCOPE",
					fmt.Sprintf("path condition references %q which is not yet in scope", path.LabelRight))
			}
		} else if len(m.Conditions) > 0 {
			if path, ok := m.Conditions[0].(spec.PathCondition); !ok {
				v.addError(r, m.Unknown.Name, "FIRST_CONDITION_NOT_PATH",
					"a match's first condition must be a Path condition")
			} else if !scope[path.LabelRight] {
				v.addError(r, m.Unknown.Name, "LABEL_OUT_OF_SCOPE",
					fmt.Sprintf("path condition references %q which is not yet in scope", path.LabelRight))
			}
		}

		// Nested existential matches see this match's own unknown plus the
		// enclosing scope.
		for _, c := range m.Conditions {
			if ex, ok := c.(spec.ExistentialCondition); ok {
				nested := cloneScope(scope)
				nested[m.Unknown.Name] = true
				v.checkMatchList(ex.Matches, nested, r)
			}
		}

		scope[m.Unknown.Name] = true
	}
}

func cloneScope(scope map[string]bool) map[string]bool {
	out := make(map[string]bool, len(scope)+1)
	for k := range scope {
		out[k] = true
	}
	return out
}

// checkConnectivity builds the undirected label graph of spec.md §4.1 and
// verifies every label reaches the projection's referenced labels.
func (v *Validator) checkConnectivity(s *spec.Specification, r *Result) {
	if s.IsIdentity() {
		return
	}

	uf := newUnionFind()
	for _, l := range spec.AllLabels(s) {
		uf.add(l.Name)
	}

	addGivenEdges(s.Given, uf)
	addPathEdges(s.Matches, uf)
	addProjectionEdges(s.Matches, s.Projection, uf)

	groups := uf.groups()
	if len(groups) <= 1 {
		return
	}

	violation := Violation{
		Code:    "DISCONNECTED",
		Message: fmt.Sprintf("specification label graph has %d disjoint components: %v", len(groups), groups),
	}

	switch v.Mode {
	case ConnectivityWarn:
		if v.Logger != nil {
			v.Logger.Warn("disconnected specification", "components", groups)
		}
	case ConnectivityError:
		r.Valid = false
		r.Errors = append(r.Errors, violation)
	}
}

// addGivenEdges connects each given to the unknowns of its own existential
// conditions, the same way addPathEdges connects a match to its nested
// existential unknowns.
func addGivenEdges(givens []spec.Given, uf *unionFind) {
	for _, g := range givens {
		for _, c := range g.Conditions {
			if ex, ok := c.(spec.ExistentialCondition); ok {
				for _, im := range ex.Matches {
					uf.union(g.Name, im.Unknown.Name)
				}
				addPathEdges(ex.Matches, uf)
			}
		}
	}
}

func addPathEdges(matches []spec.Match, uf *unionFind) {
	for _, m := range matches {
		for _, c := range m.Conditions {
			switch cc := c.(type) {
			case spec.PathCondition:
				uf.union(m.Unknown.Name, cc.LabelRight)
			case spec.ExistentialCondition:
				for _, im := range cc.Matches {
					uf.union(m.Unknown.Name, im.Unknown.Name)
				}
				addPathEdges(cc.Matches, uf)
			}
		}
	}
}

func addProjectionEdges(matches []spec.Match, p spec.Projection, uf *unionFind) {
	refs := spec.ReferencedLabels(p)
	for i := 1; i < len(refs); i++ {
		uf.union(refs[0], refs[i])
	}
	if nested, ok := p.(spec.NestedProjection); ok {
		for _, m := range nested.Matches {
			for _, c := range m.Conditions {
				if pc, ok := c.(spec.PathCondition); ok {
					uf.union(m.Unknown.Name, pc.LabelRight)
				}
			}
		}
		addProjectionEdges(nested.Matches, nested.Projection, uf)
	}
	if comp, ok := p.(spec.CompositeProjection); ok {
		for _, c := range comp.Components {
			addProjectionEdges(matches, c.Projection, uf)
		}
	}
}

// unionFind is a minimal disjoint-set structure over label names.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(label string) {
	if _, ok := u.parent[label]; !ok {
		u.parent[label] = label
	}
}

func (u *unionFind) find(label string) string {
	u.add(label)
	for u.parent[label] != label {
		u.parent[label] = u.parent[u.parent[label]]
		label = u.parent[label]
	}
	return label
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// groups returns the members of each disjoint component, keyed by root.
func (u *unionFind) groups() map[string][]string {
	out := make(map[string][]string)
	for label := range u.parent {
		root := u.find(label)
		out[root] = append(out[root], label)
	}
	return out
}
