// Package model implements the Model Registry: the per-type map of role
// name to declared predecessor type that the rest of the specification
// subsystem consults to validate and plan role walks.
package model

import "fmt"

// Model is an immutable fact-type → role-name → predecessor-type map. The
// zero value is an empty model (every role lookup fails).
type Model struct {
	roles map[string]map[string]string // type -> role -> predecessorType
}

// New returns an empty Model. Use Builder to populate one.
func New() *Model {
	return &Model{roles: make(map[string]map[string]string)}
}

// Builder accumulates role declarations before producing an immutable
// Model via Build. This mirrors the teacher codebase's registry builders:
// mutation is confined to construction, the produced value is read-only.
type Builder struct {
	roles map[string]map[string]string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{roles: make(map[string]map[string]string)}
}

// Role declares that facts of successorType carry a predecessor role named
// roleName whose fact type is predecessorType. Declaring the same role
// twice with different types overwrites the earlier declaration.
func (b *Builder) Role(successorType, roleName, predecessorType string) *Builder {
	m, ok := b.roles[successorType]
	if !ok {
		m = make(map[string]string)
		b.roles[successorType] = m
	}
	m[roleName] = predecessorType
	return b
}

// Build finalizes the builder into an immutable Model. The builder remains
// usable afterward; Build takes a defensive copy.
func (b *Builder) Build() *Model {
	out := make(map[string]map[string]string, len(b.roles))
	for t, roles := range b.roles {
		rc := make(map[string]string, len(roles))
		for r, pt := range roles {
			rc[r] = pt
		}
		out[t] = rc
	}
	return &Model{roles: out}
}

// RoleType returns the declared predecessor type for roleName on
// successorType, and whether the role is defined at all.
func (m *Model) RoleType(successorType, roleName string) (string, bool) {
	if m == nil {
		return "", false
	}
	roles, ok := m.roles[successorType]
	if !ok {
		return "", false
	}
	t, ok := roles[roleName]
	return t, ok
}

// HasType reports whether successorType has any declared roles at all.
// A type with zero declared roles is still a valid type (it simply has no
// predecessors) — this only distinguishes "never mentioned" from
// "mentioned with roles".
func (m *Model) HasType(successorType string) bool {
	if m == nil {
		return false
	}
	_, ok := m.roles[successorType]
	return ok
}

// Roles returns the role names declared for successorType, in no
// particular order.
func (m *Model) Roles(successorType string) []string {
	if m == nil {
		return nil
	}
	roles := m.roles[successorType]
	out := make([]string, 0, len(roles))
	for r := range roles {
		out = append(out, r)
	}
	return out
}

// ErrUnknownRole is returned when a Specification path references a role
// the Model never declared for the given type.
type ErrUnknownRole struct {
	Type string
	Role string
}

func (e *ErrUnknownRole) Error() string {
	return fmt.Sprintf("model: type %q has no role %q", e.Type, e.Role)
}

// MustRoleType returns the declared predecessor type, or an *ErrUnknownRole
// error. Used by callers (e.g. authorization rule construction, per
// spec.md §7) for which an unknown role is fatal rather than merely making
// a query unsatisfiable.
func (m *Model) MustRoleType(successorType, roleName string) (string, error) {
	t, ok := m.RoleType(successorType, roleName)
	if !ok {
		return "", &ErrUnknownRole{Type: successorType, Role: roleName}
	}
	return t, nil
}
