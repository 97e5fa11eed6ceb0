// Package fact defines the content-addressed fact model: immutable records
// identified by (type, hash), linked to their predecessors by named roles.
package fact

import "fmt"

// Reference identifies a fact by its type and content hash. Two references
// are equal iff both fields are equal.
type Reference struct {
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// String renders the reference as "type:hash", used as a map key and in
// log fields.
func (r Reference) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.Hash)
}

// IsZero reports whether r is the empty reference.
func (r Reference) IsZero() bool {
	return r.Type == "" && r.Hash == ""
}

// Predecessors maps a role name to either a single reference or an ordered
// collection of references. A role is a "single" role when the Model
// declares it as such; the Fact itself just stores whatever was given.
type Predecessors map[string][]Reference

// Single returns the lone reference for role, or the zero reference and
// false if the role is absent or holds more than one reference.
func (p Predecessors) Single(role string) (Reference, bool) {
	refs, ok := p[role]
	if !ok || len(refs) != 1 {
		return Reference{}, false
	}
	return refs[0], true
}

// Many returns the (possibly empty) collection of references for role.
func (p Predecessors) Many(role string) []Reference {
	return p[role]
}

// Fact is an immutable, content-addressed record: a type, a hash computed
// over its fields and predecessors (by the envelope layer — this package
// never recomputes it), a field map of scalar values, and a predecessor
// map from role name to reference(s).
type Fact struct {
	Type         string         `json:"type"`
	Hash         string         `json:"hash"`
	Fields       map[string]any `json:"fields"`
	Predecessors Predecessors   `json:"predecessors"`
	Signatures   []Signature    `json:"signatures,omitempty"`
}

// Signature is a detached signature over the fact's hash.
type Signature struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Reference returns the (type, hash) reference identifying f.
func (f *Fact) Reference() Reference {
	if f == nil {
		return Reference{}
	}
	return Reference{Type: f.Type, Hash: f.Hash}
}

// Equal reports whether two facts have the same (type, hash) identity.
// Facts are equal by identity, not by deep field comparison, matching the
// content-addressing invariant: identical (type, hash) implies identical
// content by construction.
func (f *Fact) Equal(other *Fact) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Type == other.Type && f.Hash == other.Hash
}

// Field returns the named field value and whether it was present.
func (f *Fact) Field(name string) (any, bool) {
	if f == nil || f.Fields == nil {
		return nil, false
	}
	v, ok := f.Fields[name]
	return v, ok
}
