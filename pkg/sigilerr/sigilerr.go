// Package sigilerr defines the error taxonomy shared across the
// specification subsystem, matching spec.md §7. Each kind is a sentinel
// error that call sites wrap with context via fmt.Errorf("...: %w", Kind)
// so errors.Is/errors.As classification survives the wrap, the same
// pattern core/pkg/store/ledger uses for ErrNotFound.
package sigilerr

import "errors"

var (
	// ErrMalformedSpecification is a static shape error raised by the
	// Validator, Runner, or Planner. Fatal at the point of call.
	ErrMalformedSpecification = errors.New("malformed specification")

	// ErrDisconnectedSpecification is raised by the Validator in "error"
	// connectivity mode.
	ErrDisconnectedSpecification = errors.New("disconnected specification")

	// ErrUnknownFact means a FactReference is not present in the source.
	ErrUnknownFact = errors.New("unknown fact")

	// ErrUnknownRole means the Model does not define a referenced role.
	// During query planning this makes the query unsatisfiable (handled by
	// callers, not by raising this error); during authorization-rule
	// construction it is fatal.
	ErrUnknownRole = errors.New("unknown role")

	// ErrUnknownType means the Model does not define a referenced type.
	ErrUnknownType = errors.New("unknown type")

	// ErrAuthorizationDenied means no authorization rule matched the
	// submitter for a fact being saved.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrDistributionDenied means a feed subscription was not permitted.
	ErrDistributionDenied = errors.New("distribution denied")

	// ErrTransport is a generic external transport failure. The core
	// never retries; retry policy lives in the adapter.
	ErrTransport = errors.New("transport error")

	// ErrTimeout is a generic external timeout. Same retry policy note as
	// ErrTransport.
	ErrTimeout = errors.New("timeout")
)

// Malformed constructs a new error carrying msg, classified as an
// ErrMalformedSpecification.
func Malformed(msg string) error {
	return &kindError{kind: ErrMalformedSpecification, msg: msg}
}

// Disconnected constructs an ErrDisconnectedSpecification carrying msg,
// typically naming the disjoint label component groups.
func Disconnected(msg string) error {
	return &kindError{kind: ErrDisconnectedSpecification, msg: msg}
}

// UnknownFact constructs an ErrUnknownFact carrying msg.
func UnknownFact(msg string) error {
	return &kindError{kind: ErrUnknownFact, msg: msg}
}

// UnknownRole constructs an ErrUnknownRole carrying msg.
func UnknownRole(msg string) error {
	return &kindError{kind: ErrUnknownRole, msg: msg}
}

// UnknownType constructs an ErrUnknownType carrying msg.
func UnknownType(msg string) error {
	return &kindError{kind: ErrUnknownType, msg: msg}
}

// AuthorizationDenied constructs an ErrAuthorizationDenied carrying msg.
func AuthorizationDenied(msg string) error {
	return &kindError{kind: ErrAuthorizationDenied, msg: msg}
}

// DistributionDenied constructs an ErrDistributionDenied carrying msg.
func DistributionDenied(msg string) error {
	return &kindError{kind: ErrDistributionDenied, msg: msg}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	if e.msg == "" {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}
