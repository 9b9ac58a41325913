package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Is reports whether any error in err's chain matches target. It is the
// standard library's errors.Is, re-exported so callers need only one
// errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Phase indicates where in the boundary the error occurred
type Phase string

const (
	PhaseLifecycle Phase = "lifecycle" // init/finalize state machine
	PhaseBoot      Phase = "boot"      // managed runtime startup
	PhaseBootstrap Phase = "bootstrap" // environment activation
	PhaseResolve   Phase = "resolve"   // symbol table population
	PhaseDispatch  Phase = "dispatch"  // operation shims
	PhaseRegistry  Phase = "registry"  // handle registry
	PhaseManifest  Phase = "manifest"  // project manifest
	PhaseFinalize  Phase = "finalize"  // runtime teardown
)

// Kind categorizes the error
type Kind string

const (
	KindDoubleInit        Kind = "double_init"
	KindNotInitialized    Kind = "not_initialized"
	KindFinalized         Kind = "finalized"
	KindMissingExport     Kind = "missing_export"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindOverflow          Kind = "overflow"
	KindUnknownHandle     Kind = "unknown_handle"
	KindStaleHandle       Kind = "stale_handle"
	KindEngineFault       Kind = "engine_fault"
	KindInvalidData       Kind = "invalid_data"
	KindIO                Kind = "io"
)

// fatalKinds lists boundary-contract violations. Anything the managed side
// signals during a dispatched operation is not in this set.
var fatalKinds = map[Kind]bool{
	KindDoubleInit:        true,
	KindNotInitialized:    true,
	KindFinalized:         true,
	KindMissingExport:     true,
	KindSignatureMismatch: true,
	KindOverflow:          true,
}

// Error is the structured error type used throughout the boundary
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Detail string
	Code   int32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(": symbol ")
		b.WriteString(e.Symbol)
	}

	if e.Detail != "" {
		if e.Symbol != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// fatalPhases lists init steps whose failure leaves a partially
// initialized runtime that cannot be safely unwound.
var fatalPhases = map[Phase]bool{
	PhaseBoot:      true,
	PhaseBootstrap: true,
	PhaseManifest:  true,
}

// Fatal reports whether the error is a boundary-contract violation or an
// init-step failure, from which there is no recovery path.
func (e *Error) Fatal() bool {
	return fatalKinds[e.Kind] || fatalPhases[e.Phase]
}

// IsFatal reports whether err is a fatal boundary-contract violation.
func IsFatal(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Fatal()
	}
	return false
}

// Convenience constructors for common error patterns

// DoubleInit signals a second Init call.
func DoubleInit() *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindDoubleInit,
		Detail: "Init invoked multiple times",
	}
}

// NotInitialized signals an operation attempted before Init.
func NotInitialized(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s requires Init first", what),
	}
}

// Finalized signals an operation attempted after Finalize.
func Finalized(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFinalized,
		Detail: fmt.Sprintf("%s after Finalize", what),
	}
}

// DoubleFinalize signals a second Finalize call.
func DoubleFinalize() *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindFinalized,
		Detail: "Finalize invoked multiple times",
	}
}

// MissingExport names an engine export that could not be resolved.
func MissingExport(symbol string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindMissingExport,
		Symbol: symbol,
		Detail: "engine package is missing or incompatible",
	}
}

// SignatureMismatch reports an export whose core signature does not match
// the declared operation signature.
func SignatureMismatch(symbol string, wantParams, wantResults, gotParams, gotResults int) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindSignatureMismatch,
		Symbol: symbol,
		Detail: fmt.Sprintf("want %d params/%d results, got %d/%d",
			wantParams, wantResults, gotParams, gotResults),
	}
}

// Overflow reports a bounded buffer that a payload did not fit into.
func Overflow(phase Phase, what string, size, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("%s is %d bytes, limit %d", what, size, limit),
	}
}

// UnknownHandle reports dispatch against a handle absent from the registry.
func UnknownHandle(handle int32) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindUnknownHandle,
		Detail: fmt.Sprintf("handle %d is not registered", handle),
	}
}

// StaleHandle reports reuse of a handle after its slot was released.
func StaleHandle(handle int32) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("handle %d was released and its slot reused", handle),
	}
}

// EngineFault forwards a failure the managed side signalled. The code is
// the engine's sentinel, passed through uninterpreted.
func EngineFault(op string, code int32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindEngineFault,
		Detail: op,
		Code:   code,
	}
}

// Dispatch wraps an error raised while delivering a call to the engine.
func Dispatch(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindEngineFault,
		Detail: op,
		Cause:  cause,
	}
}

// Boot wraps a managed runtime startup failure.
func Boot(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseBoot,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Bootstrap wraps an environment activation failure.
func Bootstrap(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Manifest wraps a project manifest failure.
func Manifest(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseManifest,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// IO wraps a filesystem failure.
func IO(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}
