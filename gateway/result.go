package gateway

import (
	stderrors "errors"

	"github.com/aperturerobotics/go-typst-wasi/errors"
)

// FailurePrefix starts every diagnostic sent through the single-string channel.
const FailurePrefix = "Compilation Failed: "

// Status classifies the outcome of an invocation.
type Status int

const (
	StatusOK Status = iota
	// StatusDecode covers malformed base64, bundle entries and invalid UTF-8.
	StatusDecode
	// StatusResolve covers virtual paths missing from both bundles.
	StatusResolve
	// StatusCompile covers diagnostics raised by the compiler.
	StatusCompile
	// StatusEncode covers unknown formats and encoder failures.
	StatusEncode
	// StatusContract covers caller contract violations such as null arguments.
	StatusContract
	// StatusInternal covers engine loading and host plumbing failures.
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDecode:
		return "decode"
	case StatusResolve:
		return "resolve"
	case StatusCompile:
		return "compile"
	case StatusEncode:
		return "encode"
	case StatusContract:
		return "contract"
	default:
		return "internal"
	}
}

// Result is the outcome of an invocation: a payload on success, an error
// otherwise.
type Result struct {
	Payload string
	Err     error
}

// Success wraps an encoded payload.
func Success(payload string) Result {
	return Result{Payload: payload}
}

// Failure wraps an error.
func Failure(err error) Result {
	return Result{Err: err}
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// resolveMiss matches a virtual path missing from both bundles.
var resolveMiss = &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindNotFound}

// Status derives the status code from the phase of the error. A missing
// virtual path anywhere in the chain reports StatusResolve, since the
// compiler surfaces it wrapped in its own diagnostic.
func (r Result) Status() Status {
	if r.Err == nil {
		return StatusOK
	}
	if stderrors.Is(r.Err, resolveMiss) {
		return StatusResolve
	}
	phase, ok := errors.PhaseOf(r.Err)
	if !ok {
		return StatusCompile
	}
	switch phase {
	case errors.PhaseDecode:
		return StatusDecode
	case errors.PhaseResolve:
		return StatusResolve
	case errors.PhaseCompile:
		return StatusCompile
	case errors.PhaseEncode:
		return StatusEncode
	case errors.PhaseBoundary:
		return StatusContract
	default:
		return StatusInternal
	}
}

// String serializes the result for the single-string channel: the payload,
// or the diagnostic prefixed with FailurePrefix.
func (r Result) String() string {
	if r.Err != nil {
		return FailurePrefix + r.Err.Error()
	}
	return r.Payload
}
