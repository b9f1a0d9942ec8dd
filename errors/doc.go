// Package errors provides structured error types for go-typst-wasi.
//
// Errors are categorized by Phase (where in an invocation the error occurred)
// and Kind (error category). The gateway maps the phase of a failure to the
// status code returned across the foreign boundary.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindNotFound).
//		Path("images/logo.png").
//		Detail("image not in bundle").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseResolve, "image", "logo.png")
//	err := errors.OutOfBounds(errors.PhaseHost, "font", 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
