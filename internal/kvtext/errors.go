package kvtext

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Load/Save, matching the specification's §7
// error kinds for the text format.
var (
	// ErrSyntax is returned from Load when the input contained one or more
	// grammar violations. The parser recovers line-by-line and keeps going,
	// so a single call can report many problems; see LoadResult.Errors.
	ErrSyntax = errors.New("kvtext: syntax error")

	// ErrOpenFailure is returned when the underlying file could not be
	// opened or closed -- distinct from ErrSyntax.
	ErrOpenFailure = errors.New("kvtext: open failure")

	// ErrStringTooLong is returned by the emitter when interpolation (or a
	// stored value) would produce a string whose escaped length exceeds the
	// store's configured limit.
	ErrStringTooLong = errors.New("kvtext: string exceeds maximum length")
)

// ParseError describes a single recovered syntax error, with its 1-based
// source line number.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kvtext: line %d: %s", e.Line, e.Msg)
}

// maxReportedErrors caps the number of ParseErrors a single Load call will
// record before halting early, per the specification.
const maxReportedErrors = 12
