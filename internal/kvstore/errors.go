package kvstore

import "errors"

// Sentinel errors returned at the Store API boundary. Callers classify them
// with errors.Is; Get's "absent" outcome is not one of these -- it is
// reported as a plain (nil, false) return rather than an error, per spec.
var (
	// ErrInvalidArgument covers a nil key/value or a string whose escaped
	// length exceeds MaxStrLen.
	ErrInvalidArgument = errors.New("kvstore: invalid argument")

	// ErrOutOfMemory covers allocation failure while growing the backing
	// array. Go programs essentially never observe this (the runtime panics
	// on OOM instead), but the sentinel exists so that callers ported from
	// the C original, and future bounded-arena backends, have somewhere to
	// report it without changing the API.
	ErrOutOfMemory = errors.New("kvstore: out of memory")
)
