// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"errors"
	"fmt"
)

// Kind classifies codec failures. Callers branch on the kind via
// [IsKind]; the textual message is for humans.
type Kind int

const (
	// KindMalformed means the byte stream does not conform to the
	// wire format: truncated input, an over-long varint, an impossible
	// length, a bad boolean byte, or (in verify mode) a digest that
	// does not match its body.
	KindMalformed Kind = iota + 1

	// KindMissingReference means a branch entry named a digest that no
	// earlier frame in the blob produced. The writer's topological
	// order makes this impossible for well-formed output, so it is a
	// sender bug or corruption.
	KindMissingReference

	// KindOrderingViolation is a writer-internal error: a child's
	// digest was needed before it was computed.
	KindOrderingViolation

	// KindPayload wraps an error from the payload codec.
	KindPayload

	// KindInvariant means a cycle was found during topological sort.
	// Well-formed nested sets are acyclic, so this indicates a
	// corrupted graph.
	KindInvariant

	// KindEmptySet means Write was called with an empty set. Empty
	// sets are represented out-of-band by the caller; the envelope
	// always carries at least one frame.
	KindEmptySet
)

// String returns the name of the error kind.
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindMissingReference:
		return "missing reference"
	case KindOrderingViolation:
		return "ordering violation"
	case KindPayload:
		return "payload error"
	case KindInvariant:
		return "invariant violation"
	case KindEmptySet:
		return "empty set"
	default:
		return fmt.Sprintf("unknown kind(%d)", int(k))
	}
}

// Error is the single structured error value surfaced by codec calls.
// Frame is the zero-based index of the frame in flight, or -1 when no
// frame applies.
type Error struct {
	Kind  Kind
	Frame int
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Frame >= 0 {
		msg = fmt.Sprintf("%s (frame %d)", msg, e.Frame)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "depset: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) a codec error of the given
// kind.
func IsKind(err error, kind Kind) bool {
	var codecErr *Error
	return errors.As(err, &codecErr) && codecErr.Kind == kind
}

// codecError builds an *Error for a frame-independent failure.
func codecError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Frame: -1, Err: fmt.Errorf(format, args...)}
}

// frameError builds an *Error attributed to a frame index.
func frameError(kind Kind, frame int, format string, args ...any) *Error {
	return &Error{Kind: kind, Frame: frame, Err: fmt.Errorf(format, args...)}
}
