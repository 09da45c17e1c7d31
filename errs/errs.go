// Package errs defines the typed error kinds shared by every layer of goewf.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error the way spec §7 does.
type Kind int

const (
	// KindIO wraps a failed OS-level open/read/write/seek.
	KindIO Kind = iota
	// KindInvalidFormat covers signature mismatches, malformed section headers and unsupported flavors.
	KindInvalidFormat
	// KindChecksumMismatch covers a section or chunk checksum that does not verify.
	KindChecksumMismatch
	// KindCorrupt covers decompression failure, impossible offsets, a done section out of place.
	KindCorrupt
	// KindLimitExceeded covers segment count, chunk size, or media size limits.
	KindLimitExceeded
	// KindInvalidArgument covers caller misuse: nil handle, bad offset, write after finalize.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindInvalidFormat:
		return "invalid-format"
	case KindChecksumMismatch:
		return "checksum-mismatch"
	case KindCorrupt:
		return "corrupt"
	case KindLimitExceeded:
		return "limit-exceeded"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "unknown"
	}
}

// ChecksumDetail carries the {what, where, expected, found} tuple spec §7 asks for.
type ChecksumDetail struct {
	What     string // "section" or "chunk"
	Where    string
	Expected uint32
	Found    uint32
}

// Error is the one error type every goewf package returns.
type Error struct {
	Kind     Kind
	Op       string
	Checksum *ChecksumDetail
	Err      error
}

func (e *Error) Error() string {
	if e.Checksum != nil {
		return fmt.Sprintf("%s: %s checksum mismatch at %s: expected %#x, found %#x",
			e.Op, e.Checksum.What, e.Checksum.Where, e.Checksum.Expected, e.Checksum.Found)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.Sentinel(errs.KindCorrupt)) match by Kind, treating a bare Kind *Error as a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Err == nil && t.Checksum == nil {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an Error wrapping cause with op context, following the teacher's
// fmt.Errorf("...: %w", err) wrapping idiom at every call site.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a bare Error usable with errors.Is for a given Kind, e.g.
//
//	if errors.Is(err, errs.Sentinel(errs.KindCorrupt)) { ... }
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// Checksum builds a ChecksumMismatch error with full detail.
func Checksum(op, what, where string, expected, found uint32) *Error {
	return &Error{
		Kind:     KindChecksumMismatch,
		Op:       op,
		Checksum: &ChecksumDetail{What: what, Where: where, Expected: expected, Found: found},
	}
}

// Wrap attaches op context to cause without changing its Kind, preserving an
// existing *Error's Kind if cause already carries one, else defaulting to KindIO
// the way a raw os call failure would.
func Wrap(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return &Error{Kind: e.Kind, Op: op + ": " + e.Op, Checksum: e.Checksum, Err: e.Err}
	}
	return New(KindIO, op, cause)
}
