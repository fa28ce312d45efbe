// Package storeerr defines the engine-internal error kinds of the block
// store (spec §7) and the predicates front-ends use to map them onto
// HTTP status codes and RPC error statuses.
package storeerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind identifies one of the engine's error categories. Front ends switch
// on Kind rather than on error strings.
type Kind int

const (
	_ Kind = iota
	KindNotFound
	KindExists
	KindHashMismatch
	KindUnsupportedHash
	KindUnsupportedCompression
	KindTooLarge
	KindNoSpace
	KindCorruption
	KindIOError
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindExists:
		return "Exists"
	case KindHashMismatch:
		return "HashMismatch"
	case KindUnsupportedHash:
		return "UnsupportedHash"
	case KindUnsupportedCompression:
		return "UnsupportedCompression"
	case KindTooLarge:
		return "TooLarge"
	case KindNoSpace:
		return "NoSpace"
	case KindCorruption:
		return "Corruption"
	case KindIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.msg }

// Is lets errors.Is match any kindError of the same Kind, not just the
// exact sentinel instance, so callers can compare a freshly built error
// against e.g. storeerr.NotFound regardless of its message.
func (e *kindError) Is(target error) bool {
	other, ok := target.(*kindError)
	return ok && other.kind == e.kind
}

// New builds an error of the given kind with a message, suitable for
// wrapping with errors.Wrap when more context is available.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Newf is the Printf-style variant of New.
func Newf(kind Kind, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// KindOf returns the Kind carried by err, walking wrapped errors, or false
// if err does not carry a recognized kind.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return 0, false
}

// Is reports whether err (or something it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var (
	// NotFound is returned when no index entry exists for a block-id.
	NotFound = New(KindNotFound, "block not found")
	// Exists is returned by Insert when the block-id is already live.
	Exists = New(KindExists, "block already exists")
	// HashMismatch is returned when a caller-supplied hash does not match
	// the computed digest.
	HashMismatch = New(KindHashMismatch, "hash mismatch")
	// TooLarge is returned when a record cannot fit in any slab.
	TooLarge = New(KindTooLarge, "record exceeds slab capacity")
	// NoSpace is returned when no slab can be created to satisfy a write.
	NoSpace = New(KindNoSpace, "no space available for a new slab")
)
