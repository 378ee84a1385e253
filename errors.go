package raidline

import (
	"errors"
	"fmt"
)

// Error is a structured driver error carrying enough context to log and
// to test against with errors.Is (spec §7). There is no errno to map:
// failures come from argument checks, the allocator, or the bus (a call
// returning an error or a response with its status bit set, spec §6),
// never from a kernel.
type Error struct {
	Op      string    // operation that failed, e.g. "Write", "DiskSignal"
	Kind    ErrorKind // high-level category
	Disk    int       // physical disk number, -1 if not applicable
	Tagline int       // tagline id, -1 if not applicable
	Msg     string
	Inner   error
}

func (e *Error) Error() string {
	var parts []string
	if e.Disk >= 0 {
		parts = append(parts, fmt.Sprintf("disk=%d", e.Disk))
	}
	if e.Tagline >= 0 {
		parts = append(parts, fmt.Sprintf("tagline=%d", e.Tagline))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}

	if e.Op != "" && len(parts) > 0 {
		return fmt.Sprintf("raidline: %s: %s (%s)", e.Op, msg, parts[0])
	}
	if e.Op != "" {
		return fmt.Sprintf("raidline: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("raidline: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// ErrorKind is a high-level error category.
type ErrorKind string

const (
	ErrKindHole          ErrorKind = "write would create a hole"
	ErrKindOutOfRange    ErrorKind = "tagline or disk out of range"
	ErrKindExhausted     ErrorKind = "array is full"
	ErrKindDiskFailed    ErrorKind = "disk is failed"
	ErrKindBusError      ErrorKind = "bus error"
	ErrKindClosed        ErrorKind = "driver is closed"
	ErrKindInvalidBuffer ErrorKind = "buffer size mismatch"
)

// NewError builds a structured Error.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Disk: -1, Tagline: -1, Msg: msg}
}

// NewDiskError builds an Error scoped to a specific disk.
func NewDiskError(op string, disk int, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Disk: disk, Tagline: -1, Msg: msg}
}

// NewTaglineError builds an Error scoped to a specific tagline.
func NewTaglineError(op string, tag int, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Disk: -1, Tagline: tag, Msg: msg}
}

// WrapError wraps inner with driver context, preserving an existing
// *Error's Kind/Disk/Tagline if inner already is one.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Kind: e.Kind, Disk: e.Disk, Tagline: e.Tagline, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, Kind: ErrKindBusError, Disk: -1, Tagline: -1, Msg: inner.Error(), Inner: inner}
}

// IsKind checks whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
