// Package vhdierr is the error-kind vocabulary shared by every internal
// parser package and the public vhdi package. Keeping it in its own
// package (rather than defining it in vhdi itself) lets internal/header
// and internal/bat return richly-typed errors without an import cycle
// back to vhdi.
package vhdierr

import "fmt"

// Kind classifies why an operation failed.
type Kind int

const (
	InvalidArgument Kind = iota
	UnsupportedSignature
	UnsupportedVersion
	UnsupportedValue
	ValueOutOfBounds
	ValueMissing
	ChecksumMismatch
	ParentIdentifierMismatch
	IO
	NotOpen
	AlreadyOpen
	WriteNotSupported
	Aborted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case UnsupportedSignature:
		return "UnsupportedSignature"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case UnsupportedValue:
		return "UnsupportedValue"
	case ValueOutOfBounds:
		return "ValueOutOfBounds"
	case ValueMissing:
		return "ValueMissing"
	case ChecksumMismatch:
		return "ChecksumMismatch"
	case ParentIdentifierMismatch:
		return "ParentIdentifierMismatch"
	case IO:
		return "IO"
	case NotOpen:
		return "NotOpen"
	case AlreadyOpen:
		return "AlreadyOpen"
	case WriteNotSupported:
		return "WriteNotSupported"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Error is the typed error every parser and the public Image return.
// Op names the stage that failed (e.g. "vhd: footer cookie"); Err, when
// set, is the underlying cause (a short read, a wrapped parse error).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so callers
// can do errors.Is(err, vhdierr.New(vhdierr.NotOpen, "")) — but more
// commonly callers use KindOf below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a bare *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap constructs an *Error wrapping a lower-level cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}
