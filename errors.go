package vhdi

import "github.com/libyal/go-vhdi/internal/vhdierr"

// ErrorKind is the public alias of the internal error-kind vocabulary, so
// callers can write vhdi.ErrorKind without reaching into an internal
// package.
type ErrorKind = vhdierr.Kind

const (
	ErrInvalidArgument          = vhdierr.InvalidArgument
	ErrUnsupportedSignature     = vhdierr.UnsupportedSignature
	ErrUnsupportedVersion       = vhdierr.UnsupportedVersion
	ErrUnsupportedValue         = vhdierr.UnsupportedValue
	ErrValueOutOfBounds         = vhdierr.ValueOutOfBounds
	ErrValueMissing             = vhdierr.ValueMissing
	ErrChecksumMismatch         = vhdierr.ChecksumMismatch
	ErrParentIdentifierMismatch = vhdierr.ParentIdentifierMismatch
	ErrIO                       = vhdierr.IO
	ErrNotOpen                  = vhdierr.NotOpen
	ErrAlreadyOpen              = vhdierr.AlreadyOpen
	ErrWriteNotSupported        = vhdierr.WriteNotSupported
	ErrAborted                  = vhdierr.Aborted
)

// Error is the public alias of the internal typed error. Use errors.As
// to recover one from an error returned by this package, or KindOf.
type Error = vhdierr.Error

// KindOf extracts the ErrorKind from err, if err is (or wraps) a *Error.
func KindOf(err error) (ErrorKind, bool) {
	return vhdierr.KindOf(err)
}
