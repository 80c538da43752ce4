// Package vhdio abstracts random-access reads over the handle backing a
// virtual disk image: a plain file, an in-memory buffer, or anything else
// a caller wants to seek and read. The core never opens files directly;
// it is handed a Source and an offset.
package vhdio

import "io"

// Source is the minimum contract the core needs from a backing handle:
// exact-length reads at an absolute offset, a total size, and a way to
// release the handle. Short reads are treated as errors by callers —
// Source implementations must either fill buf completely or return an
// error, never a partial read with a nil error.
type Source interface {
	ReadAt(offset int64, buf []byte) error
	Size() (int64, error)
	Close() error
}

// readExact reads len(buf) bytes from r at offset, returning io.ErrUnexpectedEOF
// if the source has fewer bytes available. It's the helper every Source
// implementation below funnels through so the "short reads are errors"
// rule lives in one place.
func readExact(r io.ReaderAt, offset int64, buf []byte) error {
	n, err := r.ReadAt(buf, offset)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}
