package vhdio

import "bytes"

// MemorySource implements Source over an in-memory byte slice. Useful for
// tests and for images staged fully into memory ahead of time.
type MemorySource struct {
	data []byte
}

// NewMemorySource wraps data. The slice is not copied; callers must not
// mutate it while the Source is in use.
func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{data: data}
}

func (s *MemorySource) ReadAt(offset int64, buf []byte) error {
	return readExact(bytes.NewReader(s.data), offset, buf)
}

func (s *MemorySource) Size() (int64, error) {
	return int64(len(s.data)), nil
}

func (s *MemorySource) Close() error {
	return nil
}
