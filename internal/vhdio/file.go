package vhdio

import "os"

// FileSource implements Source over an *os.File. It owns the file and
// closes it when asked to.
type FileSource struct {
	file *os.File
}

// NewFileSource opens path for read-only random access.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{file: f}, nil
}

// NewFileSourceFromHandle wraps an already-open file. Close still closes it.
func NewFileSourceFromHandle(f *os.File) *FileSource {
	return &FileSource{file: f}
}

func (s *FileSource) ReadAt(offset int64, buf []byte) error {
	return readExact(s.file, offset, buf)
}

func (s *FileSource) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *FileSource) Close() error {
	return s.file.Close()
}
