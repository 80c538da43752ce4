package vhdi

import (
	"github.com/libyal/go-vhdi/internal/block"
	"github.com/libyal/go-vhdi/internal/vhdierr"
)

// Whence selects the reference point for Seek, mirroring POSIX lseek.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Seek repositions current_offset. No I/O occurs; the resulting offset
// must be >= 0.
func (img *Image) Seek(offset int64, whence Whence) (int64, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}

	var next int64
	switch whence {
	case SeekSet:
		next = offset
	case SeekCur:
		next = img.currentOffset + offset
	case SeekEnd:
		next = img.mediaSize + offset
	default:
		return 0, vhdierr.New(vhdierr.InvalidArgument, "vhdi: seek: invalid whence")
	}
	if next < 0 {
		return 0, vhdierr.New(vhdierr.InvalidArgument, "vhdi: seek: negative result")
	}
	img.currentOffset = next
	return next, nil
}

// GetOffset returns current_offset.
func (img *Image) GetOffset() (int64, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return img.currentOffset, nil
}

// Read fills buf starting at the current offset, advancing it by the
// number of bytes read. It stops early (without error) at the end of
// the virtual disk; it never returns more than len(buf) bytes.
func (img *Image) Read(buf []byte) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.readLocked(buf)
}

// ReadAt is equivalent to Seek(offset, SeekSet) followed by Read(buf),
// under a single write-lock acquisition.
func (img *Image) ReadAt(offset int64, buf []byte) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, vhdierr.New(vhdierr.InvalidArgument, "vhdi: read_at: negative offset")
	}
	img.currentOffset = offset
	return img.readLocked(buf)
}

func (img *Image) readLocked(buf []byte) (int, error) {
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}

	n := len(buf)
	bufOff := 0

	for bufOff < n && img.currentOffset < img.mediaSize {
		if img.aborted {
			return bufOff, vhdierr.New(vhdierr.Aborted, "vhdi: read")
		}

		var sectorFileOffset int64
		var unallocated bool
		var readSize int64

		if img.bat == nil {
			sectorFileOffset = img.currentOffset
			unallocated = false
			readSize = min64(int64(n-bufOff), img.mediaSize-img.currentOffset)
		} else {
			blockNumber := img.currentOffset / img.blockSize
			intraBlock := img.currentOffset % img.blockSize

			desc, err := img.cache.Get(blockNumber, func(k int64) (*block.Descriptor, error) {
				return img.bat.ReadElementData(img.source, k)
			})
			if err != nil {
				return bufOff, err
			}

			rng, ok := desc.RangeAt(intraBlock)
			if !ok {
				return bufOff, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdi: read: no sector range at offset")
			}

			if desc.FileOffset == -1 {
				sectorFileOffset = -1
			} else {
				sectorFileOffset = desc.FileOffset + intraBlock
			}
			unallocated = rng.Unallocated
			readSize = min64(min64(int64(n-bufOff), rng.End-intraBlock), img.mediaSize-img.currentOffset)
		}

		if readSize <= 0 {
			break
		}

		dst := buf[bufOff : bufOff+int(readSize)]
		switch {
		case !unallocated:
			if err := img.source.ReadAt(sectorFileOffset, dst); err != nil {
				return bufOff, vhdierr.Wrap(vhdierr.IO, "vhdi: read: source read", err)
			}
		case img.parent == nil:
			for i := range dst {
				dst[i] = 0
			}
		default:
			got, err := img.parent.ReadAt(img.currentOffset, dst)
			if err != nil {
				return bufOff, err
			}
			if int64(got) != readSize {
				return bufOff, vhdierr.New(vhdierr.IO, "vhdi: read: short parent read")
			}
		}

		img.currentOffset += readSize
		bufOff += int(readSize)
	}

	return bufOff, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
