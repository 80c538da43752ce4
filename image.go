// Package vhdi is a read-only access library for Microsoft's VHD and
// VHDX virtual hard disk image formats. Given a seekable byte source,
// it resolves virtual-disk offsets to physical data, transparently
// falling through to a parent image for unallocated sectors of a
// differential disk.
package vhdi

import (
	"sync"

	"github.com/libyal/go-vhdi/internal/bat"
	"github.com/libyal/go-vhdi/internal/cache"
	"github.com/libyal/go-vhdi/internal/guid"
	"github.com/libyal/go-vhdi/internal/vhdierr"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

type state int

const (
	stateCreated state = iota
	stateOpened
	stateClosed
)

// OpenFlag selects the access mode passed to Open. Only OpenRead is
// accepted; the library has no write path.
type OpenFlag int

const (
	OpenRead OpenFlag = 1 << iota
	OpenWrite
)

// Image is a handle to one open VHD or VHDX file, tracking created,
// opened, and closed states. The zero value is not usable; construct
// with Open.
type Image struct {
	mu sync.RWMutex

	state      state
	source     vhdio.Source
	ownsSource bool
	aborted    bool

	fileType       FileType
	diskType       DiskType
	formatMajor    uint16
	formatMinor    uint16
	mediaSize      int64
	bytesPerSector uint32
	blockSize      int64
	identifier     guid.GUID

	parentIdentifier    guid.GUID
	hasParentIdentifier bool
	parentFilenameUTF16 []byte // raw bytes, native endianness of the format
	parentFilenameBE    bool   // true for VHD (UTF-16BE), false for VHDX (UTF-16LE)

	bat   *bat.Table // nil for VHD fixed disks
	cache *cache.Cache

	currentOffset int64
	parent        *Image
}

// Open detects the container format, parses its metadata, and returns a
// ready-to-read Image. Only OpenRead is supported; passing OpenWrite
// fails with ErrWriteNotSupported without consulting source.
func Open(source vhdio.Source, flags OpenFlag) (*Image, error) {
	if flags&OpenWrite != 0 {
		return nil, vhdierr.New(vhdierr.WriteNotSupported, "vhdi: open")
	}
	if source == nil {
		return nil, vhdierr.New(vhdierr.InvalidArgument, "vhdi: open")
	}

	img, err := detectAndOpen(source)
	if err != nil {
		return nil, err
	}
	img.ownsSource = false
	img.state = stateOpened
	return img, nil
}

// Close releases the byte source, if this Image opened it, and frees
// owned state. Subsequent operations fail with ErrNotOpen.
func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.state != stateOpened {
		return vhdierr.New(vhdierr.NotOpen, "vhdi: close")
	}
	var err error
	if img.ownsSource {
		err = img.source.Close()
	}
	img.state = stateClosed
	img.source = nil
	img.bat = nil
	img.cache = nil
	img.parent = nil
	if err != nil {
		return vhdierr.Wrap(vhdierr.IO, "vhdi: close", err)
	}
	return nil
}

// SignalAbort sets a flag that makes every later Read/ReadAt call return
// ErrAborted before its next sector-range read. It takes the image's
// write lock, so it waits for a Read/ReadAt already in progress to
// finish; that call is not interrupted.
func (img *Image) SignalAbort() {
	img.mu.Lock()
	img.aborted = true
	img.mu.Unlock()
}

func (img *Image) requireOpenForRead() error {
	if img.state != stateOpened {
		return vhdierr.New(vhdierr.NotOpen, "vhdi: operation")
	}
	return nil
}

// GetFileType reports whether the image is VHD or VHDX.
func (img *Image) GetFileType() (FileType, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return img.fileType, nil
}

// GetFormatVersion reports the container's format version. VHDX always
// reports minor == 0 (libvhdi_file_get_format_version never sets a
// nonzero minor for either format).
func (img *Image) GetFormatVersion() (major, minor uint16, err error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, 0, err
	}
	return img.formatMajor, img.formatMinor, nil
}

// GetDiskType reports fixed, dynamic, or differential.
func (img *Image) GetDiskType() (DiskType, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return img.diskType, nil
}

// GetMediaSize reports the virtual disk's size in bytes.
func (img *Image) GetMediaSize() (int64, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return img.mediaSize, nil
}

// GetBytesPerSector reports the logical sector size (512 or 4096).
func (img *Image) GetBytesPerSector() (uint32, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return img.bytesPerSector, nil
}

// GetIdentifier returns the image's big-endian 16-byte GUID: the VHD
// footer's identifier, or the VHDX image header's data_write_identifier.
func (img *Image) GetIdentifier() (guid.GUID, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return guid.GUID{}, err
	}
	return img.identifier, nil
}

// GetParentIdentifier returns the zero GUID for non-differential images.
func (img *Image) GetParentIdentifier() (guid.GUID, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return guid.GUID{}, err
	}
	if !img.hasParentIdentifier {
		return guid.GUID{}, nil
	}
	return img.parentIdentifier, nil
}
