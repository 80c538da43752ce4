package header

import (
	"bytes"
	"encoding/binary"

	"github.com/libyal/go-vhdi/internal/guid"
	"github.com/libyal/go-vhdi/internal/vhdierr"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

const (
	vhdCookie        = "conectix"
	vhdDynamicCookie = "cxsparse"
	vhdFooterSize    = 512
	vhdDynamicSize   = 1024
	vhdFormatVersion = 0x00010000
)

// VHDDiskType enumerates footer.disk_type.
type VHDDiskType uint32

const (
	VHDFixed        VHDDiskType = 2
	VHDDynamic      VHDDiskType = 3
	VHDDifferential VHDDiskType = 4
)

type rawVHDFooter struct {
	Cookie             [8]byte
	Features           uint32
	FileFormatVersion  uint32
	DataOffset         uint64
	TimeStamp          uint32
	CreatorApplication [4]byte
	CreatorVersion     uint32
	CreatorHostOS      [4]byte
	OriginalSize       uint64
	CurrentSize        uint64
	DiskGeometry       uint32
	DiskType           uint32
	Checksum           uint32
	UniqueID           [16]byte
	SavedState         uint8
	Reserved           [427]byte
}

// VHDFooter is the decoded, big-endian 512-byte footer record present at
// file_size-512 (and, for non-fixed disks, mirrored at offset 0).
type VHDFooter struct {
	FormatVersion uint32
	NextOffset    int64
	MediaSize     int64
	DiskType      VHDDiskType
	Identifier    guid.GUID
}

// ParseVHDFooter decodes and validates the footer at the given offset.
func ParseVHDFooter(src vhdio.Source, offset int64) (*VHDFooter, error) {
	buf := make([]byte, vhdFooterSize)
	if err := src.ReadAt(offset, buf); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhd: read footer", err)
	}

	var raw rawVHDFooter
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &raw); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhd: decode footer", err)
	}

	if string(raw.Cookie[:]) != vhdCookie {
		return nil, vhdierr.New(vhdierr.UnsupportedSignature, "vhd: footer cookie")
	}
	if raw.FileFormatVersion != vhdFormatVersion {
		return nil, vhdierr.New(vhdierr.UnsupportedVersion, "vhd: footer format version")
	}

	diskType := VHDDiskType(raw.DiskType)
	switch diskType {
	case VHDFixed, VHDDynamic, VHDDifferential:
	default:
		return nil, vhdierr.New(vhdierr.UnsupportedValue, "vhd: footer disk type")
	}

	nextOffset := int64(raw.DataOffset)
	if diskType == VHDFixed {
		if nextOffset != -1 {
			return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhd: fixed disk next_offset")
		}
	} else if nextOffset < 512 {
		return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhd: dynamic disk next_offset")
	}

	return &VHDFooter{
		FormatVersion: raw.FileFormatVersion,
		NextOffset:    nextOffset,
		MediaSize:     int64(raw.CurrentSize),
		DiskType:      diskType,
		Identifier:    guid.GUID(raw.UniqueID),
	}, nil
}

type rawVHDDynamicHeader struct {
	Cookie             [8]byte
	DataOffset         uint64
	TableOffset        uint64
	HeaderVersion      uint32
	MaxTableEntries    uint32
	BlockSize          uint32
	Checksum           uint32
	ParentUniqueID     [16]byte
	ParentTimeStamp    uint32
	Reserved1          uint32
	ParentUnicodeName  [512]byte
	ParentLocatorEntry [8][24]byte
	Reserved2          [256]byte
}

// VHDDynamicHeader is the decoded dynamic-disk header (dynamic or
// differential disks only), found at footer.NextOffset.
type VHDDynamicHeader struct {
	BlockTableOffset  int64
	NumberOfBlocks    uint32
	BlockSize         int64
	ParentIdentifier  guid.GUID
	ParentFilename    []byte // raw UTF-16BE bytes, NUL-NUL terminated, size computed by scan
}

// ParseVHDDynamicHeader decodes and validates the dynamic header at offset.
func ParseVHDDynamicHeader(src vhdio.Source, offset int64) (*VHDDynamicHeader, error) {
	buf := make([]byte, vhdDynamicSize)
	if err := src.ReadAt(offset, buf); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhd: read dynamic header", err)
	}

	var raw rawVHDDynamicHeader
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &raw); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhd: decode dynamic header", err)
	}

	if string(raw.Cookie[:]) != vhdDynamicCookie {
		return nil, vhdierr.New(vhdierr.UnsupportedSignature, "vhd: dynamic header cookie")
	}
	if raw.HeaderVersion != vhdFormatVersion {
		return nil, vhdierr.New(vhdierr.UnsupportedVersion, "vhd: dynamic header version")
	}
	if raw.BlockSize == 0 || raw.BlockSize%512 != 0 {
		return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhd: dynamic header block size")
	}
	// Deliberately NOT enforcing power-of-two here: real-world VHD files
	// sometimes violate it, and libvhdi itself leaves its own "check if
	// block size is power of 2" TODO unenforced.

	nameSize := scanUTF16NulNul(raw.ParentUnicodeName[:])

	return &VHDDynamicHeader{
		BlockTableOffset: int64(raw.TableOffset),
		NumberOfBlocks:   raw.MaxTableEntries,
		BlockSize:        int64(raw.BlockSize),
		ParentIdentifier: guid.GUID(raw.ParentUniqueID),
		ParentFilename:   raw.ParentUnicodeName[:nameSize],
	}, nil
}

// scanUTF16NulNul returns the byte length (including the terminator) of
// the first NUL-NUL pair found at an even byte index, matching the
// 16-bit-NUL scan libvhdi applies to the parent unicode name field. If
// none is found, the whole buffer is treated as the name.
func scanUTF16NulNul(data []byte) int {
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			return i + 2
		}
	}
	return len(data)
}
