package header

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/libyal/go-vhdi/internal/guid"
	"github.com/libyal/go-vhdi/internal/trace"
	"github.com/libyal/go-vhdi/internal/vhdierr"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

const (
	vhdxFileSignature = "vhdxfile"

	vhdxRegionSize = 64 * 1024

	vhdxImageHeaderOffset1 = 64 * 1024
	vhdxImageHeaderOffset2 = 128 * 1024
	vhdxRegionTableOffset1 = 192 * 1024
	vhdxRegionTableOffset2 = 256 * 1024

	vhdxImageHeaderSignature  = "head"
	vhdxRegionTableSignature  = "regi"
	vhdxMetadataSignature     = "metadata"
	vhdxFormatVersion         = 1
	vhdxMaxRegionEntries      = 2047
	vhdxMaxMetadataEntries    = 2047
	vhdxMetadataMinItemOffset = 64 * 1024
)

// crc32cTable is the Castagnoli CRC-32C table the region table header
// checksum is computed against (polynomial 0x82F63B78). The standard
// library ships this table by name.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// VHDXDiskType mirrors the file_parameters low 2 bits.
type VHDXDiskType uint32

const (
	VHDXDynamic      VHDXDiskType = 0
	VHDXFixed        VHDXDiskType = 1
	VHDXDifferential VHDXDiskType = 2
)

// VerifyVHDXSignature reads the first 8 bytes and reports whether they
// match the VHDX file identifier.
func VerifyVHDXSignature(src vhdio.Source) (bool, error) {
	buf := make([]byte, 8)
	if err := src.ReadAt(0, buf); err != nil {
		return false, vhdierr.Wrap(vhdierr.IO, "vhdx: read file signature", err)
	}
	return string(buf) == vhdxFileSignature, nil
}

type rawVHDXImageHeader struct {
	Signature            [4]byte
	Checksum             uint32
	SequenceNumber       uint64
	FileWriteGUID        [16]byte
	DataWriteGUID        [16]byte
	LogGUID              [16]byte
	LogVersion           uint16
	Version              uint16
	LogLength            uint32
	LogOffset            uint64
	// Remainder of the 4KB structure (reserved) is not modeled; the core
	// never reads past LogOffset.
}

// VHDXImageHeader is the winning copy (by highest sequence_number) of
// the two redundant image-header records.
type VHDXImageHeader struct {
	FormatVersion  uint16
	SequenceNumber uint64
	Identifier     guid.GUID // data_write_identifier, LE-on-disk, exposed BE
}

// ParseVHDXImageHeader parses and validates both image-header copies and
// returns the one with the larger sequence_number.
func ParseVHDXImageHeader(src vhdio.Source) (*VHDXImageHeader, error) {
	h1, err1 := parseOneImageHeader(src, vhdxImageHeaderOffset1)
	h2, err2 := parseOneImageHeader(src, vhdxImageHeaderOffset2)
	if err1 != nil && err2 != nil {
		return nil, err1
	}
	if err1 != nil {
		return h2, nil
	}
	if err2 != nil {
		return h1, nil
	}
	if h2.SequenceNumber > h1.SequenceNumber {
		return h2, nil
	}
	return h1, nil
}

func parseOneImageHeader(src vhdio.Source, offset int64) (*VHDXImageHeader, error) {
	buf := make([]byte, 4096)
	if err := src.ReadAt(offset, buf); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: read image header", err)
	}

	var raw rawVHDXImageHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode image header", err)
	}

	if string(raw.Signature[:]) != vhdxImageHeaderSignature {
		return nil, vhdierr.New(vhdierr.UnsupportedSignature, "vhdx: image header signature")
	}
	if raw.Version != vhdxFormatVersion {
		return nil, vhdierr.New(vhdierr.UnsupportedVersion, "vhdx: image header version")
	}

	return &VHDXImageHeader{
		FormatVersion:  raw.Version,
		SequenceNumber: raw.SequenceNumber,
		Identifier:     guid.FromLittleEndian(raw.DataWriteGUID),
	}, nil
}

// Well-known region type identifiers. Values are taken from the
// MS-VHDX specification and converted to their on-disk little-endian
// byte layout via guid.RawTypeID.
var (
	RegionBAT      = guid.RawTypeID("2DC27766-F623-4200-9D64-115E9BFD4A08")
	RegionMetadata = guid.RawTypeID("8B7CA206-4790-4B9A-B8FE-575F050F886E")
)

type rawVHDXRegionTableHeader struct {
	Signature  [4]byte
	Checksum   uint32
	EntryCount uint32
	Reserved   uint32
}

type rawVHDXRegionTableEntry struct {
	TypeID     [16]byte
	DataOffset uint64
	DataLength uint32
	Flags      uint32
}

// RegionEntry is one resolved region-table entry. TypeID is the raw
// on-disk little-endian byte sequence, matched byte-for-byte against the
// well-known Region* identifiers above — it is never exposed to callers,
// so it does not go through the LE->BE reshuffle guid.GUID values do.
type RegionEntry struct {
	TypeID     [16]byte
	DataOffset int64
	DataLength uint32
	Required   bool
}

// VHDXRegionTable is the decoded first-valid copy of the region table.
type VHDXRegionTable struct {
	Entries []RegionEntry
}

// Lookup finds the region entry of the given type, if present.
func (t *VHDXRegionTable) Lookup(typeID [16]byte) (RegionEntry, bool) {
	for _, e := range t.Entries {
		if e.TypeID == typeID {
			return e, true
		}
	}
	return RegionEntry{}, false
}

// ParseVHDXRegionTable validates BOTH redundant copies' CRC-32C
// independently and returns the first one: a VHDX file with only one
// intact region table copy is treated as corrupt, not salvageable.
func ParseVHDXRegionTable(src vhdio.Source) (*VHDXRegionTable, error) {
	buf1 := make([]byte, vhdxRegionSize)
	if err := src.ReadAt(vhdxRegionTableOffset1, buf1); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: read region table copy 1", err)
	}
	buf2 := make([]byte, vhdxRegionSize)
	if err := src.ReadAt(vhdxRegionTableOffset2, buf2); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: read region table copy 2", err)
	}

	if err := verifyRegionTableCRC(buf1); err != nil {
		return nil, err
	}
	if err := verifyRegionTableCRC(buf2); err != nil {
		return nil, err
	}

	trace.Event("header", "region table: both copies validated", nil)

	return decodeRegionTable(buf1)
}

func verifyRegionTableCRC(buf []byte) error {
	var hdr rawVHDXRegionTableHeader
	if err := binary.Read(bytes.NewReader(buf[:16]), binary.LittleEndian, &hdr); err != nil {
		return vhdierr.Wrap(vhdierr.IO, "vhdx: decode region table header", err)
	}
	if string(hdr.Signature[:]) != vhdxRegionTableSignature {
		return vhdierr.New(vhdierr.UnsupportedSignature, "vhdx: region table signature")
	}
	if hdr.EntryCount > vhdxMaxRegionEntries {
		return vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: region table entry count")
	}

	zeroed := make([]byte, len(buf))
	copy(zeroed, buf)
	// Checksum field is bytes [4:8) of the header.
	zeroed[4], zeroed[5], zeroed[6], zeroed[7] = 0, 0, 0, 0

	got := crc32.Checksum(zeroed, crc32cTable)
	if got != hdr.Checksum {
		return vhdierr.New(vhdierr.ChecksumMismatch, "vhdx: region table CRC-32C")
	}
	return nil
}

func decodeRegionTable(buf []byte) (*VHDXRegionTable, error) {
	var hdr rawVHDXRegionTableHeader
	if err := binary.Read(bytes.NewReader(buf[:16]), binary.LittleEndian, &hdr); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode region table header", err)
	}

	const entrySize = 32
	entries := make([]RegionEntry, 0, hdr.EntryCount)
	for i := uint32(0); i < hdr.EntryCount; i++ {
		off := 16 + int(i)*entrySize
		if off+entrySize > len(buf) {
			return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: region table entry bounds")
		}
		var raw rawVHDXRegionTableEntry
		if err := binary.Read(bytes.NewReader(buf[off:off+entrySize]), binary.LittleEndian, &raw); err != nil {
			return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode region table entry", err)
		}
		entries = append(entries, RegionEntry{
			TypeID:     raw.TypeID,
			DataOffset: int64(raw.DataOffset),
			DataLength: raw.DataLength,
			Required:   raw.Flags&0x1 != 0,
		})
	}

	return &VHDXRegionTable{Entries: entries}, nil
}

type rawVHDXMetadataTableHeader struct {
	Signature  [8]byte
	Reserved   uint16
	EntryCount uint16
	Reserved2  [20]byte
}

type rawVHDXMetadataTableEntry struct {
	ItemID    [16]byte
	Offset    uint32
	Length    uint32
	Flags     uint32
	Reserved2 uint32
}

// MetadataItemEntry is one resolved metadata-table entry. ItemID is the
// raw on-disk byte sequence, matched against the well-known Item*
// identifiers below.
type MetadataItemEntry struct {
	ItemID [16]byte
	Offset int64 // relative to the metadata region base
	Length uint32
}

// VHDXMetadataTable is the decoded metadata table located at the
// metadata_table region entry's data_offset.
type VHDXMetadataTable struct {
	RegionBase int64
	Entries    []MetadataItemEntry
}

// ParseVHDXMetadataTable reads the metadata table header + entries at
// regionBase (the metadata_table region entry's DataOffset).
func ParseVHDXMetadataTable(src vhdio.Source, regionBase int64) (*VHDXMetadataTable, error) {
	buf := make([]byte, vhdxRegionSize)
	if err := src.ReadAt(regionBase, buf); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: read metadata table", err)
	}

	var hdr rawVHDXMetadataTableHeader
	if err := binary.Read(bytes.NewReader(buf[:32]), binary.LittleEndian, &hdr); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode metadata table header", err)
	}
	if string(hdr.Signature[:]) != vhdxMetadataSignature {
		return nil, vhdierr.New(vhdierr.UnsupportedSignature, "vhdx: metadata table signature")
	}
	if hdr.EntryCount > vhdxMaxMetadataEntries {
		return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: metadata table entry count")
	}

	const entrySize = 32
	entries := make([]MetadataItemEntry, 0, hdr.EntryCount)
	for i := uint16(0); i < hdr.EntryCount; i++ {
		off := 32 + int(i)*entrySize
		if off+entrySize > len(buf) {
			return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: metadata table entry bounds")
		}
		var raw rawVHDXMetadataTableEntry
		if err := binary.Read(bytes.NewReader(buf[off:off+entrySize]), binary.LittleEndian, &raw); err != nil {
			return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode metadata table entry", err)
		}
		if raw.Offset < vhdxMetadataMinItemOffset {
			return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: metadata item offset")
		}
		entries = append(entries, MetadataItemEntry{
			ItemID: raw.ItemID,
			Offset: int64(raw.Offset),
			Length: raw.Length,
		})
	}

	return &VHDXMetadataTable{RegionBase: regionBase, Entries: entries}, nil
}

// ReadItem reads the raw bytes of a metadata item by identifier.
func (t *VHDXMetadataTable) ReadItem(src vhdio.Source, itemID [16]byte) ([]byte, bool, error) {
	for _, e := range t.Entries {
		if e.ItemID == itemID {
			buf := make([]byte, e.Length)
			if err := src.ReadAt(t.RegionBase+e.Offset, buf); err != nil {
				return nil, false, vhdierr.Wrap(vhdierr.IO, "vhdx: read metadata item", err)
			}
			return buf, true, nil
		}
	}
	return nil, false, nil
}

// Well-known metadata item identifiers, taken from the MS-VHDX
// specification.
var (
	ItemFileParameters     = guid.RawTypeID("CAA16737-FA36-4D43-B3B6-33F0AA44E76B")
	ItemVirtualDiskSize    = guid.RawTypeID("2FA54224-CD1B-4876-B211-5DBED83BF4B8")
	ItemLogicalSectorSize  = guid.RawTypeID("8141BF1D-A96F-4709-BA47-F233A8FAAB5F")
	ItemPhysicalSectorSize = guid.RawTypeID("CDA348C7-445D-4471-9CC9-E9885251C556")
	ItemVirtualDiskID      = guid.RawTypeID("BECA12AB-B2E6-4523-93EF-C309E000C746")
	ItemParentLocator      = guid.RawTypeID("A8D35F2D-B30B-454D-ABF7-D3D84834AB0C")
	ParentLocatorTypeVHDX  = guid.RawTypeID("B04AEFB7-D19E-4A81-B789-25B8E9445913")
)

// FileParameters decodes the file_parameters metadata item.
type FileParameters struct {
	BlockSize int64
	DiskType  VHDXDiskType
}

// ParseFileParameters decodes an 8-byte file_parameters item.
func ParseFileParameters(data []byte) (FileParameters, error) {
	if len(data) < 8 {
		return FileParameters{}, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: file_parameters length")
	}
	blockSize := int64(binary.LittleEndian.Uint32(data[0:4]))
	flags := binary.LittleEndian.Uint32(data[4:8])

	if blockSize < 1*1024*1024 || blockSize > 256*1024*1024 {
		return FileParameters{}, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: file_parameters block size")
	}
	if blockSize%512 != 0 {
		return FileParameters{}, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: file_parameters block size alignment")
	}

	diskType := VHDXDiskType(flags & 0x3)
	switch diskType {
	case VHDXDynamic, VHDXFixed, VHDXDifferential:
	default:
		return FileParameters{}, vhdierr.New(vhdierr.UnsupportedValue, "vhdx: file_parameters disk type")
	}

	return FileParameters{BlockSize: blockSize, DiskType: diskType}, nil
}

// ParseLogicalSectorSize decodes the logical_sector_size metadata item.
func ParseLogicalSectorSize(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: logical_sector_size length")
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	if size != 512 && size != 4096 {
		return 0, vhdierr.New(vhdierr.UnsupportedValue, "vhdx: logical_sector_size value")
	}
	return size, nil
}

// ParseVirtualDiskSize decodes the virtual_disk_size metadata item.
func ParseVirtualDiskSize(data []byte) (int64, error) {
	if len(data) < 8 {
		return 0, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: virtual_disk_size length")
	}
	return int64(binary.LittleEndian.Uint64(data[0:8])), nil
}

// ParseVirtualDiskIdentifier decodes the virtual_disk_identifier item,
// reshuffling the little-endian on-disk value to the big-endian form
// the core exposes.
func ParseVirtualDiskIdentifier(data []byte) (guid.GUID, error) {
	if len(data) < 16 {
		return guid.GUID{}, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: virtual_disk_identifier length")
	}
	var raw [16]byte
	copy(raw[:], data[:16])
	return guid.FromLittleEndian(raw), nil
}
