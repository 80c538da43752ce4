package header

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"

	"github.com/libyal/go-vhdi/internal/vhdierr"
)

type rawVHDXParentLocatorHeader struct {
	LocatorType   [16]byte
	Reserved      uint16
	KeyValueCount uint16
}

type rawVHDXParentLocatorEntry struct {
	KeyOffset   uint32
	ValueOffset uint32
	KeyLength   uint16
	ValueLength uint16
}

// ParentLocatorEntry is one decoded key/value pair of the parent_locator
// metadata item, e.g. "relative_path" -> "..\parent.vhdx".
type ParentLocatorEntry struct {
	Key   string
	Value string
}

// VHDXParentLocator is the decoded parent_locator metadata item.
// LocatorType must equal ParentLocatorTypeVHDX for the entries to be
// interpreted as path hints.
type VHDXParentLocator struct {
	LocatorType [16]byte
	Entries     []ParentLocatorEntry
}

// Lookup returns the value for the given key, if present.
func (p *VHDXParentLocator) Lookup(key string) (string, bool) {
	for _, e := range p.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// ResolvePath picks a path hint in priority order: absolute_win32_path,
// falling back to volume_path, falling back to relative_path.
func (p *VHDXParentLocator) ResolvePath() (string, bool) {
	for _, key := range []string{"absolute_win32_path", "volume_path", "relative_path"} {
		if v, ok := p.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// ParseVHDXParentLocator decodes a parent_locator metadata item's raw
// bytes (as returned by VHDXMetadataTable.ReadItem).
func ParseVHDXParentLocator(data []byte) (*VHDXParentLocator, error) {
	if len(data) < 20 {
		return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: parent_locator header length")
	}

	var hdr rawVHDXParentLocatorHeader
	if err := binary.Read(bytes.NewReader(data[:20]), binary.LittleEndian, &hdr); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode parent_locator header", err)
	}

	const entrySize = 12
	tableEnd := 20 + int(hdr.KeyValueCount)*entrySize

	entries := make([]ParentLocatorEntry, 0, hdr.KeyValueCount)
	for i := uint16(0); i < hdr.KeyValueCount; i++ {
		off := 20 + int(i)*entrySize
		if off+entrySize > len(data) {
			return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: parent_locator entry bounds")
		}
		var raw rawVHDXParentLocatorEntry
		if err := binary.Read(bytes.NewReader(data[off:off+entrySize]), binary.LittleEndian, &raw); err != nil {
			return nil, vhdierr.Wrap(vhdierr.IO, "vhdx: decode parent_locator entry", err)
		}

		key, err := readUTF16LEString(data, int(raw.KeyOffset), int(raw.KeyLength), tableEnd)
		if err != nil {
			return nil, err
		}
		value, err := readUTF16LEString(data, int(raw.ValueOffset), int(raw.ValueLength), tableEnd)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ParentLocatorEntry{Key: key, Value: value})
	}

	return &VHDXParentLocator{LocatorType: hdr.LocatorType, Entries: entries}, nil
}

// IsVHDXType reports whether the locator's type GUID matches the
// well-known VHDX parent-locator type.
func (p *VHDXParentLocator) IsVHDXType() bool {
	return p.LocatorType == ParentLocatorTypeVHDX
}

// readUTF16LEString decodes the key or value bytes at [byteOffset,
// byteOffset+byteLength) within data. minOffset is the end of the fixed
// 20-byte locator header plus its key/value-count entry table: an offset
// pointing into that region (or before it) is rejected as out of bounds,
// the same check libvhdi_parent_locator_entry.c applies to
// key_data_offset/value_data_offset before trusting them.
func readUTF16LEString(data []byte, byteOffset, byteLength, minOffset int) (string, error) {
	if byteOffset < minOffset || byteLength < 0 || byteOffset+byteLength > len(data) {
		return "", vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: parent_locator key/value bounds")
	}
	if byteLength%2 != 0 {
		return "", vhdierr.New(vhdierr.ValueOutOfBounds, "vhdx: parent_locator key/value length")
	}
	units := make([]uint16, byteLength/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[byteOffset+2*i : byteOffset+2*i+2])
	}
	return string(utf16.Decode(units)), nil
}
