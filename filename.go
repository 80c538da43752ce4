package vhdi

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/libyal/go-vhdi/internal/guid"
	"github.com/libyal/go-vhdi/internal/vhdierr"
)

// parseParentLinkage parses a VHDX parent_locator "parent_linkage" value,
// a braced GUID string, into the big-endian form GetParentIdentifier
// exposes.
func parseParentLinkage(s string) (guid.GUID, error) {
	id, err := guid.ParseBraced(s)
	if err != nil {
		return guid.GUID{}, vhdierr.Wrap(vhdierr.UnsupportedValue, "vhdx: parent_linkage", err)
	}
	return id, nil
}

func utf16LEFromString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], u)
	}
	return out
}

func (img *Image) decodeParentFilename() string {
	if len(img.parentFilenameUTF16) == 0 {
		return ""
	}
	units := make([]uint16, len(img.parentFilenameUTF16)/2)
	for i := range units {
		if img.parentFilenameBE {
			units[i] = binary.BigEndian.Uint16(img.parentFilenameUTF16[2*i : 2*i+2])
		} else {
			units[i] = binary.LittleEndian.Uint16(img.parentFilenameUTF16[2*i : 2*i+2])
		}
	}
	// Trim a trailing NUL terminator, if present (VHD's scan includes it).
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// GetUTF8ParentFilenameSize returns the number of bytes GetUTF8ParentFilename
// would write, including the NUL terminator. For a non-differential image
// or one with no recorded parent path the name is empty and the size is 1.
func (img *Image) GetUTF8ParentFilenameSize() (int, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return len(img.decodeParentFilename()) + 1, nil
}

// GetUTF8ParentFilename returns the parent's filename hint as UTF-8.
func (img *Image) GetUTF8ParentFilename() (string, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return "", err
	}
	return img.decodeParentFilename(), nil
}

// GetUTF16ParentFilenameSize returns the number of 16-bit units
// GetUTF16ParentFilename would write, including the NUL terminator.
func (img *Image) GetUTF16ParentFilenameSize() (int, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return 0, err
	}
	return len(utf16.Encode([]rune(img.decodeParentFilename()))) + 1, nil
}

// GetUTF16ParentFilename returns the parent's filename hint as native
// big-endian UTF-16 code units (the core's canonical exposed encoding).
func (img *Image) GetUTF16ParentFilename() ([]uint16, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if err := img.requireOpenForRead(); err != nil {
		return nil, err
	}
	units := utf16.Encode([]rune(img.decodeParentFilename()))
	out := make([]uint16, len(units)+1)
	copy(out, units)
	return out, nil
}
