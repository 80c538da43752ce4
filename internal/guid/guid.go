// Package guid handles the 16-byte identifiers VHD and VHDX embed as
// footer/header/metadata fields. The on-disk encoding differs by field —
// VHD identifiers and the value libvhdi exposes for VHDX are big-endian
// (MSB-first serialization of the 16 bytes); VHDX stores several fields
// (data_write_identifier, virtual_disk_identifier) little-endian on disk
// and the core reshuffles them to big-endian on the way out, matching
// libvhdi's public GUID convention.
package guid

import (
	"fmt"

	"github.com/google/uuid"
)

// GUID is a 16-byte identifier in the big-endian form the core exposes
// through its public getters.
type GUID [16]byte

// Zero reports whether g is the all-zero identifier.
func (g GUID) Zero() bool {
	return g == GUID{}
}

// Equal does a byte-exact comparison, the form parent-identifier
// matching requires.
func (g GUID) Equal(other GUID) bool {
	return g == other
}

func (g GUID) String() string {
	// uuid.UUID's on-wire layout matches our big-endian byte order directly.
	return uuid.UUID(g).String()
}

// FromLittleEndian reshuffles a 16-byte little-endian on-disk value (as
// VHDX stores data_write_identifier and virtual_disk_identifier) into the
// big-endian form the core exposes. Only the first 8 bytes participate in
// the reshuffle (the classic Microsoft GUID layout: Data1 uint32, Data2
// uint16, Data3 uint16, each byte-swapped; Data4[8] is byte-order neutral).
func FromLittleEndian(b [16]byte) GUID {
	var g GUID
	g[0], g[1], g[2], g[3] = b[3], b[2], b[1], b[0]
	g[4], g[5] = b[5], b[4]
	g[6], g[7] = b[7], b[6]
	copy(g[8:], b[8:])
	return g
}

// ParseBraced parses a Microsoft-style "{E2BF15EB-6D36-36D5-9AB8-4FE4A31A121F}"
// string, as found in a VHDX parent locator's parent_linkage value, into
// the big-endian GUID form.
func ParseBraced(s string) (GUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("guid: parse %q: %w", s, err)
	}
	return GUID(id), nil
}

// ToLittleEndian is the inverse of FromLittleEndian: it produces the
// on-disk little-endian byte layout for a canonical (big-endian) GUID.
func ToLittleEndian(g GUID) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = g[3], g[2], g[1], g[0]
	b[4], b[5] = g[5], g[4]
	b[6], b[7] = g[7], g[6]
	copy(b[8:], g[8:])
	return b
}

// RawTypeID parses a canonical hyphenated GUID string (as printed in the
// MS-VHDX specification) and returns its on-disk little-endian byte
// layout, for building the well-known region/metadata type identifiers
// that are matched byte-for-byte against what VHDX stores on disk.
func RawTypeID(s string) [16]byte {
	id, err := uuid.Parse(s)
	if err != nil {
		panic("guid: invalid well-known type id " + s)
	}
	return ToLittleEndian(GUID(id))
}
