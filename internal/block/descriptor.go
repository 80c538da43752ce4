package block

import "sort"

// BlockState mirrors the low 3 bits of a VHDX BAT entry. VHD has no
// equivalent; VHD descriptors always carry StateFullyPresent or
// StateNotPresent depending on the BAT entry's unallocated marker.
type BlockState uint8

const (
	StateNotPresent BlockState = iota
	StateUndefined1
	StateUndefined2
	StateUndefined3
	StateUndefined4
	StateUndefined5
	StatePartiallyPresent
	StateFullyPresent
)

// Present reports whether the state is PartiallyPresent or above: BAT
// entry state values below StatePartiallyPresent mark the block as
// unallocated within this image.
func (s BlockState) Present() bool {
	return s >= StatePartiallyPresent
}

// Descriptor is the per-block resolution result: a physical offset, a
// VHDX block-state tag, and the sorted, merged sector ranges covering
// [0, blockSize).
type Descriptor struct {
	FileOffset int64 // -1 if not present anywhere in this image
	State      BlockState
	Ranges     []SectorRange
}

// RangeAt finds the sector range containing a block-relative offset via
// binary search (libvhdi's equivalent walk is a linear scan).
func (d *Descriptor) RangeAt(offset int64) (SectorRange, bool) {
	ranges := d.Ranges
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].End > offset
	})
	if i == len(ranges) || !ranges[i].Contains(offset) {
		return SectorRange{}, false
	}
	return ranges[i], true
}
