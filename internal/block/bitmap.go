// Package block implements the per-block state the BAT resolves to: a
// physical file offset, a VHDX block-state tag, and the sorted sector
// ranges derived from the block's sector bitmap.
package block

// BitOrder selects how a sector bitmap's bits are scanned within each
// byte. VHD scans MSB-first; VHDX scans LSB-first. libvhdi uses two
// separate loops for this; a single loop parameterized by bit order
// covers both formats here instead.
type BitOrder int

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// bitAt returns the bit at logical position i (0 = first bit scanned)
// within data, honoring order.
func bitAt(data []byte, i int, order BitOrder) byte {
	byteIndex := i / 8
	bitIndex := i % 8
	b := data[byteIndex]
	if order == MSBFirst {
		return (b >> (7 - bitIndex)) & 1
	}
	return (b >> bitIndex) & 1
}

// SectorRange is a contiguous run of sectors sharing one allocation
// state, in byte offsets relative to the start of the block.
type SectorRange struct {
	Start       int64
	End         int64
	Unallocated bool
}

// Len reports the range's length in bytes.
func (r SectorRange) Len() int64 {
	return r.End - r.Start
}

// Contains reports whether a block-relative offset falls in the range.
func (r SectorRange) Contains(offset int64) bool {
	return offset >= r.Start && offset < r.End
}

// DecodeBitmap walks a sector bitmap bit by bit and emits the coalesced
// sector ranges it describes via a run-length scan. blockSize and
// bytesPerSector determine how many bits are meaningful;
// the bitmap buffer may be larger than strictly needed (it's padded to
// a sector or MiB boundary depending on format) but only
// blockSize/bytesPerSector bits are consulted.
func DecodeBitmap(bitmap []byte, blockSize int64, bytesPerSector int64, order BitOrder) []SectorRange {
	totalBits := int(blockSize / bytesPerSector)
	if totalBits == 0 {
		return nil
	}

	ranges := make([]SectorRange, 0, 4)
	runStart := 0
	runValue := bitAt(bitmap, 0, order)

	flush := func(start, end int) {
		if start == end {
			return
		}
		ranges = append(ranges, SectorRange{
			Start:       int64(start) * bytesPerSector,
			End:         int64(end) * bytesPerSector,
			Unallocated: runValue == 0,
		})
	}

	for i := 1; i < totalBits; i++ {
		v := bitAt(bitmap, i, order)
		if v != runValue {
			flush(runStart, i)
			runStart = i
			runValue = v
		}
	}
	flush(runStart, totalBits)

	return ranges
}

// FullyUnallocated returns the single-range descriptor for a block that
// has no presence in this image at all (VHD BAT entry 0xFFFFFFFF, or a
// VHDX block_state below PartiallyPresent).
func FullyUnallocated(blockSize int64) []SectorRange {
	return []SectorRange{{Start: 0, End: blockSize, Unallocated: true}}
}

// FullyAllocated returns the single-range descriptor for a block that is
// entirely present in this image with no bitmap to consult (VHDX
// non-differential blocks in state PartiallyPresent or FullyPresent, and
// VHDX differential blocks in state FullyPresent).
func FullyAllocated(blockSize int64) []SectorRange {
	return []SectorRange{{Start: 0, End: blockSize, Unallocated: false}}
}
