// Package bat resolves logical block indices to block descriptors by
// reading Block Allocation Table entries.
package bat

import (
	"encoding/binary"

	"github.com/libyal/go-vhdi/internal/block"
	"github.com/libyal/go-vhdi/internal/trace"
	"github.com/libyal/go-vhdi/internal/vhdierr"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

const (
	vhdUnallocatedEntry = 0xFFFFFFFF
	vhdSectorSize       = 512

	vhdxBlockStateMask  = 0x7
	vhdxPayloadMiBShift = 20
	vhdxMiB             = 1024 * 1024
)

// Format distinguishes VHD's 4-byte big-endian entries from VHDX's
// 8-byte little-endian entries.
type Format int

const (
	VHD Format = iota
	VHDX
)

// Table holds the format-specific layout derived once at open time and
// resolves logical block indices to block descriptors on demand.
type Table struct {
	format          Format
	differential    bool
	fileOffset      int64 // table base: VHD block_table_offset, VHDX BAT region data_offset
	numberOfEntries uint32
	blockSize       int64
	bytesPerSector  int64

	entrySize        int64
	sectorBitmapSize int64
	entriesPerChunk  int64 // VHDX differential only; 0 otherwise
}

// New derives the table layout. blockSize and bytesPerSector must already
// be validated by the header parsers.
func New(format Format, differential bool, fileOffset int64, numberOfEntries uint32, blockSize, bytesPerSector int64) (*Table, error) {
	t := &Table{
		format:          format,
		differential:    differential,
		fileOffset:      fileOffset,
		numberOfEntries: numberOfEntries,
		blockSize:       blockSize,
		bytesPerSector:  bytesPerSector,
	}

	switch format {
	case VHD:
		t.entrySize = 4
		// ceil(block_size / (512*8)) rounded up to a 512-byte sector.
		bits := blockSize / vhdSectorSize
		bytesNeeded := (bits + 7) / 8
		t.sectorBitmapSize = ((bytesNeeded + vhdSectorSize - 1) / vhdSectorSize) * vhdSectorSize
	case VHDX:
		t.entrySize = 8
		if differential {
			entriesPerChunk := (int64(1) << 23) * bytesPerSector / blockSize
			if entriesPerChunk == 0 {
				return nil, vhdierr.New(vhdierr.ValueMissing, "bat: entries_per_chunk")
			}
			if (1024*1024)%entriesPerChunk != 0 {
				return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "bat: entries_per_chunk not a divisor of 1048576")
			}
			t.entriesPerChunk = entriesPerChunk
			t.sectorBitmapSize = vhdxMiB / entriesPerChunk
		}
	default:
		return nil, vhdierr.New(vhdierr.InvalidArgument, "bat: unknown format")
	}

	return t, nil
}

// physicalIndex maps a logical block index to its physical BAT slot,
// accounting for VHDX differential disks' interleaved bitmap entries.
func (t *Table) physicalIndex(k int64) int64 {
	if t.format != VHDX || !t.differential {
		return k
	}
	chunk := k / t.entriesPerChunk
	return chunk*(t.entriesPerChunk+1) + (k % t.entriesPerChunk)
}

// bitmapEntryIndex returns the physical index of the chunk's sector-bitmap
// entry for the chunk containing logical block k (VHDX differential only).
func (t *Table) bitmapEntryIndex(k int64) int64 {
	chunk := k / t.entriesPerChunk
	return (1+chunk)*(t.entriesPerChunk+1) - 1
}

func (t *Table) readEntry(src vhdio.Source, physicalIndex int64) (uint64, error) {
	buf := make([]byte, t.entrySize)
	offset := t.fileOffset + physicalIndex*t.entrySize
	if err := src.ReadAt(offset, buf); err != nil {
		return 0, vhdierr.Wrap(vhdierr.IO, "bat: read entry", err)
	}
	switch t.format {
	case VHD:
		return uint64(binary.BigEndian.Uint32(buf)), nil
	default:
		return binary.LittleEndian.Uint64(buf), nil
	}
}

// ReadElementData resolves logical block index k into a fully populated
// block descriptor.
func (t *Table) ReadElementData(src vhdio.Source, k int64) (*block.Descriptor, error) {
	if k < 0 || k >= int64(t.numberOfEntries) {
		return nil, vhdierr.New(vhdierr.ValueOutOfBounds, "bat: block index")
	}

	phys := t.physicalIndex(k)
	raw, err := t.readEntry(src, phys)
	if err != nil {
		return nil, err
	}

	switch t.format {
	case VHD:
		return t.resolveVHD(src, raw)
	default:
		return t.resolveVHDX(src, raw, k)
	}
}

func (t *Table) resolveVHD(src vhdio.Source, raw uint64) (*block.Descriptor, error) {
	if uint32(raw) == vhdUnallocatedEntry {
		d := &block.Descriptor{
			FileOffset: -1,
			State:      block.StateNotPresent,
			Ranges:     block.FullyUnallocated(t.blockSize),
		}
		return d, nil
	}

	fileOffset := int64(uint32(raw))*vhdSectorSize + t.sectorBitmapSize
	bitmapOffset := fileOffset - t.sectorBitmapSize

	bitmap := make([]byte, t.sectorBitmapSize)
	if err := src.ReadAt(bitmapOffset, bitmap); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "bat: read sector bitmap", err)
	}

	ranges := block.DecodeBitmap(bitmap, t.blockSize, t.bytesPerSector, block.MSBFirst)
	return &block.Descriptor{
		FileOffset: fileOffset,
		State:      block.StateFullyPresent,
		Ranges:     ranges,
	}, nil
}

func (t *Table) resolveVHDX(src vhdio.Source, raw uint64, k int64) (*block.Descriptor, error) {
	state := block.BlockState(raw & vhdxBlockStateMask)
	fileOffset := int64(raw>>vhdxPayloadMiBShift) * vhdxMiB

	if fileOffset == 0 && state == block.StateNotPresent {
		fileOffset = -1
	}

	if fileOffset == -1 || state < block.StatePartiallyPresent {
		trace.Event("bat", "block not present", nil)
		return &block.Descriptor{
			FileOffset: -1,
			State:      state,
			Ranges:     block.FullyUnallocated(t.blockSize),
		}, nil
	}

	if !t.differential || state == block.StateFullyPresent {
		return &block.Descriptor{
			FileOffset: fileOffset,
			State:      state,
			Ranges:     block.FullyAllocated(t.blockSize),
		}, nil
	}

	// state == PartiallyPresent on a differential disk: read the chunk's
	// sector-bitmap entry and decode the per-block bitmap within it.
	bitmapEntryRaw, err := t.readEntry(src, t.bitmapEntryIndex(k))
	if err != nil {
		return nil, err
	}
	bitmapRegionOffset := int64(bitmapEntryRaw>>vhdxPayloadMiBShift) * vhdxMiB
	blockBitmapOffset := bitmapRegionOffset + (k%t.entriesPerChunk)*t.sectorBitmapSize

	bitmap := make([]byte, t.sectorBitmapSize)
	if err := src.ReadAt(blockBitmapOffset, bitmap); err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "bat: read sector bitmap", err)
	}

	ranges := block.DecodeBitmap(bitmap, t.blockSize, t.bytesPerSector, block.LSBFirst)
	return &block.Descriptor{
		FileOffset: fileOffset,
		State:      state,
		Ranges:     ranges,
	}, nil
}
