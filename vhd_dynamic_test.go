package vhdi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/libyal/go-vhdi/internal/vhdio"
)

type rawVHDDynamicHeaderFixture struct {
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

// buildVHDDynamicImage lays out: dynamic header @512, BAT @1536, sector
// bitmap @2048, block-1 payload @2560, footer at file end. It mirrors
// spec.md §8 scenario 2 (block_size=2MiB, media_size=4MiB,
// BAT=[0xFFFFFFFF, sector#4]).
func buildVHDDynamicImage(t *testing.T, diskType uint32, blockOnePayload []byte, firstBitmapByte byte) ([]byte, int64) {
	t.Helper()
	const (
		dynHeaderOffset = 512
		batOffset       = 1536
		bitmapOffset    = 2048
		blockSize       = 2 * 1024 * 1024
		mediaSize       = 2 * blockSize
		sectorN         = (bitmapOffset) / 512 // 4
	)
	fileOffset := int64(sectorN)*512 + 512 // bitmapSize=512 for this block size
	total := fileOffset + blockSize + 512  // + footer

	full := make([]byte, total)

	dyn := rawVHDDynamicHeaderFixture{
		DataOffset:      0xFFFFFFFFFFFFFFFF,
		TableOffset:     batOffset,
		HeaderVersion:   0x00010000,
		MaxTableEntries: 2,
		BlockSize:       blockSize,
	}
	copy(dyn.Cookie[:], "cxsparse")
	dyn.ParentUniqueID[0] = 0xCD

	var dbuf bytes.Buffer
	if err := binary.Write(&dbuf, binary.BigEndian, &dyn); err != nil {
		t.Fatalf("encode dynamic header: %v", err)
	}
	copy(full[dynHeaderOffset:], dbuf.Bytes())

	binary.BigEndian.PutUint32(full[batOffset:batOffset+4], 0xFFFFFFFF)
	binary.BigEndian.PutUint32(full[batOffset+4:batOffset+8], sectorN)

	full[bitmapOffset] = firstBitmapByte
	copy(full[fileOffset:], blockOnePayload)

	footer := rawVHDFooterFixture{
		FileFormatVersion: 0x00010000,
		DataOffset:        dynHeaderOffset,
		CurrentSize:       mediaSize,
		DiskType:          diskType,
	}
	copy(footer.Cookie[:], "conectix")

	var fbuf bytes.Buffer
	if err := binary.Write(&fbuf, binary.BigEndian, &footer); err != nil {
		t.Fatalf("encode footer: %v", err)
	}
	copy(full[total-512:], fbuf.Bytes())

	return full, mediaSize
}

func TestVHDDynamic_Scenario2(t *testing.T) {
	full, mediaSize := buildVHDDynamicImage(t, 3 /* DYNAMIC */, []byte("SECONDBLOCK"), 0x80)

	img, err := Open(vhdio.NewMemorySource(full), OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	diskType, _ := img.GetDiskType()
	if diskType != DiskTypeDynamic {
		t.Errorf("DiskType = %v, want Dynamic", diskType)
	}
	size, _ := img.GetMediaSize()
	if size != mediaSize {
		t.Errorf("MediaSize = %d, want %d", size, mediaSize)
	}

	zeros := make([]byte, 512)
	n, err := img.ReadAt(0, zeros)
	if err != nil {
		t.Fatalf("ReadAt(0): %v", err)
	}
	if n != 512 {
		t.Fatalf("n = %d, want 512", n)
	}
	for i, b := range zeros {
		if b != 0 {
			t.Fatalf("byte %d = %x, want 0 (block 0 is entirely unallocated)", i, b)
		}
	}

	got := make([]byte, len("SECONDBLOCK"))
	n, err = img.ReadAt(2*1024*1024, got)
	if err != nil {
		t.Fatalf("ReadAt(2MiB): %v", err)
	}
	if string(got) != "SECONDBLOCK" {
		t.Errorf("ReadAt(2MiB) = %q, want SECONDBLOCK", got)
	}
}

func TestVHDDifferential_Scenario3(t *testing.T) {
	parentFull, _ := buildVHDDynamicImage(t, 3 /* DYNAMIC */, []byte("PARENTBLOCK"), 0x80)
	parent, err := Open(vhdio.NewMemorySource(parentFull), OpenRead)
	if err != nil {
		t.Fatalf("Open(parent): %v", err)
	}
	defer parent.Close()
	parentID, err := parent.GetIdentifier()
	if err != nil {
		t.Fatalf("GetIdentifier(parent): %v", err)
	}

	// Child: allocated in block 0 (bit 1), unallocated in block 1 (BAT entry 0xFFFFFFFF).
	childFull, _ := buildVHDDifferentialImage(t, []byte("CHILDBLOCK"), parentID)
	child, err := Open(vhdio.NewMemorySource(childFull), OpenRead)
	if err != nil {
		t.Fatalf("Open(child): %v", err)
	}
	defer child.Close()

	if err := child.SetParentFile(parent); err != nil {
		t.Fatalf("SetParentFile: %v", err)
	}

	got := make([]byte, len("CHILDBLOCK"))
	if _, err := child.ReadAt(0, got); err != nil {
		t.Fatalf("ReadAt(0): %v", err)
	}
	if string(got) != "CHILDBLOCK" {
		t.Errorf("ReadAt(0) = %q, want CHILDBLOCK (from child)", got)
	}

	got2 := make([]byte, len("PARENTBLOCK"))
	if _, err := child.ReadAt(2*1024*1024, got2); err != nil {
		t.Fatalf("ReadAt(2MiB): %v", err)
	}
	if string(got2) != "PARENTBLOCK" {
		t.Errorf("ReadAt(2MiB) = %q, want PARENTBLOCK (through parent)", got2)
	}
}

func TestVHDDifferential_MismatchedParentRejected(t *testing.T) {
	parentFull, _ := buildVHDDynamicImage(t, 3, []byte("X"), 0x80)
	parent, err := Open(vhdio.NewMemorySource(parentFull), OpenRead)
	if err != nil {
		t.Fatalf("Open(parent): %v", err)
	}
	defer parent.Close()

	var wrongID [16]byte
	wrongID[0] = 0xEE
	childFull, _ := buildVHDDifferentialImage(t, []byte("Y"), wrongID)
	child, err := Open(vhdio.NewMemorySource(childFull), OpenRead)
	if err != nil {
		t.Fatalf("Open(child): %v", err)
	}
	defer child.Close()

	err = child.SetParentFile(parent)
	if err == nil {
		t.Fatal("expected ParentIdentifierMismatch")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrParentIdentifierMismatch {
		t.Fatalf("err = %v, want ParentIdentifierMismatch", err)
	}
}

// buildVHDDifferentialImage builds a child image: block 0 is allocated
// (bitmap byte 0x80, payload at its own sector) and block 1 is entirely
// unallocated (0xFFFFFFFF), routing reads to the parent.
func buildVHDDifferentialImage(t *testing.T, blockZeroPayload []byte, parentID [16]byte) ([]byte, int64) {
	t.Helper()
	const (
		dynHeaderOffset = 512
		batOffset       = 1536
		bitmapOffset    = 2048
		blockSize       = 2 * 1024 * 1024
		mediaSize       = 2 * blockSize
		sectorN         = bitmapOffset / 512
	)
	fileOffset := int64(sectorN)*512 + 512
	total := fileOffset + blockSize + 512

	full := make([]byte, total)

	dyn := rawVHDDynamicHeaderFixture{
		DataOffset:      0xFFFFFFFFFFFFFFFF,
		TableOffset:     batOffset,
		HeaderVersion:   0x00010000,
		MaxTableEntries: 2,
		BlockSize:       blockSize,
		ParentUniqueID:  parentID,
	}
	copy(dyn.Cookie[:], "cxsparse")

	var dbuf bytes.Buffer
	if err := binary.Write(&dbuf, binary.BigEndian, &dyn); err != nil {
		t.Fatalf("encode dynamic header: %v", err)
	}
	copy(full[dynHeaderOffset:], dbuf.Bytes())

	binary.BigEndian.PutUint32(full[batOffset:batOffset+4], sectorN)
	binary.BigEndian.PutUint32(full[batOffset+4:batOffset+8], 0xFFFFFFFF)

	full[bitmapOffset] = 0x80
	copy(full[fileOffset:], blockZeroPayload)

	footer := rawVHDFooterFixture{
		FileFormatVersion: 0x00010000,
		DataOffset:        dynHeaderOffset,
		CurrentSize:       mediaSize,
		DiskType:          4, // DIFFERENTIAL
	}
	copy(footer.Cookie[:], "conectix")

	var fbuf bytes.Buffer
	if err := binary.Write(&fbuf, binary.BigEndian, &footer); err != nil {
		t.Fatalf("encode footer: %v", err)
	}
	copy(full[total-512:], fbuf.Bytes())

	return full, mediaSize
}
