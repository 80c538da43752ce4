package vhdi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/libyal/go-vhdi/internal/vhdio"
)

// --- VHD fixture builders -------------------------------------------------

type rawVHDFooterFixture struct {
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

func buildVHDFixedImage(t *testing.T, payload []byte, mediaSize int64) []byte {
	t.Helper()
	data := make([]byte, mediaSize)
	copy(data, payload)

	footer := rawVHDFooterFixture{
		FileFormatVersion: 0x00010000,
		DataOffset:        0xFFFFFFFFFFFFFFFF,
		CurrentSize:       uint64(mediaSize),
		DiskType:          2, // FIXED
	}
	copy(footer.Cookie[:], "conectix")
	footer.UniqueID[0] = 0xAB

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &footer); err != nil {
		t.Fatalf("encode footer: %v", err)
	}
	return append(data, buf.Bytes()...)
}

func TestVHDFixed_Scenario1(t *testing.T) {
	const mediaSize = 1024 * 1024
	full := buildVHDFixedImage(t, []byte("DEADBEEF"), mediaSize)

	img, err := Open(vhdio.NewMemorySource(full), OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	diskType, err := img.GetDiskType()
	if err != nil {
		t.Fatalf("GetDiskType: %v", err)
	}
	if diskType != DiskTypeFixed {
		t.Errorf("DiskType = %v, want Fixed", diskType)
	}
	size, err := img.GetMediaSize()
	if err != nil {
		t.Fatalf("GetMediaSize: %v", err)
	}
	if size != mediaSize {
		t.Errorf("MediaSize = %d, want %d", size, mediaSize)
	}
	sps, err := img.GetBytesPerSector()
	if err != nil || sps != 512 {
		t.Errorf("BytesPerSector = %d, %v, want 512", sps, err)
	}

	buf := make([]byte, 8)
	n, err := img.ReadAt(0, buf)
	if err != nil {
		t.Fatalf("ReadAt(0): %v", err)
	}
	if n != 8 || string(buf) != "DEADBEEF" {
		t.Errorf("ReadAt(0) = %q (%d), want DEADBEEF", buf, n)
	}

	tail := make([]byte, 4)
	n, err = img.ReadAt(mediaSize-2, tail)
	if err != nil {
		t.Fatalf("ReadAt(tail): %v", err)
	}
	if n != 2 {
		t.Errorf("ReadAt(tail) n = %d, want 2 (clamped at EOF)", n)
	}

	n, err = img.ReadAt(mediaSize, make([]byte, 10))
	if err != nil {
		t.Fatalf("ReadAt(mediaSize): %v", err)
	}
	if n != 0 {
		t.Errorf("ReadAt(mediaSize) n = %d, want 0", n)
	}

	id, err := img.GetIdentifier()
	if err != nil {
		t.Fatalf("GetIdentifier: %v", err)
	}
	if id[0] != 0xAB {
		t.Errorf("Identifier[0] = %x, want 0xAB", id[0])
	}
}

func TestVHDFixed_SeekRoundTrip(t *testing.T) {
	full := buildVHDFixedImage(t, []byte("abc"), 4096)
	img, err := Open(vhdio.NewMemorySource(full), OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	for _, v := range []int64{0, 17, 4095} {
		got, err := img.Seek(v, SeekSet)
		if err != nil {
			t.Fatalf("Seek(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("Seek(%d) = %d", v, got)
		}
		off, err := img.GetOffset()
		if err != nil || off != v {
			t.Errorf("GetOffset() = %d, %v, want %d", off, err, v)
		}
	}
}

func TestOpen_RejectsWrite(t *testing.T) {
	full := buildVHDFixedImage(t, nil, 512)
	_, err := Open(vhdio.NewMemorySource(full), OpenWrite)
	if err == nil {
		t.Fatal("expected error for OpenWrite")
	}
}

func TestOpen_UnsupportedSignature(t *testing.T) {
	data := make([]byte, 1024)
	copy(data, "garbage!")
	_, err := Open(vhdio.NewMemorySource(data), OpenRead)
	if err == nil {
		t.Fatal("expected UnsupportedSignature")
	}
}

func TestClose_ThenOperationsFail(t *testing.T) {
	full := buildVHDFixedImage(t, nil, 512)
	img, err := Open(vhdio.NewMemorySource(full), OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := img.GetMediaSize(); err == nil {
		t.Fatal("expected ErrNotOpen after Close")
	}
}
