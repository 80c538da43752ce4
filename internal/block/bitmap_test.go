package block

import (
	"reflect"
	"testing"
)

func TestDecodeBitmap_MSBFirst(t *testing.T) {
	// bits: 1,1,0,0,1,1,0,0 ... (MSB-first within 0xCC)
	bitmap := []byte{0xCC, 0x00}
	ranges := DecodeBitmap(bitmap, 8*512, 512, MSBFirst)

	want := []SectorRange{
		{Start: 0, End: 1024, Unallocated: false},
		{Start: 1024, End: 2048, Unallocated: true},
		{Start: 2048, End: 3072, Unallocated: false},
		{Start: 3072, End: 4096, Unallocated: true},
	}
	if !reflect.DeepEqual(ranges, want) {
		t.Fatalf("DecodeBitmap() = %+v, want %+v", ranges, want)
	}
}

func TestDecodeBitmap_LSBFirst(t *testing.T) {
	tests := []struct {
		name   string
		bitmap []byte
		want   []SectorRange
	}{
		{
			name:   "single run allocated",
			bitmap: []byte{0xFF},
			want:   []SectorRange{{Start: 0, End: 4096, Unallocated: false}},
		},
		{
			name:   "single run unallocated",
			bitmap: []byte{0x00},
			want:   []SectorRange{{Start: 0, End: 4096, Unallocated: true}},
		},
		{
			// LSB-first: bit0=1,bit1=1,bit2=0,bit3=0,bit4=1,bit5=1,bit6=0,bit7=0 -> 0x33
			name:   "alternating run",
			bitmap: []byte{0x33},
			want: []SectorRange{
				{Start: 0, End: 1024, Unallocated: false},
				{Start: 1024, End: 2048, Unallocated: true},
				{Start: 2048, End: 3072, Unallocated: false},
				{Start: 3072, End: 4096, Unallocated: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeBitmap(tt.bitmap, 8*512, 512, LSBFirst)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeBitmap() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeBitmap_CoversWholeBlock(t *testing.T) {
	bitmap := make([]byte, 32)
	for i := range bitmap {
		bitmap[i] = byte(i * 37)
	}
	blockSize := int64(1 * 1024 * 1024)
	bytesPerSector := int64(4096)

	ranges := DecodeBitmap(bitmap, blockSize, bytesPerSector, LSBFirst)
	if len(ranges) == 0 {
		t.Fatal("expected at least one range")
	}
	if ranges[0].Start != 0 {
		t.Errorf("first range starts at %d, want 0", ranges[0].Start)
	}
	if ranges[len(ranges)-1].End != blockSize {
		t.Errorf("last range ends at %d, want %d", ranges[len(ranges)-1].End, blockSize)
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i-1].End != ranges[i].Start {
			t.Errorf("gap between range %d (%+v) and %d (%+v)", i-1, ranges[i-1], i, ranges[i])
		}
		if ranges[i-1].Unallocated == ranges[i].Unallocated {
			t.Errorf("adjacent ranges %d and %d share the same flag, should have been merged", i-1, i)
		}
	}
}

func TestDescriptor_RangeAt(t *testing.T) {
	d := &Descriptor{
		Ranges: []SectorRange{
			{Start: 0, End: 1024, Unallocated: false},
			{Start: 1024, End: 2048, Unallocated: true},
			{Start: 2048, End: 4096, Unallocated: false},
		},
	}

	tests := []struct {
		offset int64
		want   SectorRange
		ok     bool
	}{
		{0, d.Ranges[0], true},
		{1023, d.Ranges[0], true},
		{1024, d.Ranges[1], true},
		{2047, d.Ranges[1], true},
		{2048, d.Ranges[2], true},
		{4095, d.Ranges[2], true},
		{4096, SectorRange{}, false},
	}

	for _, tt := range tests {
		got, ok := d.RangeAt(tt.offset)
		if ok != tt.ok {
			t.Errorf("RangeAt(%d) ok = %v, want %v", tt.offset, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("RangeAt(%d) = %+v, want %+v", tt.offset, got, tt.want)
		}
	}
}

func FuzzDecodeBitmap(f *testing.F) {
	f.Add([]byte{0xCC, 0x00}, int64(4096), int64(512), 0)
	f.Add([]byte{0x00}, int64(4096), int64(4096), 1)

	f.Fuzz(func(t *testing.T, bitmap []byte, blockSize int64, bytesPerSector int64, order int) {
		if len(bitmap) == 0 || len(bitmap) > 1<<16 {
			return
		}
		if bytesPerSector <= 0 || blockSize <= 0 {
			return
		}
		if blockSize/bytesPerSector > int64(len(bitmap)*8) {
			return
		}
		if blockSize%bytesPerSector != 0 {
			return
		}
		bo := MSBFirst
		if order%2 != 0 {
			bo = LSBFirst
		}

		ranges := DecodeBitmap(bitmap, blockSize, bytesPerSector, bo)
		var covered int64
		for i, r := range ranges {
			if r.Start != covered {
				t.Fatalf("gap/overlap at range %d: %+v, expected start %d", i, r, covered)
			}
			if r.Len() <= 0 {
				t.Fatalf("empty or negative range at %d: %+v", i, r)
			}
			covered = r.End
			if i > 0 && ranges[i-1].Unallocated == r.Unallocated {
				t.Fatalf("adjacent ranges %d/%d not merged", i-1, i)
			}
		}
		if len(ranges) > 0 && covered != blockSize {
			t.Fatalf("ranges cover up to %d, want %d", covered, blockSize)
		}
	})
}
