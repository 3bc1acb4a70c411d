package memacc

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ethosumonitor/internal/emon"
)

const blockSize = 0x1000

func wordBlock(tag uint32) []byte {
	buf := make([]byte, blockSize)
	for i := 0; i < blockSize/4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], tag<<16|uint32(i))
	}
	return buf
}

func TestOverlapRegions(t *testing.T) {
	mapper := NewMapper()

	acc1 := NewBufferAccessor(0x0000, wordBlock(1))
	if err := mapper.AddAccessor(acc1); err != nil {
		t.Fatalf("Failed to set memory accessor: %v", err)
	}

	// Overlapping region
	acc2 := NewBufferAccessor(0x0800, wordBlock(2))
	if err := mapper.AddAccessor(acc2); !errors.Is(err, emon.ErrMemAccOverlap) {
		t.Errorf("Expected overlap error, got: %v", err)
	}

	// Adjacent region
	acc2 = NewBufferAccessor(0x1000, wordBlock(2))
	if err := mapper.AddAccessor(acc2); err != nil {
		t.Errorf("Failed to set non overlapping memory accessor: %v", err)
	}

	if got := len(mapper.GetAccessors()); got != 2 {
		t.Errorf("Expected 2 accessors, got %d", got)
	}
}

func TestMapperRouting(t *testing.T) {
	mapper := NewMapper()
	defer mapper.Close()

	for i, base := range []uint64{0x20000000, 0x30000000} {
		if err := mapper.AddAccessor(NewBufferAccessor(base, wordBlock(uint32(i+1)))); err != nil {
			t.Fatalf("AddAccessor: %v", err)
		}
	}

	tests := []struct {
		name string
		addr uint64
		size uint32
		want uint32
	}{
		{"first block start", 0x20000000, 4, 0x00010000},
		{"first block end", 0x20000ffc, 4, 0x000103ff},
		{"second block", 0x30000010, 4, 0x00020004},
		{"back to first", 0x20000100, 4, 0x00010040},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := mapper.ReadMemory(tt.addr, tt.size)
			if err != nil {
				t.Fatalf("ReadMemory(0x%x): %v", tt.addr, err)
			}
			if got := binary.LittleEndian.Uint32(data); got != tt.want {
				t.Errorf("ReadMemory(0x%x) = 0x%08x, want 0x%08x", tt.addr, got, tt.want)
			}
		})
	}
}

func TestMapperNoMapping(t *testing.T) {
	mapper := NewMapper()
	if err := mapper.AddAccessor(NewBufferAccessor(0x1000, wordBlock(1))); err != nil {
		t.Fatal(err)
	}

	// Unmapped address
	_, err := mapper.ReadMemory(0x8000, 4)
	if !errors.Is(err, emon.ErrTransport) || !errors.Is(err, emon.ErrNoMapping) {
		t.Errorf("Expected transport/no mapping error, got: %v", err)
	}

	// Straddles the end of the only accessor
	_, err = mapper.ReadMemory(0x1ffe, 4)
	if !errors.Is(err, emon.ErrNoMapping) {
		t.Errorf("Expected no mapping error for partial range, got: %v", err)
	}
}

func TestCloseDropsMappings(t *testing.T) {
	mapper := NewMapper()
	if err := mapper.AddAccessor(NewBufferAccessor(0x1000, wordBlock(1))); err != nil {
		t.Fatal(err)
	}
	if _, err := mapper.ReadMemory(0x1000, 4); err != nil {
		t.Fatal(err)
	}
	if err := mapper.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// The last used accessor must not survive
	if _, err := mapper.ReadMemory(0x1000, 4); !errors.Is(err, emon.ErrNoMapping) {
		t.Errorf("Expected no mapping after close, got: %v", err)
	}
	if got := len(mapper.GetAccessors()); got != 0 {
		t.Errorf("Expected no accessors, got %d", got)
	}
}

func TestBufferAccessorReadsLiveData(t *testing.T) {
	buf := make([]byte, 16)
	acc := NewBufferAccessor(0x100, buf)

	first, err := acc.ReadMemory(0x104, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := acc.WriteMemory(0x104, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	second, err := acc.ReadMemory(0x104, 4)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]byte{0, 0, 0, 0}, first); diff != "" {
		t.Errorf("first read mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, second); diff != "" {
		t.Errorf("second read mismatch (-want +got):\n%s", diff)
	}

	if _, err := acc.ReadMemory(0x10e, 4); !errors.Is(err, emon.ErrTransport) {
		t.Errorf("Expected transport error past end, got: %v", err)
	}
}

func TestCallbackAccessorRetries(t *testing.T) {
	calls := 0
	acc := NewCallbackAccessor(0, 0xffff, func(address uint64, reqBytes uint32) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("probe busy")
		}
		return make([]byte, reqBytes), nil
	})

	// Single attempt by default
	if _, err := acc.ReadMemory(0x10, 4); !errors.Is(err, emon.ErrTransport) {
		t.Fatalf("Expected transport error, got: %v", err)
	}

	calls = 0
	acc.SetRetries(5, 0)
	data, err := acc.ReadMemory(0x10, 8)
	if err != nil {
		t.Fatalf("ReadMemory with retries: %v", err)
	}
	if len(data) != 8 {
		t.Errorf("Expected 8 bytes, got %d", len(data))
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if acc.Retried != 2 {
		t.Errorf("Expected 2 retries, got %d", acc.Retried)
	}
}

func TestCallbackAccessorShortRead(t *testing.T) {
	acc := NewCallbackAccessor(0, 0xffff, func(address uint64, reqBytes uint32) ([]byte, error) {
		return []byte{0}, nil
	})
	acc.SetRetries(2, 0)
	if _, err := acc.ReadMemory(0, 4); !errors.Is(err, emon.ErrTransport) {
		t.Errorf("Expected transport error on short read, got: %v", err)
	}

	closed := false
	acc.SetCloser(func() error { closed = true; return nil })
	mapper := NewMapper()
	if err := mapper.AddAccessor(acc); err != nil {
		t.Fatal(err)
	}
	if err := mapper.Close(); err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("Expected mapper close to close the callback accessor")
	}
}

func TestFileAccessor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sram.bin")
	img := wordBlock(7)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatal(err)
	}

	// Window of the file starting at offset 0x100
	acc, err := NewFileAccessor(path, 0x20000000, 0x100, 0x200)
	if err != nil {
		t.Fatalf("NewFileAccessor: %v", err)
	}
	defer acc.Close()

	st, en := acc.GetRange()
	if st != 0x20000000 || en != 0x200001ff {
		t.Errorf("range = 0x%x-0x%x", st, en)
	}

	data, err := acc.ReadMemory(0x20000000, 8)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(img[0x100:0x108], data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	if _, err := acc.ReadMemory(0x20000200, 4); !errors.Is(err, emon.ErrTransport) {
		t.Errorf("Expected transport error past window, got: %v", err)
	}

	if _, err := NewFileAccessor(path, 0, 0x800, 0x1000); !errors.Is(err, emon.ErrInvalidParamVal) {
		t.Errorf("Expected invalid param for oversize window, got: %v", err)
	}
	if _, err := NewFileAccessor(filepath.Join(t.TempDir(), "missing"), 0, 0, 0); !errors.Is(err, emon.ErrFileError) {
		t.Errorf("Expected file error for missing image, got: %v", err)
	}
}
