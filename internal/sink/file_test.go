package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/stationrec/internal/compress"
)

func TestNewWritesRawBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.raw")
	s, err := New(path, compress.None)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte("beamformed payload bytes")
	n, err := s.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Errorf("Write returned %d, want %d", n, len(payload))
	}
	if s.RawBytesWritten() != int64(len(payload)) {
		t.Errorf("RawBytesWritten() = %d, want %d", s.RawBytesWritten(), len(payload))
	}

	if _, err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("file contents = %q, want %q", got, payload)
	}
}

func TestNewWithZstdProducesSmallerOrDifferentOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.zst")
	s, err := New(path, compress.Zstd)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := make([]byte, 8192)
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	size, err := s.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if size == 0 {
		t.Error("compressed size reported as 0")
	}
	if size >= int64(len(payload)) {
		t.Errorf("compressed size = %d, want smaller than the %d-byte payload", size, len(payload))
	}
}

func TestPathReturnsConfiguredFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.raw")
	s, err := New(path, compress.None)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}
