package compress

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestParseInternal(t *testing.T) {
	cases := []struct {
		command string
		want    Algorithm
		wantOK  bool
	}{
		{"internal:zstd", Zstd, true},
		{"internal:snappy", Snappy, true},
		{"internal:lz4", LZ4, true},
		{"internal:bogus", None, false},
		{"/usr/bin/zstd -o %s", None, false},
	}
	for _, c := range cases {
		got, ok := ParseInternal(c.command)
		if got != c.want || ok != c.wantOK {
			t.Errorf("ParseInternal(%q) = (%q, %v), want (%q, %v)", c.command, got, ok, c.want, c.wantOK)
		}
	}
}

func TestNewWriteCloserTransformsStream(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 200)

	for _, algo := range []Algorithm{None, Zstd, Snappy, LZ4} {
		algo := algo
		t.Run("algo="+string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriteCloser(&buf, algo)
			if err != nil {
				t.Fatalf("NewWriteCloser(%q): %v", algo, err)
			}
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if algo == None && !bytes.Equal(buf.Bytes(), payload) {
				t.Fatalf("None algorithm mutated payload")
			}
			if algo != None && bytes.Equal(buf.Bytes(), payload) {
				t.Fatalf("%s produced byte-identical output to input; expected it to transform the stream", algo)
			}
		})
	}
}

func TestNewWriteCloserRejectsUnknownAlgorithm(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewWriteCloser(&buf, Algorithm("bogus")); err == nil {
		t.Error("NewWriteCloser with unknown algorithm succeeded, want error")
	}
}

func TestStartExternalRequiresPercentS(t *testing.T) {
	if _, err := StartExternal("gzip", "out.gz", ""); err == nil {
		t.Error("StartExternal without %s succeeded, want error")
	}
}

func TestStartExternalTeeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "capture.out")

	pipe, err := StartExternal("tee %s", out, "/usr/bin:/bin")
	if err != nil {
		t.Skipf("tee not available via PATH override: %v", err)
	}

	payload := []byte("7824 bytes of beamformed data, simulated")
	if _, err := pipe.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := pipe.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("tee output = %q, want %q", got, payload)
	}
}
