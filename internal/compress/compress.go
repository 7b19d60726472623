// Package compress provides the in-process alternatives to the
// external compressor subprocess: streaming zstd/snappy/lz4 encoders
// that wrap the destination file writer directly. Adapted from the
// teacher's buffer-oriented Compressor (which compressed whole []byte
// values) into streaming io.WriteCloser wrappers, since the consumer
// drains the ring in bounded chunks rather than holding a file's
// entire contents in memory.
package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names an in-process codec. The zero value, None, passes
// bytes through unchanged.
type Algorithm string

const (
	None   Algorithm = ""
	Zstd   Algorithm = "zstd"
	Snappy Algorithm = "snappy"
	LZ4    Algorithm = "lz4"
)

// ParseInternal recognizes the "internal:<algorithm>" form of
// --compcommand that selects an in-process codec instead of spawning
// an external compressor subprocess.
func ParseInternal(compcommand string) (Algorithm, bool) {
	const prefix = "internal:"
	if !strings.HasPrefix(compcommand, prefix) {
		return None, false
	}
	switch Algorithm(strings.TrimPrefix(compcommand, prefix)) {
	case Zstd:
		return Zstd, true
	case Snappy:
		return Snappy, true
	case LZ4:
		return LZ4, true
	}
	return None, false
}

// NewWriteCloser wraps dst so that every Write is compressed with
// algo before reaching dst, and Close flushes and finalizes the
// stream. For None it returns dst wrapped in a no-op Closer, so closing
// the result never closes dst.
func NewWriteCloser(dst io.Writer, algo Algorithm) (io.WriteCloser, error) {
	switch algo {
	case None:
		return nopCloser{dst}, nil
	case Zstd:
		return zstd.NewWriter(dst)
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case LZ4:
		return lz4.NewWriter(dst), nil
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %q", algo)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
