// Package sink implements the consumer's output sink: the currently
// open recording file, optionally wrapped by an in-process compressor
// or piped through an external compressor subprocess. Adapted from
// the teacher's file.FileSink (which wrote one formatted message per
// line) into a raw byte-stream sink that accepts arbitrary chunks, the
// shape the consumer's bounded drains need.
package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/user/stationrec/internal/compress"
)

// File is the consumer's currently open output sink. Exactly one
// instance is live at a time; the consumer owns it exclusively.
type File struct {
	path     string
	closer   io.WriteCloser
	rawBytes int64
}

// New opens path for writing (truncating any existing file of the
// same name — a file is only ever opened once under a given name) and
// wraps it with the given in-process compression algorithm. codec ==
// compress.None writes the raw byte stream.
func New(path string, codec compress.Algorithm) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	w, err := compress.NewWriteCloser(f, codec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &File{path: path, closer: &layeredCloser{w: w, f: f}}, nil
}

// NewExternal pipes the sink through the compressor subprocess
// described by compcommand (a "%s"-templated command line, PATH
// optionally overridden by pathOverride). The subprocess itself opens
// and writes path; stationrec never opens it directly in this mode.
func NewExternal(path, compcommand, pathOverride string) (*File, error) {
	pipe, err := compress.StartExternal(compcommand, path, pathOverride)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &File{path: path, closer: pipe}, nil
}

// Write appends b to the sink, tracking the pre-compression byte
// count the statistics report as bytes_written.
func (s *File) Write(b []byte) (int, error) {
	n, err := s.closer.Write(b)
	s.rawBytes += int64(n)
	return n, err
}

// RawBytesWritten returns the number of uncompressed bytes handed to
// Write so far — what spec's bytes_written counter reports,
// regardless of the sink's compression.
func (s *File) RawBytesWritten() int64 {
	return s.rawBytes
}

// Path returns the sink's filename.
func (s *File) Path() string {
	return s.path
}

// Close flushes and closes the sink. For a compressed sink it also
// waits on the compressor (subprocess or in-process encoder finalize)
// and returns the resulting on-disk size, for the close-time log line
// that reports compressed size.
func (s *File) Close() (compressedSize int64, err error) {
	if cerr := s.closer.Close(); cerr != nil {
		err = cerr
	}
	if st, statErr := os.Stat(s.path); statErr == nil {
		compressedSize = st.Size()
	}
	return compressedSize, err
}

// layeredCloser closes the compression wrapper before the underlying
// file, so a streaming encoder's trailer is flushed first.
type layeredCloser struct {
	w io.WriteCloser
	f *os.File
}

func (l *layeredCloser) Write(b []byte) (int, error) { return l.w.Write(b) }

func (l *layeredCloser) Close() error {
	err := l.w.Close()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
