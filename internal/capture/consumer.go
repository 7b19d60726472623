package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/stationrec/internal/archive"
	"github.com/user/stationrec/internal/compress"
	"github.com/user/stationrec/internal/ring"
	"github.com/user/stationrec/internal/session"
	"github.com/user/stationrec/internal/sink"
)

// ConsumerConfig carries the consumer's file-lifecycle options, a
// subset of the CLI option table (spec.md §6). MaxFileSize's sign
// selects the statistics mode: positive reports at every split file,
// negative reports only at a true session-ending close.
type ConsumerConfig struct {
	Base     string // --out base; "/dev/null" is used verbatim
	PortList string // filename-template port list segment
	Hostname string

	PackLen     int
	MaxFileSize int64
	MaxWrite    int

	Codec                compress.Algorithm // in-process codec; None if not compressing
	ExternalCompCommand  string             // "%s"-templated external compressor, "" to disable
	ExternalPathOverride string

	Archiver *archive.Uploader // optional, nil disables archival upload
}

// FileReport summarizes a just-closed (or just-split) output file for
// the statistics reporter.
type FileReport struct {
	Path            string
	BytesWritten    int64
	CompressedBytes int64
	Split           bool
}

// Consumer is the egress half of the pipeline: it drains the ring to
// the current file sink and runs the file-open/close/split/terminate
// state machine spec.md §4.3 describes.
type Consumer struct {
	cfg ConsumerConfig

	devNull           bool
	numbered          bool
	statsPerSplitFile bool
	maxFileSize       int64 // magnitude only

	ring *ring.Ring
	sess *session.Session
	log  zerolog.Logger

	sink           *sink.File
	baseTimestamp  string
	OnFileReport   func(FileReport)
}

// New builds a Consumer. r and s must be the same ring/session the
// producer was constructed with.
func New(cfg ConsumerConfig, r *ring.Ring, s *session.Session, log zerolog.Logger) *Consumer {
	maxFileSize := cfg.MaxFileSize
	statsPerSplit := maxFileSize > 0
	if maxFileSize < 0 {
		maxFileSize = -maxFileSize
	}
	return &Consumer{
		cfg:               cfg,
		devNull:           cfg.Base == os.DevNull,
		numbered:          maxFileSize > 0,
		statsPerSplitFile: statsPerSplit,
		maxFileSize:       maxFileSize,
		ring:              r,
		sess:              s,
		log:               log,
	}
}

func absState(s session.State) int {
	if s < 0 {
		return int(-s)
	}
	return int(s)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Run drives the consumer's six-step loop until the session
// terminates and the ring has been fully flushed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.ring.WaitData(c.sess.StoppedNonZero)

		old := c.sess.Stopped()
		ms := old

		// 1. File-size split. Also applied while terminating, so a full
		// numbered file still rolls over while the ring drains.
		if (ms == session.Running || ms == session.Terminate) && c.maxFileSize > 0 && c.sink != nil && c.sess.FileBytes >= c.maxFileSize {
			ms = session.SplitNow
		}

		// 2. File close decision.
		if c.sink != nil && ((ms == session.Terminate && c.ring.Fill() == 0) || absState(ms) == 1) {
			c.closeCurrentFile(ms)
		}

		// 3. Terminate.
		if ms == session.Terminate && c.ring.Fill() == 0 {
			return nil
		}

		// 4. Reopen.
		if ms == session.SplitNow {
			if err := c.openFile(true); err != nil {
				return fmt.Errorf("capture: reopen split file: %w", err)
			}
		}

		// 5. Clear.
		if ms != session.Terminate {
			if observed := c.sess.ClearIfUnchanged(old); observed != old && observed != session.Running {
				c.log.Info().
					Int("observed", int(observed)).
					Int("snapshot", int(old)).
					Msg("stopped changed concurrently during clear; keeping new value")
			}
		}

		// 6. Drain.
		if c.ring.Fill() > 0 {
			if c.sink == nil {
				if err := c.openFile(false); err != nil {
					return fmt.Errorf("capture: open file: %w", err)
				}
			}
			if err := c.drainOnce(); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) drainOnce() error {
	n := minInt(c.ring.Fill(), c.cfg.MaxWrite)
	if c.maxFileSize > 0 {
		if remaining := c.maxFileSize - c.sess.FileBytes; remaining < int64(n) {
			n = int(remaining)
		}
	}
	if c.cfg.PackLen > 0 {
		n -= n % c.cfg.PackLen
	}
	if n <= 0 {
		return nil
	}
	view := c.ring.ReadView()
	if _, err := c.sink.Write(view[:n]); err != nil {
		return fmt.Errorf("capture: write sink: %w", err)
	}
	c.ring.CommitRead(n)
	c.sess.FileBytes += int64(n)
	c.sess.TotalBytes += int64(n)
	return nil
}

func (c *Consumer) compressing() bool {
	return c.cfg.Codec != compress.None || c.cfg.ExternalCompCommand != ""
}

func (c *Consumer) openFile(split bool) error {
	if c.devNull {
		c.sess.CurrentFilename = os.DevNull
		s, err := sink.New(os.DevNull, compress.None)
		if err != nil {
			return err
		}
		c.sink = s
		return nil
	}

	if split {
		c.sess.FileNumber++
	} else {
		c.baseTimestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000")
		if c.numbered {
			c.sess.FileNumber = 0
		} else {
			c.sess.FileNumber = -1
		}
	}

	name := c.filename()
	c.sess.CurrentFilename = name

	var s *sink.File
	var err error
	if c.cfg.ExternalCompCommand != "" {
		s, err = sink.NewExternal(name, c.cfg.ExternalCompCommand, c.cfg.ExternalPathOverride)
	} else {
		s, err = sink.New(name, c.cfg.Codec)
	}
	if err != nil {
		return err
	}
	c.sink = s
	return nil
}

// filename builds "<base>_<portlist>.<hostname>.<timestamp>" plus an
// optional "_NNNN" numbering suffix and ".zst" compression suffix, per
// spec.md §6's filename template.
func (c *Consumer) filename() string {
	name := fmt.Sprintf("%s_%s.%s.%s", c.cfg.Base, c.cfg.PortList, c.cfg.Hostname, c.baseTimestamp)
	if c.sess.FileNumber >= 0 {
		name += fmt.Sprintf("_%04d", c.sess.FileNumber)
	}
	if c.compressing() {
		name += ".zst"
	}
	return name
}

func (c *Consumer) closeCurrentFile(ms session.State) {
	if c.sink == nil {
		return
	}
	path := c.sink.Path()
	rawBytes := c.sess.FileBytes

	compressedSize, err := c.sink.Close()
	if err != nil {
		c.log.Error().Err(err).Str("file", path).Msg("error closing output sink")
	}

	c.log.Info().
		Str("file", path).
		Int64("bytes_written", rawBytes).
		Int64("compressed_bytes", compressedSize).
		Msg("closed output file")

	split := ms == session.SplitNow
	if !split || c.statsPerSplitFile {
		if c.OnFileReport != nil {
			c.OnFileReport(FileReport{Path: path, BytesWritten: rawBytes, CompressedBytes: compressedSize, Split: split})
		}
	}

	if !split && !c.devNull && c.cfg.Archiver != nil {
		go func(p string) {
			if uerr := c.cfg.Archiver.UploadFile(context.Background(), p); uerr != nil {
				c.log.Warn().Err(uerr).Str("file", p).Msg("archival upload failed")
			}
		}(path)
	}

	c.sink = nil
	c.sess.FileBytes = 0
	c.sess.CurrentFilename = ""
}
