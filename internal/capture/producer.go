// Package capture implements the producer and consumer halves of the
// capture-to-disk pipeline: the producer converts socket readiness (or
// stdin) into whole-datagram commits into the ring buffer while
// tracking per-port counters; the consumer (consumer.go) drains the
// ring to the current file sink and runs the file lifecycle. Socket
// readiness uses unix.Poll across the listening sockets rather than a
// goroutine-per-socket fan-in, to preserve the port-index draining
// order the concurrency model's "Ordering guarantees" describe.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/user/stationrec/internal/lofar"
	"github.com/user/stationrec/internal/portstats"
	"github.com/user/stationrec/internal/ring"
	"github.com/user/stationrec/internal/session"
)

// stagingSize bounds the per-datagram receive buffer. It must stay
// above any realistic UDP MTU (including jumbo frames); an arriving
// datagram larger than this is the "fatal programming error" the
// design calls out, not a condition this package tries to recover
// from.
const stagingSize = 65536

// Config carries the producer's per-run options, a subset of the CLI
// option table (spec.md §6).
type Config struct {
	PackLen         int // 0 = accept any size
	SizeHead        bool
	BeamformedCheck bool
	Timeout         time.Duration
}

// Producer is the ingress half of the pipeline: either N listening
// UDP sockets (socket mode) or a single stdin pseudo-port (stdin
// mode).
type Producer struct {
	cfg  Config
	ring *ring.Ring
	sess *session.Session
	log  zerolog.Logger

	ports []*portstats.Port

	stdinMode bool
	stdin     io.Reader

	conns []*net.UDPConn
	fds   []int

	// OnProgress is invoked roughly every 1 GiB of cumulative
	// throughput, mirroring the periodic statistics dump. Optional.
	OnProgress func()
}

// NewSocketProducer opens one UDP listening socket per port, in the
// order given, and returns a Producer ready to Run.
func NewSocketProducer(portNumbers []int, cfg Config, r *ring.Ring, s *session.Session, log zerolog.Logger) (*Producer, error) {
	p := &Producer{cfg: cfg, ring: r, sess: s, log: log}

	for _, num := range portNumbers {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: num})
		if err != nil {
			p.closeSockets()
			return nil, fmt.Errorf("capture: listen on port %d: %w", num, err)
		}
		fd, err := socketFD(conn)
		if err != nil {
			conn.Close()
			p.closeSockets()
			return nil, fmt.Errorf("capture: extract fd for port %d: %w", num, err)
		}
		p.conns = append(p.conns, conn)
		p.fds = append(p.fds, fd)
		p.ports = append(p.ports, portstats.New(num))
	}
	return p, nil
}

// NewStdinProducer wraps stdin as the single port-0 pseudo-source.
func NewStdinProducer(stdin io.Reader, cfg Config, r *ring.Ring, s *session.Session, log zerolog.Logger) *Producer {
	return &Producer{
		cfg:       cfg,
		ring:      r,
		sess:      s,
		log:       log,
		stdinMode: true,
		stdin:     stdin,
		ports:     []*portstats.Port{portstats.New(0)},
	}
}

// Ports returns the producer's per-port counter sets, in port-index
// order, for the statistics reporter.
func (p *Producer) Ports() []*portstats.Port {
	return p.ports
}

// Run drives the producer loop until the session terminates or a
// fatal error occurs. ctx is honored only at poll/wait granularity;
// the session's stopped state is the primary cancellation mechanism
// described in spec.md §5.
func (p *Producer) Run(ctx context.Context) error {
	if p.stdinMode {
		return p.runStdin(ctx)
	}
	return p.runSockets(ctx)
}

func (p *Producer) recordWidth(payloadSize int) int {
	if p.cfg.SizeHead {
		return payloadSize + 2
	}
	return payloadSize
}

func (p *Producer) runSockets(ctx context.Context) error {
	defer p.closeSockets()

	staging := make([]byte, stagingSize)
	pollFds := make([]unix.PollFd, len(p.fds))
	for i, fd := range p.fds {
		pollFds[i].Fd = int32(fd)
		pollFds[i].Events = unix.POLLIN
	}

	var cumulative int64
	const milestone = 1 << 30 // ~1 GB
	nextMilestone := int64(milestone)

	timeoutMillis := int(p.cfg.Timeout / time.Millisecond)

	for {
		if p.sess.Stopped() == session.Terminate {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		for i := range pollFds {
			pollFds[i].Revents = 0
		}
		n, err := unix.Poll(pollFds, timeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("capture: poll: %w", err)
		}
		if n == 0 {
			p.sess.OnIdleTimeout(false, p.sess.CurrentFilename != "")
			continue
		}

		terminated := p.sess.Stopped() == session.Terminate
		for i, pfd := range pollFds {
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}
			nread, _, err := p.conns[i].ReadFromUDP(staging)
			if err != nil {
				return fmt.Errorf("capture: recv on port %d: %w", p.ports[i].Number, err)
			}
			if terminated {
				// Explicitly discarded: stopped==2 was already
				// observed this iteration.
				continue
			}

			cumulative += int64(nread)
			if cumulative >= nextMilestone {
				nextMilestone += milestone
				if p.OnProgress != nil {
					p.OnProgress()
				}
			}

			p.accept(i, staging[:nread])
		}
	}
}

func (p *Producer) runStdin(ctx context.Context) error {
	buf := make([]byte, p.cfg.PackLen)

	var cumulative int64
	const milestone = 1 << 30 // ~1 GB
	nextMilestone := int64(milestone)

	for {
		if p.sess.Stopped() == session.Terminate {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		p.ring.WaitSpace(p.recordWidth(p.cfg.PackLen))

		if _, err := io.ReadFull(p.stdin, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				p.log.Info().Msg("stdin EOF, treating as idle timeout")
			} else {
				p.log.Info().Err(err).Msg("stdin read error, treating as idle timeout")
			}
			p.sess.OnIdleTimeout(true, false)
			return nil
		}

		cumulative += int64(len(buf))
		if cumulative >= nextMilestone {
			nextMilestone += milestone
			if p.OnProgress != nil {
				p.OnProgress()
			}
		}

		p.accept(0, buf)
	}
}

// accept runs the acceptance policy and enqueue steps common to both
// modes for a single datagram already read into data.
func (p *Producer) accept(portIndex int, data []byte) {
	port := p.ports[portIndex]
	size := len(data)

	if p.cfg.PackLen > 0 && size != p.cfg.PackLen {
		p.log.Debug().Int("port", port.Number).Int("size", size).Msg("discarding datagram of unexpected length")
		return
	}
	port.RecordSeen()

	if p.cfg.BeamformedCheck && size >= lofar.HeaderSize {
		h := lofar.Decode(data)
		port.RecordBeamformed(h.PackNo(), h.Good())
	}

	width := p.recordWidth(size)
	view := p.ring.WriteView(width)
	if view == nil {
		port.RecordDropped()
		return
	}
	if p.cfg.SizeHead {
		binary.LittleEndian.PutUint16(view[0:2], uint16(size))
		copy(view[2:], data)
	} else {
		copy(view, data)
	}
	p.ring.CommitWrite(width, view)
	port.AddBytesWritten(int64(width))
}

func (p *Producer) closeSockets() {
	for _, c := range p.conns {
		c.Close()
	}
}

func socketFD(conn *net.UDPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) {
		fd = int(f)
	})
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}
