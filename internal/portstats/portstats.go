// Package portstats tracks the per-port counters the producer updates
// on every datagram and the consumer/statistics reporter reads back:
// packets seen, packets dropped for lack of ring space, bytes written,
// and — when beamformed checking is enabled — the LOFAR packno-based
// reconciliation inputs. Only the producer ever writes these counters
// (design notes: "no lock needed for packs_seen/packs_dropped/
// bytes_written since only the producer writes them"), so the fields
// are plain atomics rather than guarded by a mutex.
package portstats

import "sync/atomic"

// Port is one listening socket's (or the stdin pseudo-port's) counter
// set.
type Port struct {
	Number int // UDP port number, or 0 for the stdin pseudo-port

	packsSeen    atomic.Int64
	packsDropped atomic.Int64
	bytesWritten atomic.Int64

	beamformedGoodPacks   atomic.Int64
	beamformedFirstPackno atomic.Int64
	beamformedLastPackno  atomic.Int64
	haveFirst             atomic.Bool
}

// New returns a zeroed counter set for the given port number.
func New(number int) *Port {
	return &Port{Number: number}
}

// RecordSeen increments packs_seen. Called once per datagram that
// passed the fixed-length acceptance check, regardless of whether it
// is later enqueued or dropped.
func (p *Port) RecordSeen() {
	p.packsSeen.Add(1)
}

// RecordDropped increments packs_dropped: a datagram discarded for
// lack of ring space.
func (p *Port) RecordDropped() {
	p.packsDropped.Add(1)
}

// AddBytesWritten accumulates bytes committed to the ring for this
// port (the record width including any size-head prefix).
func (p *Port) AddBytesWritten(n int64) {
	p.bytesWritten.Add(n)
}

// RecordBeamformed updates the beamformed reconciliation counters for
// a decoded LOFAR header: first/last packno observed and, when the
// header passed Header.Good, the good-packet count.
func (p *Port) RecordBeamformed(packno int64, good bool) {
	if !p.haveFirst.Swap(true) {
		p.beamformedFirstPackno.Store(packno)
	}
	p.beamformedLastPackno.Store(packno)
	if good {
		p.beamformedGoodPacks.Add(1)
	}
}

// Snapshot is a point-in-time copy of a Port's counters, suitable for
// both cumulative and per-interval delta reporting.
type Snapshot struct {
	PacksSeen    int64
	PacksDropped int64
	BytesWritten int64

	HaveBeamformed        bool
	BeamformedGoodPacks   int64
	BeamformedFirstPackno int64
	BeamformedLastPackno  int64
}

// Snapshot takes a consistent-enough read of all counters. Since each
// field is independently atomic and only ever grows, a snapshot read
// mid-update can only under-report the very latest increments, never
// tear a single counter — acceptable for statistical reporting.
func (p *Port) Snapshot() Snapshot {
	return Snapshot{
		PacksSeen:             p.packsSeen.Load(),
		PacksDropped:          p.packsDropped.Load(),
		BytesWritten:          p.bytesWritten.Load(),
		HaveBeamformed:        p.haveFirst.Load(),
		BeamformedGoodPacks:   p.beamformedGoodPacks.Load(),
		BeamformedFirstPackno: p.beamformedFirstPackno.Load(),
		BeamformedLastPackno:  p.beamformedLastPackno.Load(),
	}
}

// Reconciliation is the beamformed expected-vs-received accounting
// described in the statistics design: expected packets bracketed by
// the first/last observed packno, how many are missing, how many were
// dropped for lack of buffer space, how many passed the header's
// good-packet check, and how many were actually written to disk.
type Reconciliation struct {
	Expected int64
	Missed   int64
	Dropped  int64
	Good     int64
	Written  int64
}

// Reconcile derives the beamformed loss accounting from a snapshot.
// Only meaningful when HaveBeamformed is true; callers otherwise fall
// back to reporting Seen/Dropped/Written/volume alone. Without any
// beamformed data, Expected and Missed are 0.
func (s Snapshot) Reconcile() Reconciliation {
	expected := s.BeamformedLastPackno - s.BeamformedFirstPackno + 1
	if !s.HaveBeamformed || expected < 0 {
		expected = 0
	}
	missed := expected - s.PacksSeen
	if missed < 0 {
		missed = 0
	}
	return Reconciliation{
		Expected: expected,
		Missed:   missed,
		Dropped:  s.PacksDropped,
		Good:     s.BeamformedGoodPacks,
		Written:  s.PacksSeen - s.PacksDropped,
	}
}

// Delta returns the per-interval change between an earlier snapshot
// prev and the current one, for the periodic progress report.
func Delta(prev, cur Snapshot) Snapshot {
	return Snapshot{
		PacksSeen:             cur.PacksSeen - prev.PacksSeen,
		PacksDropped:          cur.PacksDropped - prev.PacksDropped,
		BytesWritten:          cur.BytesWritten - prev.BytesWritten,
		HaveBeamformed:        cur.HaveBeamformed,
		BeamformedGoodPacks:   cur.BeamformedGoodPacks - prev.BeamformedGoodPacks,
		BeamformedFirstPackno: prev.BeamformedLastPackno,
		BeamformedLastPackno:  cur.BeamformedLastPackno,
	}
}
