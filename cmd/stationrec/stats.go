package main

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/user/stationrec/internal/metrics"
	"github.com/user/stationrec/internal/portstats"
	"github.com/user/stationrec/internal/ring"
	"github.com/user/stationrec/internal/session"
)

// statsReporter formats the per-port and ring-fill statistics report
// (spec.md §4.5) at both the periodic ~1GiB progress milestones and
// file-close events, and updates the matching Prometheus series at
// the same sites rather than recomputing them separately.
type statsReporter struct {
	log  zerolog.Logger
	last map[int]portstats.Snapshot
}

func newStatsReporter(log zerolog.Logger) *statsReporter {
	return &statsReporter{log: log, last: map[int]portstats.Snapshot{}}
}

func (r *statsReporter) report(event string, ports []*portstats.Port, rb *ring.Ring, sess *session.Session) {
	for _, p := range ports {
		cur := p.Snapshot()
		delta := portstats.Delta(r.last[p.Number], cur)
		r.last[p.Number] = cur

		label := strconv.Itoa(p.Number)
		metrics.PacksSeen.WithLabelValues(label).Add(float64(delta.PacksSeen))
		metrics.PacksDropped.WithLabelValues(label).Add(float64(delta.PacksDropped))
		metrics.BytesWritten.WithLabelValues(label).Add(float64(delta.BytesWritten))

		ev := r.log.Info().
			Str("event", event).
			Int("port", p.Number).
			Int64("packs_seen", cur.PacksSeen).
			Int64("packs_dropped", cur.PacksDropped).
			Int64("bytes_written", cur.BytesWritten)

		if cur.HaveBeamformed {
			metrics.BeamformedGood.WithLabelValues(label).Add(float64(delta.BeamformedGoodPacks))
			rec := cur.Reconcile()
			ev = ev.
				Int64("beamformed_expected", rec.Expected).
				Int64("beamformed_missed", rec.Missed).
				Int64("beamformed_good", rec.Good).
				Int64("beamformed_written", rec.Written)
		}
		ev.Msg("statistics")
	}

	if sess != nil {
		metrics.SessionStopped.Set(float64(sess.Stopped()))
	}

	if rb == nil {
		return
	}
	max, mean := rb.FillStats()
	metrics.RingFill.Set(float64(rb.Fill()))
	metrics.RingFillMax.Set(float64(max))
	r.log.Info().
		Str("event", event).
		Int("ring_fill", rb.Fill()).
		Int("ring_fill_max", max).
		Float64("ring_fill_mean", mean).
		Int("ring_capacity", rb.Capacity()).
		Msg("ring fill")
}
