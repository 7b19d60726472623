// Package metrics exposes the session's counters as Prometheus series,
// updated at the same sites as the stderr statistics report rather
// than recomputed separately.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PacksSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationrec_packets_seen_total",
		Help: "Datagrams on a port that passed the fixed-length check, whether enqueued or dropped.",
	}, []string{"port"})

	PacksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationrec_packets_dropped_total",
		Help: "Datagrams discarded for lack of ring buffer space.",
	}, []string{"port"})

	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationrec_bytes_written_total",
		Help: "Bytes committed to the ring buffer for a port, including any size-head prefix.",
	}, []string{"port"})

	BeamformedGood = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationrec_beamformed_good_total",
		Help: "Packets with a LOFAR header that passed the error/timestamp check.",
	}, []string{"port"})

	RingFill = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationrec_ring_fill_bytes",
		Help: "Most recently observed ring buffer fill level, in bytes.",
	})

	RingFillMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationrec_ring_fill_max_bytes",
		Help: "High-water mark of the ring buffer fill level since process start.",
	})

	FilesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationrec_files_opened_total",
		Help: "Output files closed with a statistics report; split files count only when per-split statistics are on, and a file still open is not counted.",
	})

	SessionStopped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationrec_session_stopped_state",
		Help: "Current value of the session stopped tri-state (-1, 0, 1, 2).",
	})
)

// Serve serves /metrics until the context is canceled. Errors other
// than a clean shutdown, including a listen failure at startup, are
// returned to the caller.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
