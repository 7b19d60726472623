package capture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/user/stationrec/internal/logging"
	"github.com/user/stationrec/internal/ring"
	"github.com/user/stationrec/internal/session"
)

// TestSplitFilesBySizeThreshold drives spec.md §8 scenario 4:
// --Maxfilesize 100000 --len 1000 with 350 datagrams should produce
// four files of sizes 100000, 100000, 100000, 50000.
func TestSplitFilesBySizeThreshold(t *testing.T) {
	dir := t.TempDir()
	r, err := ring.Create(1 << 16)
	if err != nil {
		t.Fatalf("ring.Create: %v", err)
	}
	defer r.Destroy()

	log := logging.New("error")
	sess := session.New(r, log)

	cfg := ConsumerConfig{
		Base:        filepath.Join(dir, "capture"),
		PortList:    "1000",
		Hostname:    "stationA",
		PackLen:     1000,
		MaxFileSize: 100000,
		MaxWrite:    1 << 20,
	}
	c := New(cfg, r, sess, log)

	var mu sync.Mutex
	var reports []FileReport
	c.OnFileReport = func(rep FileReport) {
		mu.Lock()
		reports = append(reports, rep)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = c.Run(context.Background())
	}()

	const records = 350
	record := make([]byte, 1000)
	for i := 0; i < records; i++ {
		r.WaitSpace(1000)
		view := r.WriteView(1000)
		copy(view, record)
		r.CommitWrite(1000, view)
	}

	sess.SetStopped(session.Terminate)
	wg.Wait()

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 4 {
		t.Fatalf("got %d file reports, want 4: %+v", len(reports), reports)
	}
	wantSizes := []int64{100000, 100000, 100000, 50000}
	var total int64
	for i, rep := range reports {
		if rep.BytesWritten != wantSizes[i] {
			t.Errorf("file %d: BytesWritten = %d, want %d", i, rep.BytesWritten, wantSizes[i])
		}
		total += rep.BytesWritten

		st, err := os.Stat(rep.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", rep.Path, err)
		}
		if st.Size() != wantSizes[i] {
			t.Errorf("file %d on-disk size = %d, want %d", i, st.Size(), wantSizes[i])
		}
	}
	if total != records*1000 {
		t.Errorf("total bytes across splits = %d, want %d", total, records*1000)
	}
}

// TestSingleFileNoSplitTerminatesOnSignal drives spec.md §8 scenario
// 1: a single file accumulates every written byte and the consumer
// exits cleanly once Terminate is observed with an empty ring.
func TestSingleFileNoSplitTerminatesOnSignal(t *testing.T) {
	dir := t.TempDir()
	r, err := ring.Create(1 << 16)
	if err != nil {
		t.Fatalf("ring.Create: %v", err)
	}
	defer r.Destroy()

	log := logging.New("error")
	sess := session.New(r, log)

	cfg := ConsumerConfig{
		Base:     filepath.Join(dir, "capture"),
		PortList: "16011",
		Hostname: "stationA",
		PackLen:  7824,
		MaxWrite: 1 << 20,
	}
	c := New(cfg, r, sess, log)

	var mu sync.Mutex
	var reports []FileReport
	c.OnFileReport = func(rep FileReport) {
		mu.Lock()
		reports = append(reports, rep)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = c.Run(context.Background())
	}()

	const records = 1000
	record := make([]byte, 7824)
	for i := 0; i < records; i++ {
		r.WaitSpace(7824)
		view := r.WriteView(7824)
		copy(view, record)
		r.CommitWrite(7824, view)
	}

	sess.SetStopped(session.Terminate)
	wg.Wait()

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("got %d file reports, want 1: %+v", len(reports), reports)
	}
	if want := int64(records * 7824); reports[0].BytesWritten != want {
		t.Errorf("BytesWritten = %d, want %d", reports[0].BytesWritten, want)
	}
}
