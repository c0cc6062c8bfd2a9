package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucasnoah/sitefactory/internal/config"
	"github.com/lucasnoah/sitefactory/internal/report"
)

type fakeRunner struct {
	mu      sync.Mutex
	fail    bool
	calls   int
	counts  []int
	stopped int
	ran     chan struct{}
}

func (f *fakeRunner) RunSession(ctx context.Context, cfg *config.Config) (*report.SessionReport, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.counts = append(f.counts, cfg.Session.WebsiteCount)
	fail := f.fail
	f.mu.Unlock()
	if f.ran != nil {
		defer func() { f.ran <- struct{}{} }()
	}

	rep := &report.SessionReport{
		SessionID:     fmt.Sprintf("sess-%d", n),
		Status:        "completed",
		TotalWebsites: cfg.Session.WebsiteCount,
		AverageScore:  8,
	}
	if fail {
		rep.Status = "failed"
		return rep, errors.New("browser crashed")
	}
	return rep, nil
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeRunner) CurrentSessionID() string { return "sess-live" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	cfg.Session.WebsiteCount = 2
	return cfg
}

func TestRunOnce_SuccessRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	c := New(testConfig(t), dir, r)

	rep, err := c.RunOnce(context.Background(), 4)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.TotalWebsites != 4 || r.counts[0] != 4 {
		t.Errorf("count override not applied: %v", r.counts)
	}

	st, err := LoadState(c.StatePath())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.Status != StatusIdle || st.ConsecutiveErrors != 0 {
		t.Errorf("state = %s/%d", st.Status, st.ConsecutiveErrors)
	}
	if len(st.History) != 1 || st.History[0].SessionID != "sess-1" || st.History[0].AverageScore != 8 {
		t.Errorf("history = %+v", st.History)
	}
}

func TestRunOnce_CircuitOpensAfterMaxFailures(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{fail: true}
	c := New(testConfig(t), dir, r)
	if err := AcquirePID(c.PIDPath()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	for i := 1; i < config.DefaultMaxConsecutiveErrors; i++ {
		_, err := c.RunOnce(context.Background(), 0)
		if err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("run %d: err = %v, want plain failure", i, err)
		}
		if got := c.State().ConsecutiveErrors; got != i {
			t.Errorf("run %d: consecutive errors = %d", i, got)
		}
	}
	if _, err := os.Stat(c.PIDPath()); err != nil {
		t.Fatalf("PID file removed before circuit opened: %v", err)
	}

	_, err := c.RunOnce(context.Background(), 0)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if _, err := os.Stat(c.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("PID file still present after circuit opened: %v", err)
	}

	st := c.State()
	if st.Status != StatusError || st.ShutdownReason != ReasonCircuitOpen {
		t.Errorf("state = %s reason=%q", st.Status, st.ShutdownReason)
	}
	if st.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestRunOnce_SuccessResetsStreak(t *testing.T) {
	r := &fakeRunner{fail: true}
	c := New(testConfig(t), t.TempDir(), r)

	c.RunOnce(context.Background(), 0)
	c.RunOnce(context.Background(), 0)
	if c.State().ConsecutiveErrors != 2 {
		t.Fatalf("streak = %d, want 2", c.State().ConsecutiveErrors)
	}

	r.fail = false
	if _, err := c.RunOnce(context.Background(), 0); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if st := c.State(); st.ConsecutiveErrors != 0 || st.Status != StatusIdle {
		t.Errorf("state after success = %s/%d", st.Status, st.ConsecutiveErrors)
	}
}

func TestHistory_IsBoundedRing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.HistoryLimit = 3
	c := New(cfg, t.TempDir(), &fakeRunner{})

	for i := 0; i < 5; i++ {
		if _, err := c.RunOnce(context.Background(), 0); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	h := c.State().History
	if len(h) != 3 {
		t.Fatalf("history len = %d, want 3", len(h))
	}
	if h[0].SessionID != "sess-3" || h[2].SessionID != "sess-5" {
		t.Errorf("history = %s..%s, want sess-3..sess-5", h[0].SessionID, h[2].SessionID)
	}
}

func TestHistory_LimitCappedAtMax(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.HistoryLimit = 500
	c := New(cfg, t.TempDir(), &fakeRunner{})
	if got := c.historyLimit(); got != config.MaxHistoryLimit {
		t.Errorf("limit = %d, want %d", got, config.MaxHistoryLimit)
	}
}

func TestNew_RestoresHistory(t *testing.T) {
	dir := t.TempDir()
	first := New(testConfig(t), dir, &fakeRunner{})
	first.RunOnce(context.Background(), 0)

	second := New(testConfig(t), dir, &fakeRunner{})
	if h := second.State().History; len(h) != 1 {
		t.Errorf("restored history = %+v", h)
	}
}

func TestHealth_CollectsAboveCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.HeapCeilingMB = 100
	c := New(cfg, t.TempDir(), &fakeRunner{})
	gcs := 0
	c.gc = func() { gcs++ }

	c.readHeap = func() uint64 { return 50 << 20 }
	c.Health()
	if gcs != 0 {
		t.Errorf("gc ran below ceiling")
	}
	if c.State().MemoryMB != 50 {
		t.Errorf("memory = %d, want 50", c.State().MemoryMB)
	}

	c.readHeap = func() uint64 { return 200 << 20 }
	c.Health()
	if gcs != 1 {
		t.Errorf("gc runs = %d, want 1", gcs)
	}

	st, err := LoadState(c.StatePath())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.LastActivity.IsZero() || st.MemoryMB != 200 {
		t.Errorf("persisted state = %+v", st)
	}
}

func TestServe_RunsSessionAndShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{ran: make(chan struct{}, 1)}
	c := New(testConfig(t), dir, r)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Serve(ctx) }()

	select {
	case <-r.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("no session ran")
	}
	if pid, err := ReadPIDFile(c.PIDPath()); err != nil || pid != os.Getpid() {
		t.Errorf("PID file = %d, %v", pid, err)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, err := os.Stat(c.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("PID file not released: %v", err)
	}
	st, err := LoadState(c.StatePath())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.ShutdownReason != ReasonSignal || len(st.History) != 1 {
		t.Errorf("state = %+v", st)
	}
}

func TestServe_RefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()
	c := New(testConfig(t), dir, &fakeRunner{})
	if err := WritePIDFile(c.PIDPath(), os.Getppid()); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := c.Serve(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestServe_RejectsZeroInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.HealthInterval = "0s"
	c := New(cfg, t.TempDir(), &fakeRunner{})
	err := c.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "must be positive") {
		t.Fatalf("err = %v, want interval error", err)
	}
	if _, err := os.Stat(c.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("PID file written for a rejected config: %v", err)
	}
}

func TestFollowLog_PrintsRecentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFile)
	var content strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&content, "line %d\n\n", i)
	}
	if err := os.WriteFile(path, []byte(content.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := FollowLog(context.Background(), path, 3, false, &buf); err != nil {
		t.Fatalf("FollowLog: %v", err)
	}
	if got, want := buf.String(), "line 28\nline 29\nline 30\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestFollowLog_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := FollowLog(context.Background(), filepath.Join(t.TempDir(), "nope.log"), 5, false, &buf)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
