package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aurawell/companion-backend/internal/core/ports"
)

type queueFake struct {
	mu   sync.Mutex
	jobs []ports.IngestJob
	ch   chan struct{}
}

func newQueueFake() *queueFake {
	return &queueFake{ch: make(chan struct{}, 16)}
}

func (q *queueFake) PublishIngestJob(_ context.Context, job ports.IngestJob) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	select {
	case q.ch <- struct{}{}:
	default:
	}
	return nil
}

func (q *queueFake) SubscribeIngestJobs(ctx context.Context, _ func(context.Context, ports.IngestJob) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (q *queueFake) snapshot() []ports.IngestJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ports.IngestJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

func waitForJobs(t *testing.T, q *queueFake, want int) []ports.IngestJob {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if jobs := q.snapshot(); len(jobs) >= want {
			return jobs
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d jobs, have %d", want, len(q.snapshot()))
		case <-q.ch:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func startWatcher(t *testing.T, dir string, q *queueFake) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(dir, q, func(p string) bool { return filepath.Ext(p) == ".txt" }, 50*time.Millisecond)
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v", err)
		}
	}()
	time.Sleep(200 * time.Millisecond)
	return cancel
}

func TestWatcherQueuesSettledFileOnce(t *testing.T) {
	dir := t.TempDir()
	q := newQueueFake()
	cancel := startWatcher(t, dir, q)
	defer cancel()

	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(path, []byte("hello again"), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}

	jobs := waitForJobs(t, q, 1)
	if jobs[0].Path != path {
		t.Fatalf("job path = %q, want %q", jobs[0].Path, path)
	}
	if jobs[0].Metadata["origin"] != "watch_dir" {
		t.Fatalf("job metadata = %v", jobs[0].Metadata)
	}

	time.Sleep(200 * time.Millisecond)
	if got := len(q.snapshot()); got != 1 {
		t.Fatalf("burst of writes published %d jobs, want 1", got)
	}
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	q := newQueueFake()
	cancel := startWatcher(t, dir, q)
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "image.bin"), []byte{0x1}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	supported := filepath.Join(dir, "after.txt")
	if err := os.WriteFile(supported, []byte("text"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	jobs := waitForJobs(t, q, 1)
	for _, job := range jobs {
		if job.Path != supported {
			t.Fatalf("unsupported file queued: %q", job.Path)
		}
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, newQueueFake(), nil, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop after cancel")
	}
}
