// Package watcher monitors a knowledge directory and queues ingestion
// jobs for files dropped into it.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aurawell/companion-backend/internal/core/ports"
)

const defaultDebounce = 2 * time.Second

// Watcher publishes one ingest job per settled file. Editors and copies
// emit create/write bursts for a single file, so publication is
// debounced per path.
type Watcher struct {
	dir      string
	queue    ports.IngestQueue
	supports func(path string) bool
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(dir string, queue ports.IngestQueue, supports func(string) bool, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      dir,
		queue:    queue,
		supports: supports,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches the directory until ctx is cancelled. Returns when the
// context ends or the underlying watcher cannot be created.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("watch_started", "dir", w.dir, "debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				w.cancelPending()
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if w.supports != nil && !w.supports(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				w.cancelPending()
				return nil
			}
			slog.Warn("watcher_error", "dir", w.dir, "error", err)
		}
	}
}

// schedule arms (or re-arms) the per-path debounce timer. The job is
// published once the path has been quiet for the debounce window.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.publish(ctx, path)
	})
}

func (w *Watcher) publish(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	job := ports.IngestJob{
		Path:     path,
		Metadata: map[string]string{"origin": "watch_dir"},
	}
	if err := w.queue.PublishIngestJob(ctx, job); err != nil {
		slog.Warn("watch_publish_failed", "path", path, "error", err)
		return
	}
	slog.Info("watch_file_queued", "path", path)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
