package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// DirWatcher emits a checkpoint event for each .txt file created or
// written in a directory. A file is read only after it has been quiet for
// the settle delay, since writers report changes before they finish.
type DirWatcher struct {
	dir     string
	settle  time.Duration
	log     *slog.Logger
	watcher *fsnotify.Watcher
	reads   *rate.Limiter
	errLog  rate.Sometimes

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewDirWatcher creates dir if needed and starts watching it.
func NewDirWatcher(dir string, settle time.Duration, log *slog.Logger) (*DirWatcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating checkpoints dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if settle <= 0 {
		settle = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &DirWatcher{
		dir:     dir,
		settle:  settle,
		log:     log,
		watcher: w,
		reads:   rate.NewLimiter(rate.Limit(20), 20),
		errLog:  rate.Sometimes{Interval: time.Minute},
		pending: make(map[string]time.Time),
	}, nil
}

// Dir returns the watched directory.
func (w *DirWatcher) Dir() string {
	return w.dir
}

// Run forwards settled file changes to out until ctx is done. It closes
// the underlying watcher on return.
func (w *DirWatcher) Run(ctx context.Context, out chan<- Event) error {
	defer func() { _ = w.watcher.Close() }()

	tick := w.settle / 2
	if tick < 25*time.Millisecond {
		tick = 25 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					w.forget(ev.Name)
				}
				continue
			}
			if !IsCheckpointName(filepath.Base(ev.Name)) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.errLog.Do(func() { w.log.Warn("checkpoint watcher error", "dir", w.dir, "err", err) })

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				if err := w.reads.Wait(ctx); err != nil {
					return nil //nolint:nilerr // ctx cancelled
				}
				ev, err := ReadCheckpoint(path)
				if err != nil {
					if !os.IsNotExist(err) {
						w.log.Warn("reading checkpoint failed", "path", path, "err", err)
					}
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// settled pops every pending path whose last change is older than the
// settle delay.
func (w *DirWatcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *DirWatcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}
