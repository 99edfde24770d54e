// Package watch recompiles a rules directory whenever its CUE files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/latch/internal/compiler"
)

// DefaultDebounce is how long the directory must stay quiet before a
// recompile. Editors often write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives every successfully compiled rule set.
type ReloadFunc func(result *compiler.LoadResult)

// Stats tracks watcher activity.
type Stats struct {
	Events   int
	Reloads  int
	Failures int
	Errors   int
}

// Watcher watches one rules directory.
//
// A burst of .cue events is collapsed into one recompile once the
// directory has been quiet for the debounce window. A rule set that fails
// to compile or validate is logged and dropped; the callback only ever
// sees rule sets that passed.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc
	logger   *slog.Logger

	mu        sync.Mutex
	pending   bool
	lastEvent time.Time
	running   bool
	stats     Stats

	// stopCh and doneCh belong to the current event loop; Start
	// replaces them, so a watcher whose ctx was cancelled can start again.
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window before a recompile.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for dir. Call Start to begin watching and Stop to
// release the underlying inotify handle.
func New(dir string, onReload ReloadFunc, opts ...Option) (*Watcher, error) {
	if onReload == nil {
		return nil, errors.New("watch: reload callback is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		watcher:  fw,
		debounce: DefaultDebounce,
		onReload: onReload,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It does not block; the event loop runs until ctx
// is cancelled or Stop is called. Starting a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching rules", "dir", w.dir, "debounce", w.debounce)

	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop ends the event loop, waits for it and closes the inotify handle.
// Safe to call more than once, and without Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running, stop, done := w.running, w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	if running {
		close(stop)
	}
	if done != nil {
		<-done
	}
	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("closing watcher", "error", err)
		}
	})
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		w.mu.Lock()
		if w.stopCh == stop {
			w.running = false
		}
		w.mu.Unlock()
	}()

	tick := time.NewTicker(max(w.debounce/4, 5*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case now := <-tick.C:
			w.mu.Lock()
			due := w.pending && now.Sub(w.lastEvent) >= w.debounce
			if due {
				w.pending = false
			}
			w.mu.Unlock()
			if due {
				w.Reload()
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != ".cue" {
		return
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("rules changed", "file", ev.Name, "op", ev.Op.String())

	w.mu.Lock()
	w.stats.Events++
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// Reload compiles and validates the directory now and hands a passing
// rule set to the callback. It reports whether the callback ran.
func (w *Watcher) Reload() bool {
	result, err := compiler.Load(w.dir)
	if err != nil {
		w.logger.Error("rules rejected, keeping previous rule set", "dir", w.dir, "error", err)
		w.mu.Lock()
		w.stats.Failures++
		w.mu.Unlock()
		return false
	}
	for _, warn := range compiler.AnalyzeCycles(result.Rules) {
		w.logger.Warn("rule cycle", "message", warn.Message)
	}

	w.mu.Lock()
	w.stats.Reloads++
	w.mu.Unlock()
	w.logger.Info("rules reloaded", "dir", w.dir, "rules", len(result.Rules), "files", result.FileCount)
	w.onReload(result)
	return true
}
