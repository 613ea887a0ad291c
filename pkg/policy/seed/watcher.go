package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// ErrWatcherRunning is returned by Watch when the watcher is already active.
var ErrWatcherRunning = errors.New("watcher already running")

// WatcherConfig contains configuration for the seed watcher.
type WatcherConfig struct {
	// Patterns are the seed patterns whose files trigger reloads.
	Patterns []string

	// DebounceInterval is the quiet period before a reload fires
	// (default: 200ms).
	DebounceInterval time.Duration

	// Extensions is the list of file extensions to react to.
	Extensions []string

	// SkipHidden ignores dot files and dot directories.
	SkipHidden bool
}

// DefaultWatcherConfig returns the default watcher configuration.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		DebounceInterval: 200 * time.Millisecond,
		Extensions:       []string{".yaml", ".yml"},
		SkipHidden:       true,
	}
}

// Watcher watches the directories behind the seed patterns and calls back
// after changes settle.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	config   *WatcherConfig
	debounce *Debouncer
	patterns []string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher. Nothing is watched until Watch is called.
func NewWatcher(config *WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if config == nil {
		config = DefaultWatcherConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultWatcherConfig().DebounceInterval
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultWatcherConfig().Extensions
	}
	if len(config.Patterns) == 0 {
		return nil, fmt.Errorf("no seed patterns to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	patterns := make([]string, len(config.Patterns))
	for i, p := range config.Patterns {
		patterns[i] = filepath.Clean(p)
	}

	return &Watcher{
		watcher:  fsw,
		logger:   logger.With("component", "policy.seed.watcher"),
		config:   config,
		debounce: NewDebouncer(config.DebounceInterval),
		patterns: patterns,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onChange
// once per burst of relevant file events.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context) error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	for _, dir := range w.baseDirs() {
		if err := w.addTree(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
	}

	w.logger.Info("seed watcher started",
		"patterns", w.patterns,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("seed watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("seed watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.hidden(event.Name) {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}

			if !w.shouldProcessEvent(event) {
				continue
			}

			w.logger.Debug("seed file event", "path", event.Name, "op", event.Op.String())

			name, op := event.Name, event.Op.String()
			w.debounce.Trigger(func() {
				w.logger.Info("reloading seed files", "path", name, "op", op)
				if err := onChange(ctx); err != nil {
					w.logger.Error("seed reload failed", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("seed watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and releases its resources. It is safe to call
// when Watch was never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// baseDirs returns the static directory prefix of every pattern, without
// duplicates. Missing directories fall back to their nearest existing parent.
func (w *Watcher) baseDirs() []string {
	var dirs []string
	for _, p := range w.patterns {
		var base string
		if hasMeta(p) {
			base, _ = doublestar.SplitPattern(filepath.ToSlash(p))
			base = filepath.FromSlash(base)
		} else {
			base = filepath.Dir(p)
		}
		base = existingParent(base)
		if !slices.Contains(dirs, base) {
			dirs = append(dirs, base)
		}
	}
	return dirs
}

func existingParent(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// addTree adds a directory and all subdirectories to the watcher.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.hidden(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", path, err)
		}
		w.logger.Debug("watching directory", "path", path)
		return nil
	})
}

// shouldProcessEvent determines if an event should trigger a reload.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.hidden(event.Name) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if !slices.ContainsFunc(w.config.Extensions, func(e string) bool { return strings.ToLower(e) == ext }) {
		return false
	}

	name := filepath.Clean(event.Name)
	for _, p := range w.patterns {
		if ok, _ := doublestar.PathMatch(p, name); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) hidden(path string) bool {
	return w.config.SkipHidden && strings.HasPrefix(filepath.Base(path), ".")
}

// Debouncer collects rapid events and runs the latest callback only after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback to run after the interval, replacing any
// callback still waiting.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		d.callback = nil
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
