package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval coalesces editor write bursts into one reload.
const DefaultDebounceInterval = 500 * time.Millisecond

// ReloadFunc is invoked with the freshly loaded configuration after the
// watched file changes and parses cleanly.
type ReloadFunc func(cfg *Config)

// FileWatcher watches a single configuration file and invokes a callback
// when it changes. The parent directory is watched rather than the file
// itself so atomic replace-by-rename (the common editor and configmap
// update pattern) is still observed.
type FileWatcher struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
}

// NewFileWatcher creates a watcher for the given configuration file.
func NewFileWatcher(path string, logger *slog.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		path:     abs,
		logger:   logger,
		debounce: DefaultDebounceInterval,
		watcher:  w,
	}, nil
}

// Watch blocks until ctx is canceled, reloading the configuration and
// calling onReload after each change. Reload failures are logged and the
// previous configuration stays in effect.
func (fw *FileWatcher) Watch(ctx context.Context, onReload ReloadFunc) error {
	defer fw.watcher.Close()

	debouncer := newDebouncer(fw.debounce, func() {
		cfg, err := LoadWithEnvOverrides(fw.path)
		if err != nil {
			fw.logger.Error("config reload failed, keeping previous configuration",
				slog.String("path", fw.path),
				slog.String("error", err.Error()))
			return
		}
		fw.logger.Info("configuration reloaded", slog.String("path", fw.path))
		onReload(cfg)
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if fw.shouldProcessEvent(event) {
				fw.logger.Debug("config file changed",
					slog.String("path", event.Name),
					slog.String("op", event.Op.String()))
				debouncer.Trigger()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Error("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// shouldProcessEvent keeps only events for the watched file itself and
// ignores chmod noise.
func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod != 0 && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == fw.path
}

// debouncer coalesces rapid triggers into a single delayed callback.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	fn       func()
	stopped  bool
}

func newDebouncer(interval time.Duration, fn func()) *debouncer {
	return &debouncer{interval: interval, fn: fn}
}

// Trigger schedules the callback, resetting the delay if one is pending.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fn)
}

// Stop cancels any pending callback.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
