package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives freshly loaded preferences, or the error that kept
// them from loading.
type ReloadFunc func(Preferences, error)

type watchConfig struct {
	debounce time.Duration
	logger   *slog.Logger
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

// WithDebounce sets the settle time. Zero reloads on every event.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Watch calls fn with reloaded preferences each time the file at path is
// written, created, replaced or removed, until ctx is done.
//
// The parent directory is watched rather than the file so editors that save
// by renaming a temp file are seen. Watch blocks and returns nil when ctx
// is cancelled.
func Watch(ctx context.Context, path string, fn ReloadFunc, opts ...WatchOption) error {
	cfg := watchConfig{
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("component", "config")

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	// A stopped timer with its channel drained stands for "nothing pending".
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	reload := func() {
		prefs, err := Load(absPath)
		if err != nil {
			logger.Warn("preferences not reloaded", "path", absPath, "error", err)
		} else {
			logger.Info("preferences reloaded", "path", absPath)
		}
		fn(prefs, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if filepath.Clean(ev.Name) != absPath || !relevant(ev.Op) {
				continue
			}
			logger.Debug("preferences changed", "path", absPath, "op", ev.Op.String())
			if cfg.debounce == 0 {
				reload()
				continue
			}
			timer.Reset(cfg.debounce)

		case <-timer.C:
			reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) ||
		op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
}
