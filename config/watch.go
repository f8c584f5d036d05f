package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands the
// new config to subscribers. Reload failures keep the last good config.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config
	on      []func(*Config)
}

// NewWatcher creates a watcher seeded with the given config.
func NewWatcher(path string, initial *Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, current: initial, logger: logger}
}

// Current returns the most recent valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload registers a callback invoked with each new valid config.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.on = append(w.on, fn)
}

// Run watches until the context is cancelled. Write events are debounced
// because editors produce bursts of them.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		return err
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, w.reload)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("Reloaded config is invalid, keeping previous", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*Config), len(w.on))
	copy(callbacks, w.on)
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}
