package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the configuration when its file changes on disk.
// Reloads that fail validation keep the previous configuration.
type Watcher struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current *Config
}

// NewWatcher loads the configuration and prepares for watching.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    path,
		logger:  logger.With().Str("component", "config-watcher").Logger(),
		current: cfg,
	}, nil
}

// Current returns the most recent valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Watch starts watching the config file and invokes onReload with each
// successfully reloaded configuration. It returns immediately; watching
// stops when the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	go w.processEvents(ctx, onReload)

	w.logger.Info().Str("path", w.path).Msg("Started watching config file")
	return nil
}

// processEvents debounces file events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context, onReload func(*Config)) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if w.watcher != nil {
				_ = w.watcher.Close()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Config file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				w.reload(onReload)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload(onReload func(*Config)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload config, keeping previous")
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info().Msg("Config reloaded")
	if onReload != nil {
		onReload(cfg)
	}
}
