package plan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher hands record files appearing in the pending area to a
// handler. Writes are debounced per file so a record being copied in
// is handed off once, after it settles.
type Watcher struct {
	store   *Store
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher over the store's pending area.
func NewWatcher(store *Store, logger zerolog.Logger) *Watcher {
	return &Watcher{
		store:  store,
		logger: logger.With().Str("component", "plan-watcher").Logger(),
		timers: make(map[string]*time.Timer),
	}
}

// Watch starts watching and invokes handler with each settled record
// path. Existing pending records are handed off first, in id order.
// Watching stops when the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, handler func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	dir := w.store.AreaDir(AreaPending)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	existing, err := w.store.List(AreaPending)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	for _, path := range existing {
		handler(path)
	}

	go w.processEvents(ctx, handler)

	w.logger.Info().Str("dir", dir).Int("existing", len(existing)).Msg("Watching pending plans")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, handler func(path string)) {
	settleDelay := 500 * time.Millisecond

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
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".toml") {
				continue
			}

			w.mu.Lock()
			if timer, exists := w.timers[event.Name]; exists {
				timer.Stop()
			}
			path := event.Name
			w.timers[path] = time.AfterFunc(settleDelay, func() {
				w.mu.Lock()
				delete(w.timers, path)
				w.mu.Unlock()

				w.logger.Debug().Str("path", path).Msg("Pending plan settled")
				handler(path)
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Plan watcher error")
		}
	}
}
