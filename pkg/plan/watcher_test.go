package plan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherHandsOffExisting(t *testing.T) {
	store := newTestStore(t)
	rec := validRecord()
	if err := store.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	w := NewWatcher(store, zerolog.Nop())
	err := w.Watch(ctx, func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != rec.Task.File {
		t.Errorf("Expected the existing plan handed off, got %v", seen)
	}
}

func TestWatcherPicksUpNewPlans(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handed := make(chan string, 4)
	w := NewWatcher(store, zerolog.Nop())
	if err := w.Watch(ctx, func(path string) { handed <- path }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	path := filepath.Join(store.AreaDir(AreaPending), "incoming.toml")
	if err := os.WriteFile(path, []byte(handWrittenPlan), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-handed:
		if got != path {
			t.Errorf("Expected %s, got %s", path, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher never handed off the new plan")
	}
}

func TestWatcherIgnoresNonTOML(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handed := make(chan string, 4)
	w := NewWatcher(store, zerolog.Nop())
	if err := w.Watch(ctx, func(path string) { handed <- path }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	other := filepath.Join(store.AreaDir(AreaPending), "notes.txt")
	if err := os.WriteFile(other, []byte("scratch"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-handed:
		t.Errorf("Unexpected hand-off: %s", got)
	case <-time.After(1 * time.Second):
	}
}
