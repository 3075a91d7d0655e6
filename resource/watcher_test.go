package resource

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(0, func(string) {}); err == nil {
		t.Fatal("expected error for zero debounce")
	}
	if _, err := NewWatcher(time.Millisecond, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestWatcherReportsSettledChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var mu sync.Mutex
	var changed []string
	watcher, err := NewWatcher(20*time.Millisecond, func(path string) {
		mu.Lock()
		changed = append(changed, path)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() {
		if err := watcher.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})

	if err := watcher.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	watcher.Start(context.Background())

	target := filepath.Join(dir, "site.css")
	if err := os.WriteFile(target, []byte("body{}"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		got := len(changed)
		mu.Unlock()
		if got > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for change notification")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if changed[0] != target {
		t.Fatalf("changed path = %q, want %q", changed[0], target)
	}
}

func TestWatcherWatchMissingFolder(t *testing.T) {
	t.Parallel()

	watcher, err := NewWatcher(20*time.Millisecond, func(string) {})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() {
		if err := watcher.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})

	if err := watcher.Watch(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing folder")
	}
}

func TestWatcherCloseWithoutStart(t *testing.T) {
	t.Parallel()

	watcher, err := NewWatcher(20*time.Millisecond, func(string) {})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestWatcherCloseStopsDelivery(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	watcher, err := NewWatcher(20*time.Millisecond, func(string) {})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := watcher.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	watcher.Start(context.Background())

	if err := watcher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Second close must not hang on the already-drained loop.
	_ = watcher.Close()
}
