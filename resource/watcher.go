package resource

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports settled changes in watched resource folders.
//
// Rapid save bursts from editors collapse into one notification per path
// once the debounce window passes.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange func(path string)
	debounce time.Duration
	pending  map[string]time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher that calls onChange for each settled path.
func NewWatcher(debounce time.Duration, onChange func(path string)) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive")
	}
	if onChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	return &Watcher{
		watcher:  fsWatcher,
		onChange: onChange,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch adds a folder to the watch set.
func (w *Watcher) Watch(folder string) error {
	if err := w.watcher.Add(folder); err != nil {
		return fmt.Errorf("watch folder %s: %w", folder, err)
	}
	return nil
}

// Start begins delivering change notifications. Non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Close stops the watcher and waits for the event loop to drain.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tickEvery := w.debounce / 2
	if tickEvery < 10*time.Millisecond {
		tickEvery = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.record(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("resource watcher: %v", err)
		case <-ticker.C:
			w.flushSettled()
		}
	}
}

// record notes a change for debounced delivery.
func (w *Watcher) record(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flushSettled fires the callback for paths quiet past the debounce window.
func (w *Watcher) flushSettled() {
	now := time.Now()

	w.mu.Lock()
	var settled []string
	for path, lastEvent := range w.pending {
		if now.Sub(lastEvent) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.onChange(path)
	}
}
