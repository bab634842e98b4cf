// Package watcher provides file system watching utilities for detecting
// when the database or the settings file is deleted or rewritten.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptrium/internal/debounce"
)

// DefaultDelay is the quiet period before a handler runs.
const DefaultDelay = 100 * time.Millisecond

// Kind classifies what happened to the target.
type Kind int

const (
	// Removed means the target (or its directory) is gone.
	Removed Kind = iota + 1
	// Changed means the target was written or recreated.
	Changed
)

// Handlers are called from the watcher's goroutine after the quiet period.
// Either may be nil.
type Handlers struct {
	OnRemove func()
	OnChange func()
}

// Watcher monitors a file for deletion and modification.
// It watches the parent directory since fsnotify cannot watch non-existent files.
type Watcher struct {
	targetPath string // The file to watch
	parentPath string // Parent directory (what we actually watch)
	handlers   Handlers
	watcher    *fsnotify.Watcher
	events     *debounce.Debouncer[Kind]
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	done       chan struct{}
}

// New creates a new Watcher for the given target path.
func New(targetPath string, h Handlers) (*Watcher, error) {
	return NewWithDelay(targetPath, h, DefaultDelay)
}

// NewWithDelay is New with an explicit quiet period.
func NewWithDelay(targetPath string, h Handlers, delay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		targetPath: filepath.Clean(targetPath),
		parentPath: filepath.Dir(filepath.Clean(targetPath)),
		handlers:   h,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	w.events = debounce.New(delay, w.dispatch)
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Add watch on parent directory
	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - we'll try to re-establish later
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher. Pending handlers are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.events.Stop()
	err := w.watcher.Close()
	<-w.done
	return err
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.targetPath
}

// addWatch adds the parent directory to the watch list.
func (w *Watcher) addWatch() error {
	// Ensure parent exists
	if _, err := os.Stat(w.parentPath); err != nil {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

// watchLoop is the main event loop.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	eventPath := filepath.Clean(event.Name)
	gone := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0

	switch {
	// Handle parent directory deletion (entire data dir removed)
	case eventPath == w.parentPath && gone:
		log.Info().Str("path", w.parentPath).Msg("Parent directory deleted")
		w.schedule(Removed)

	case eventPath == w.targetPath && gone:
		log.Info().Str("path", w.targetPath).Msg("Target deleted")
		w.schedule(Removed)

	// Handle parent directory recreation (re-establish watch)
	case eventPath == w.parentPath && event.Op&fsnotify.Create != 0:
		log.Info().Str("path", w.parentPath).Msg("Parent directory recreated, re-establishing watch")
		_ = w.addWatch()

	// A recreated target replaces a pending deletion: editors save by
	// rename-and-create.
	case eventPath == w.targetPath && event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.schedule(Changed)
	}
}

func (w *Watcher) schedule(k Kind) {
	w.events.Call(k)
}

func (w *Watcher) dispatch(k Kind) {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	switch k {
	case Removed:
		w.handleDeletion()
	case Changed:
		log.Info().Str("path", w.targetPath).Msg("Target changed")
		if w.handlers.OnChange != nil {
			w.handlers.OnChange()
		}
	}
}

// handleDeletion calls the OnRemove callback and attempts to re-establish the watch.
func (w *Watcher) handleDeletion() {
	log.Info().Str("path", w.targetPath).Msg("Triggering deletion callback")

	if w.handlers.OnRemove != nil {
		w.handlers.OnRemove()
	}

	// The callback may have recreated the parent directory.
	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to re-establish watch after deletion")
		return
	}
	log.Info().Str("path", w.parentPath).Msg("Re-established watch after recreation")
}
