// Package clipboard copies prompt text to the system clipboard. Concurrent
// copies supersede each other: only the most recent copy can report success.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned by writers that cannot reach a clipboard.
var ErrUnavailable = errors.New("clipboard unavailable")

// Writer puts text on a clipboard.
type Writer interface {
	Write(ctx context.Context, text string) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, text string) error

func (f WriterFunc) Write(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Manager serializes copy operations through a sequence counter. Each Copy
// takes the next sequence number and cancels the copy before it; a copy whose
// number is no longer current when its write finishes reports false.
type Manager struct {
	primary  Writer
	fallback Writer

	mu        sync.Mutex
	seq       uint64
	cancel    context.CancelFunc
	callbacks map[int]func()
	nextCB    int
}

// NewManager creates a Manager. fallback is used when primary is nil or
// fails; either may be nil.
func NewManager(primary, fallback Writer) *Manager {
	return &Manager{
		primary:   primary,
		fallback:  fallback,
		callbacks: make(map[int]func()),
	}
}

// OnNewOperation registers fn to run whenever a copy starts. It returns a
// function that removes the registration.
func (m *Manager) OnNewOperation(fn func()) func() {
	m.mu.Lock()
	id := m.nextCB
	m.nextCB++
	m.callbacks[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.callbacks, id)
		m.mu.Unlock()
	}
}

// Copy writes text to the clipboard. It returns (false, nil) when a newer
// copy started before this one finished, and (false, err) when every writer
// failed.
func (m *Manager) Copy(ctx context.Context, text string) (bool, error) {
	_, ok, err := m.copy(ctx, text)
	return ok, err
}

// copy is Copy that also returns the operation's sequence number.
func (m *Manager) copy(ctx context.Context, text string) (uint64, bool, error) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.seq++
	id := m.seq
	opCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	// The sequence moves before callbacks run, so anything a callback resets
	// already sees older copies as superseded.
	m.notifyStart()

	defer func() {
		m.mu.Lock()
		if m.seq == id {
			m.cancel = nil
		}
		m.mu.Unlock()
		cancel()
	}()

	err := write(opCtx, m.primary, text)
	if m.superseded(id) {
		return id, false, nil
	}
	if err != nil && m.fallback != nil {
		log.Debug().Err(err).Msg("Primary clipboard failed, trying fallback")
		err = write(opCtx, m.fallback, text)
		if m.superseded(id) {
			return id, false, nil
		}
	}
	if err != nil {
		return id, false, fmt.Errorf("copy: %w", err)
	}
	return id, true, nil
}

func (m *Manager) superseded(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq != id
}

func (m *Manager) notifyStart() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.callbacks))
	for _, fn := range m.callbacks {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn().Interface("panic", r).Msg("Clipboard reset callback panicked")
				}
			}()
			fn()
		}()
	}
}

// write runs w in its own goroutine so that a cancelled operation returns
// immediately even if the writer blocks.
func write(ctx context.Context, w Writer, text string) error {
	if w == nil {
		return ErrUnavailable
	}
	done := make(chan error, 1)
	go func() {
		done <- w.Write(ctx, text)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
