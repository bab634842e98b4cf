package clipboard

import (
	"context"
	"sync"
	"time"
)

// DefaultResetDelay is how long a successful copy stays flagged as copied.
const DefaultResetDelay = 2000 * time.Millisecond

// Tracker holds the "copied" indicator for one copy source, such as a prompt
// card. The flag clears after the reset delay or as soon as any copy starts
// through the same Manager.
type Tracker struct {
	mgr   *Manager
	delay time.Duration

	mu          sync.Mutex
	copied      bool
	gen         uint64
	timer       *time.Timer
	unsubscribe func()
}

// NewTracker creates a Tracker bound to mgr. A non-positive delay selects
// DefaultResetDelay.
func NewTracker(mgr *Manager, delay time.Duration) *Tracker {
	if delay <= 0 {
		delay = DefaultResetDelay
	}
	t := &Tracker{mgr: mgr, delay: delay}
	t.unsubscribe = mgr.OnNewOperation(t.Reset)
	return t
}

// Copy copies text through the manager and raises the flag on success. The
// flag stays down when a newer copy started after this one finished writing.
func (t *Tracker) Copy(ctx context.Context, text string) (bool, error) {
	t.Reset()

	id, ok, err := t.mgr.copy(ctx, text)
	if !ok {
		return false, err
	}

	t.mu.Lock()
	if t.mgr.superseded(id) {
		t.mu.Unlock()
		return true, nil
	}
	t.stopLocked()
	t.copied = true
	gen := t.gen
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.gen == gen {
			t.copied = false
			t.timer = nil
		}
	})
	t.mu.Unlock()
	return true, nil
}

// Copied reports whether the last copy succeeded and has not been reset.
func (t *Tracker) Copied() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copied
}

// Reset clears the flag and cancels the pending reset.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.copied = false
}

// Close detaches the tracker from its manager.
func (t *Tracker) Close() {
	t.Reset()
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

func (t *Tracker) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
