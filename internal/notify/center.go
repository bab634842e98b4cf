// Package notify keeps the list of transient user notifications (toasts).
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptrium/pkg/models"
)

// DefaultDuration is how long a notification stays visible.
const DefaultDuration = 5000 * time.Millisecond

// Center holds active notifications and expires them after their duration.
// Subscribers are told about every addition.
type Center struct {
	mu       sync.Mutex
	items    []models.Notification
	timers   map[string]*time.Timer
	subs     map[int]func(models.Notification)
	nextSub  int
	duration time.Duration
	closed   bool
}

// NewCenter creates a Center. A non-positive duration selects DefaultDuration.
func NewCenter(duration time.Duration) *Center {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Center{
		timers:   make(map[string]*time.Timer),
		subs:     make(map[int]func(models.Notification)),
		duration: duration,
	}
}

// Success adds a success notification.
func (c *Center) Success(title, message string) {
	c.Add(models.SeveritySuccess, title, message)
}

// Error adds an error notification.
func (c *Center) Error(title, message string) {
	c.Add(models.SeverityError, title, message)
}

// Info adds an informational notification.
func (c *Center) Info(title, message string) {
	c.Add(models.SeverityInfo, title, message)
}

// Warning adds a warning notification.
func (c *Center) Warning(title, message string) {
	c.Add(models.SeverityWarning, title, message)
}

// Add appends a notification and schedules its removal. It returns the new id,
// or "" after Dispose.
func (c *Center) Add(sev models.Severity, title, message string) string {
	n := models.Notification{
		ID:       uuid.New().String(),
		Type:     sev,
		Title:    title,
		Message:  message,
		Duration: int(c.duration / time.Millisecond),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ""
	}
	c.items = append(c.items, n)
	c.timers[n.ID] = time.AfterFunc(c.duration, func() { c.Remove(n.ID) })
	subs := make([]func(models.Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	log.Debug().Str("type", string(sev)).Str("title", title).Msg("Notification")
	for _, fn := range subs {
		fn(n)
	}
	return n.ID
}

// Remove dismisses a notification. Unknown ids are ignored.
func (c *Center) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Clear dismisses every notification.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.items = nil
}

// List returns the active notifications, oldest first.
func (c *Center) List() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Subscribe registers fn for every new notification and returns a function
// that removes the registration.
func (c *Center) Subscribe(fn func(models.Notification)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Dispose cancels pending expirations and stops accepting notifications.
func (c *Center) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimersLocked()
	c.items = nil
	c.subs = make(map[int]func(models.Notification))
}

func (c *Center) stopTimersLocked() {
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
