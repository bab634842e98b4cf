// Package persist adapts a key/value backend into typed, fault-tolerant
// load and save operations. Storage failures never reach callers as panics:
// loads fall back to defaults and saves are logged.
package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Storage keys for the two persisted records.
const (
	KeyPrompts  = "promptrium_prompts"
	KeySettings = "promptrium_settings"
)

// ErrUnavailable is returned when no backend is attached.
var ErrUnavailable = errors.New("storage unavailable")

// Backend is a string-keyed byte store.
type Backend interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Adapter wraps a Backend with JSON encoding and merge-on-load semantics.
// A nil backend means storage is unavailable; every operation degrades
// gracefully in that case.
type Adapter struct {
	mu      sync.RWMutex
	backend Backend
}

// NewAdapter creates an adapter over b. b may be nil.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{backend: b}
}

// SetBackend swaps the backend, e.g. after the database file was recreated.
func (a *Adapter) SetBackend(b Backend) {
	a.mu.Lock()
	a.backend = b
	a.mu.Unlock()
}

// Available reports whether a backend is attached.
func (a *Adapter) Available() bool {
	return a.current() != nil
}

func (a *Adapter) current() Backend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend
}

// Exists reports whether key holds a non-empty value.
func (a *Adapter) Exists(ctx context.Context, key string) bool {
	raw, ok := a.read(ctx, key)
	return ok && len(bytes.TrimSpace(raw)) > 0
}

// Save serializes value and writes it under key. Failures are logged and
// returned; callers treat persistence as best effort.
func (a *Adapter) Save(ctx context.Context, key string, value any) error {
	b := a.current()
	if b == nil {
		return ErrUnavailable
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode value")
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Set(ctx, key, data); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write value")
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) read(ctx context.Context, key string) ([]byte, bool) {
	b := a.current()
	if b == nil {
		return nil, false
	}
	raw, ok, err := b.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to read value")
		return nil, false
	}
	return raw, ok
}

// Load reads key and decodes it into a T.
//
// A missing, empty, null or unparseable value yields def. When both def and
// the stored value are JSON objects the result is a shallow merge with stored
// fields winning, so records written by older versions pick up new defaults.
// Any other stored value replaces def outright.
func Load[T any](ctx context.Context, a *Adapter, key string, def T) T {
	raw, ok := a.read(ctx, key)
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return def
	}

	if !json.Valid(raw) {
		log.Warn().Str("key", key).Msg("Stored value is not valid JSON, using default")
		return def
	}

	if raw[0] == '{' {
		if merged, ok := mergeObject(raw, def); ok {
			raw = merged
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Stored value has unexpected shape, using default")
		return def
	}
	return out
}

// mergeObject overlays the stored object onto the encoded default. It reports
// false when def does not encode to an object.
func mergeObject(stored []byte, def any) ([]byte, bool) {
	base, err := json.Marshal(def)
	if err != nil {
		return nil, false
	}
	base = bytes.TrimSpace(base)
	if len(base) == 0 || base[0] != '{' {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, false
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(stored, &overlay); err != nil {
		return nil, false
	}
	for k, v := range overlay {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, false
	}
	return merged, true
}
