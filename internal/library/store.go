// Package library owns the canonical prompt collection and the settings
// record. Every mutation is written through to the persistence adapter
// before it returns.
package library

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptrium/internal/metrics"
	"github.com/thebtf/promptrium/internal/persist"
	"github.com/thebtf/promptrium/internal/validation"
	"github.com/thebtf/promptrium/internal/view"
	"github.com/thebtf/promptrium/pkg/models"
)

var (
	// ErrNotFound is returned by operations that require an existing prompt.
	ErrNotFound = errors.New("prompt not found")
	// ErrNotInitialized is returned by mutations before Init.
	ErrNotInitialized = errors.New("store not initialized")
	// ErrClosed is returned by mutations after Dispose.
	ErrClosed = errors.New("store disposed")
)

// Notifier receives user-facing feedback for store operations.
type Notifier interface {
	Success(title, message string)
	Error(title, message string)
}

type noopNotifier struct{}

func (noopNotifier) Success(string, string) {}
func (noopNotifier) Error(string, string)   {}

// Op names a mutation, for change events and metrics.
type Op string

const (
	OpAdd            Op = "add"
	OpUpdate         Op = "update"
	OpDelete         Op = "delete"
	OpToggleFavorite Op = "toggle_favorite"
	OpIncrementUsage Op = "increment_usage"
	OpUpdateSettings Op = "update_settings"
	OpReplaceAll     Op = "replace_all"
	OpClearAll       Op = "clear_all"
	OpMarkBackup     Op = "mark_backup"
	OpReload         Op = "reload"
)

// Change describes a committed mutation.
type Change struct {
	Op       Op     `json:"op"`
	PromptID string `json:"prompt_id,omitempty"`
}

// Store is the single source of truth for prompts and settings.
type Store struct {
	mu       sync.RWMutex
	adapter  *persist.Adapter
	notifier Notifier
	metrics  *metrics.Recorder

	prompts  []models.Prompt
	settings models.Settings

	now      func() time.Time
	newID    func() string
	seeds    []models.FormData
	onChange func(Change)

	ready  bool
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides prompt id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithSeeds sets starter prompts added on first run, when storage holds no
// prompts entry yet.
func WithSeeds(seeds []models.FormData) Option {
	return func(s *Store) { s.seeds = seeds }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = r }
}

// WithOnChange registers a callback invoked after every committed mutation.
// It runs outside the store lock.
func WithOnChange(fn func(Change)) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates a Store. Call Init before mutating it.
func New(adapter *persist.Adapter, notifier Notifier, opts ...Option) *Store {
	if adapter == nil {
		adapter = persist.NewAdapter(nil)
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	s := &Store{
		adapter:  adapter,
		notifier: notifier,
		prompts:  []models.Prompt{},
		settings: models.DefaultSettings(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads prompts and settings from storage. On first run the configured
// seed prompts are added and persisted.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	firstRun := !s.adapter.Exists(ctx, persist.KeyPrompts)
	s.prompts = persist.Load(ctx, s.adapter, persist.KeyPrompts, []models.Prompt{})
	if s.prompts == nil {
		s.prompts = []models.Prompt{}
	}
	s.settings = persist.Load(ctx, s.adapter, persist.KeySettings, models.DefaultSettings())

	seeded := 0
	if firstRun && len(s.seeds) > 0 {
		for _, fd := range s.seeds {
			if res := validation.Validate(fd); !res.Valid {
				log.Warn().Str("title", fd.Title).Strs("errors", res.Messages()).Msg("Skipping invalid seed prompt")
				continue
			}
			s.prompts = append(s.prompts, s.build(fd))
			seeded++
		}
		if seeded > 0 {
			s.persistPromptsLocked(ctx)
		}
	}
	s.ready = true
	count := len(s.prompts)
	s.mu.Unlock()

	log.Info().Int("prompts", count).Int("seeded", seeded).Bool("storage", s.adapter.Available()).Msg("Prompt store initialized")
	return nil
}

// Dispose stops the store from accepting mutations. Reads keep working.
func (s *Store) Dispose() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Reload discards in-memory state and reads it again from storage.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.prompts = persist.Load(ctx, s.adapter, persist.KeyPrompts, []models.Prompt{})
	if s.prompts == nil {
		s.prompts = []models.Prompt{}
	}
	s.settings = persist.Load(ctx, s.adapter, persist.KeySettings, models.DefaultSettings())
	s.mu.Unlock()

	s.changed(ctx, Change{Op: OpReload})
	return nil
}

// Flush writes the in-memory state to storage, e.g. after the backing
// database was recreated.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistPromptsLocked(ctx)
	s.persistSettingsLocked(ctx)
}

// AddPrompt validates data and appends a new prompt.
func (s *Store) AddPrompt(ctx context.Context, data models.FormData) (*models.Prompt, error) {
	if err := s.validate(ctx, OpAdd, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	p := s.build(data)
	s.prompts = append(s.prompts, p)
	s.persistPromptsLocked(ctx)
	s.mu.Unlock()

	s.notifier.Success(MsgPromptCreated, "")
	s.changed(ctx, Change{Op: OpAdd, PromptID: p.ID})
	out := p.Clone()
	return &out, nil
}

// UpdatePrompt validates data and replaces the editable fields of prompt id.
// A missing id is a silent no-op: nothing is written and (nil, nil) is
// returned.
func (s *Store) UpdatePrompt(ctx context.Context, id string, data models.FormData) (*models.Prompt, error) {
	if err := s.validate(ctx, OpUpdate, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		log.Debug().Str("id", id).Msg("Update of unknown prompt ignored")
		return nil, nil
	}
	p := &s.prompts[i]
	p.Title = strings.TrimSpace(data.Title)
	p.Content = strings.TrimSpace(data.Content)
	p.Description = strings.TrimSpace(data.Description)
	p.Tags = validation.NormalizeTags(data.Tags)
	p.UpdatedAt = s.now().UnixMilli()
	out := p.Clone()
	s.persistPromptsLocked(ctx)
	s.mu.Unlock()

	s.notifier.Success(MsgPromptUpdated, "")
	s.changed(ctx, Change{Op: OpUpdate, PromptID: id})
	return &out, nil
}

// DeletePrompt removes prompt id. It reports whether a prompt was removed;
// deleting an unknown id writes nothing.
func (s *Store) DeletePrompt(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.prompts = append(s.prompts[:i], s.prompts[i+1:]...)
	s.persistPromptsLocked(ctx)
	s.mu.Unlock()

	s.notifier.Success(MsgPromptDeleted, "")
	s.changed(ctx, Change{Op: OpDelete, PromptID: id})
	return true, nil
}

// ToggleFavorite flips the favorite flag of prompt id and refreshes its
// updated_at. Usage count is never touched.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (*models.Prompt, error) {
	return s.touch(ctx, id, OpToggleFavorite, MsgFavoriteUpdated, MsgFavoriteFailed, func(p *models.Prompt) {
		p.IsFavorite = !p.IsFavorite
	})
}

// IncrementUsage adds one to the usage count of prompt id and refreshes its
// updated_at. The favorite flag is never touched.
func (s *Store) IncrementUsage(ctx context.Context, id string) (*models.Prompt, error) {
	return s.touch(ctx, id, OpIncrementUsage, MsgUsageUpdated, MsgUsageFailed, func(p *models.Prompt) {
		p.UsageCount++
	})
}

func (s *Store) touch(ctx context.Context, id string, op Op, okMsg, failMsg string, mutate func(*models.Prompt)) (*models.Prompt, error) {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.notifier.Error(failMsg, "")
		return nil, ErrNotFound
	}
	p := &s.prompts[i]
	mutate(p)
	p.UpdatedAt = s.now().UnixMilli()
	out := p.Clone()
	s.persistPromptsLocked(ctx)
	s.mu.Unlock()

	s.notifier.Success(okMsg, "")
	s.changed(ctx, Change{Op: op, PromptID: id})
	return &out, nil
}

// UpdateSettings merges the allowed fields of patch into settings.
func (s *Store) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	patch = patch.Sanitized()

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return models.Settings{}, err
	}
	s.settings = patch.Apply(s.settings)
	out := s.settings
	s.persistSettingsLocked(ctx)
	s.mu.Unlock()

	s.changed(ctx, Change{Op: OpUpdateSettings})
	return out, nil
}

// MarkBackup records ts (epoch milliseconds) as the last backup time.
func (s *Store) MarkBackup(ctx context.Context, ts int64) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings.LastBackup = ts
	s.persistSettingsLocked(ctx)
	s.mu.Unlock()

	s.changed(ctx, Change{Op: OpMarkBackup})
	return nil
}

// ReplaceAll swaps in an imported collection and merges the allowed settings
// fields. Imported prompts are stored as given, without validation.
func (s *Store) ReplaceAll(ctx context.Context, prompts []models.Prompt, patch models.SettingsPatch) error {
	patch = patch.Sanitized()

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.prompts = models.ClonePrompts(prompts)
	s.persistPromptsLocked(ctx)
	if !patch.IsEmpty() {
		s.settings = patch.Apply(s.settings)
		s.persistSettingsLocked(ctx)
	}
	s.mu.Unlock()

	s.notifier.Success(MsgDataImported, "")
	s.changed(ctx, Change{Op: OpReplaceAll})
	return nil
}

// ClearAll empties the collection and restores default settings.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.prompts = []models.Prompt{}
	s.settings = models.DefaultSettings()
	s.persistPromptsLocked(ctx)
	s.persistSettingsLocked(ctx)
	s.mu.Unlock()

	s.notifier.Success(MsgDataCleared, "")
	s.changed(ctx, Change{Op: OpClearAll})
	return nil
}

// Prompts returns a deep copy of the collection in storage order.
func (s *Store) Prompts() []models.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.ClonePrompts(s.prompts)
}

// Settings returns the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Get returns a copy of prompt id.
func (s *Store) Get(id string) (*models.Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	p := s.prompts[i].Clone()
	return &p, true
}

// Tags returns every distinct tag in the collection, sorted.
func (s *Store) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view.AllTags(s.prompts)
}

// Len returns the number of stored prompts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prompts)
}

func (s *Store) validate(ctx context.Context, op Op, data models.FormData) error {
	res := validation.Validate(data)
	if res.Valid {
		return nil
	}
	s.metrics.ValidationFailed(ctx, string(op))
	s.notifier.Error(MsgValidationFailed, strings.Join(res.Messages(), ", "))
	return res.Err()
}

func (s *Store) build(data models.FormData) models.Prompt {
	now := s.now().UnixMilli()
	return models.Prompt{
		ID:          s.newID(),
		Title:       strings.TrimSpace(data.Title),
		Content:     strings.TrimSpace(data.Content),
		Description: strings.TrimSpace(data.Description),
		Tags:        validation.NormalizeTags(data.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Store) writableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.ready {
		return ErrNotInitialized
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i := range s.prompts {
		if s.prompts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistPromptsLocked(ctx context.Context) {
	if err := s.adapter.Save(ctx, persist.KeyPrompts, s.prompts); err != nil && !errors.Is(err, persist.ErrUnavailable) {
		s.metrics.PersistError(ctx, persist.KeyPrompts)
	}
}

func (s *Store) persistSettingsLocked(ctx context.Context) {
	if err := s.adapter.Save(ctx, persist.KeySettings, s.settings); err != nil && !errors.Is(err, persist.ErrUnavailable) {
		s.metrics.PersistError(ctx, persist.KeySettings)
	}
}

func (s *Store) changed(ctx context.Context, c Change) {
	s.metrics.Mutation(ctx, string(c.Op))
	if s.onChange != nil {
		s.onChange(c)
	}
}
