// Package worker provides the main worker service for promptrium: the
// operations a presentation layer calls, and the local HTTP API over them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptrium/internal/clipboard"
	"github.com/thebtf/promptrium/internal/config"
	"github.com/thebtf/promptrium/internal/debounce"
	"github.com/thebtf/promptrium/internal/library"
	"github.com/thebtf/promptrium/internal/metrics"
	"github.com/thebtf/promptrium/internal/notify"
	"github.com/thebtf/promptrium/internal/persist"
	"github.com/thebtf/promptrium/internal/transfer"
	"github.com/thebtf/promptrium/internal/view"
	"github.com/thebtf/promptrium/internal/worker/sse"
	"github.com/thebtf/promptrium/pkg/models"
)

// User-facing notification titles raised by the service itself.
const (
	MsgPromptCopied  = "Copied to clipboard!"
	MsgCopyFailed    = "Copy failed"
	MsgDataExported  = "Data exported successfully!"
	MsgImportFailed  = "Failed to import data. Please check the file format."
	MsgImportLoading = "Importing data..."
	MsgImportSkipped = "Some prompts were skipped"
)

// ErrImportInProgress is returned when an import starts while another one is
// still loading.
var ErrImportInProgress = errors.New("import already in progress")

// ImportState tracks the import state machine: Idle -> Loading -> {Success, Failure}.
type ImportState string

const (
	ImportIdle    ImportState = "idle"
	ImportLoading ImportState = "loading"
	ImportSuccess ImportState = "success"
	ImportFailure ImportState = "failure"
)

// Dependencies wires a Service. Zero values select defaults: config.Get(),
// an in-memory adapter, a clipboard with no writers, no metrics.
type Dependencies struct {
	Version   string
	Config    *config.Config
	Adapter   *persist.Adapter
	Clipboard *clipboard.Manager
	Metrics   *metrics.Recorder
	Seeds     []models.FormData
	Clock     func() time.Time
	IDs       func() string
}

// ExportResult is a rendered export document.
type ExportResult struct {
	Filename   string
	MIMEType   string
	Data       []byte
	Document   transfer.Document
	ExportedAt time.Time
}

// Service owns one session: the prompt store, the filter criteria, the
// notification centre and the clipboard state.
type Service struct {
	version        string
	config         *config.Config
	adapter        *persist.Adapter
	library        *library.Store
	notifications  *notify.Center
	clipboard      *clipboard.Manager
	metrics        *metrics.Recorder
	sseBroadcaster *sse.Broadcaster
	search         *debounce.Debouncer[string]
	router         chi.Router
	now            func() time.Time
	startTime      time.Time

	ready atomic.Bool

	mu          sync.RWMutex
	criteria    view.Criteria
	importState ImportState
	importErr   string
	trackers    map[string]*clipboard.Tracker

	unsubscribe func()
}

// NewService creates a Service. Call Init before use.
func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Get()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	adapter := deps.Adapter
	if adapter == nil {
		adapter = persist.NewAdapter(persist.NewMemoryBackend())
	}
	clip := deps.Clipboard
	if clip == nil {
		clip = clipboard.NewManager(nil, nil)
	}

	s := &Service{
		version:        deps.Version,
		config:         cfg,
		adapter:        adapter,
		notifications:  notify.NewCenter(cfg.ToastDuration()),
		clipboard:      clip,
		metrics:        deps.Metrics,
		sseBroadcaster: sse.NewBroadcaster(),
		now:            now,
		startTime:      time.Now(),
		criteria:       view.DefaultCriteria(),
		importState:    ImportIdle,
		trackers:       make(map[string]*clipboard.Tracker),
	}

	opts := []library.Option{
		library.WithClock(now),
		library.WithSeeds(deps.Seeds),
		library.WithMetrics(deps.Metrics),
		library.WithOnChange(s.onLibraryChange),
	}
	if deps.IDs != nil {
		opts = append(opts, library.WithIDGenerator(deps.IDs))
	}
	s.library = library.New(adapter, s.notifications, opts...)
	s.search = debounce.New(cfg.SearchDebounce(), s.applyQuery)
	s.unsubscribe = s.notifications.Subscribe(func(n models.Notification) {
		s.sseBroadcaster.Publish(sse.EventNotification, n)
	})

	s.router = chi.NewRouter()
	s.setupRoutes()
	return s
}

// Init loads the library and marks the service ready.
func (s *Service) Init(ctx context.Context) error {
	if err := s.library.Init(ctx); err != nil {
		return fmt.Errorf("init library: %w", err)
	}
	s.ready.Store(true)
	return nil
}

// Dispose applies a pending search, stops timers and releases
// subscriptions. The service rejects mutations afterwards.
func (s *Service) Dispose() {
	s.search.Flush()
	s.ready.Store(false)
	s.search.Stop()

	s.mu.Lock()
	for id, t := range s.trackers {
		t.Close()
		delete(s.trackers, id)
	}
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.notifications.Dispose()
	s.library.Dispose()
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Library exposes the underlying store, e.g. to flush it after the
// database is recreated.
func (s *Service) Library() *library.Store {
	return s.library
}

// Notifications exposes the notification centre.
func (s *Service) Notifications() *notify.Center {
	return s.notifications
}

// Broadcaster exposes the SSE broadcaster.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// AddPrompt creates a prompt from form data.
func (s *Service) AddPrompt(ctx context.Context, data models.FormData) (*models.Prompt, error) {
	return s.library.AddPrompt(ctx, data)
}

// UpdatePrompt edits prompt id. A missing id returns (nil, nil).
func (s *Service) UpdatePrompt(ctx context.Context, id string, data models.FormData) (*models.Prompt, error) {
	return s.library.UpdatePrompt(ctx, id, data)
}

// DeletePrompt removes prompt id and forgets its copy indicator.
func (s *Service) DeletePrompt(ctx context.Context, id string) (bool, error) {
	removed, err := s.library.DeletePrompt(ctx, id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if t, ok := s.trackers[id]; ok {
		t.Close()
		delete(s.trackers, id)
	}
	s.mu.Unlock()
	return removed, nil
}

// ToggleFavorite flips the favorite flag of prompt id.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (*models.Prompt, error) {
	return s.library.ToggleFavorite(ctx, id)
}

// IncrementUsage bumps the usage count of prompt id.
func (s *Service) IncrementUsage(ctx context.Context, id string) (*models.Prompt, error) {
	return s.library.IncrementUsage(ctx, id)
}

// CopyPrompt copies the content of prompt id to the clipboard and counts the
// use. The usage count advances even when the copy fails or is superseded.
// It reports whether this copy is the one that landed on the clipboard.
func (s *Service) CopyPrompt(ctx context.Context, id string) (bool, error) {
	p, ok := s.library.Get(id)
	if !ok {
		s.notifications.Error(MsgCopyFailed, library.ErrNotFound.Error())
		return false, library.ErrNotFound
	}

	copied, copyErr := s.tracker(id).Copy(ctx, p.Content)
	switch {
	case copyErr != nil:
		log.Warn().Err(copyErr).Str("id", id).Msg("Copy failed")
		s.metrics.Copy(ctx, false)
		s.notifications.Error(MsgCopyFailed, copyErr.Error())
	case copied:
		s.metrics.Copy(ctx, true)
		s.notifications.Success(MsgPromptCopied, "")
		s.sseBroadcaster.Publish(sse.EventCopied, map[string]string{"id": id})
	default:
		log.Debug().Str("id", id).Msg("Copy superseded by a newer copy")
	}

	// Use a fresh context: a cancelled copy still counts as a use.
	if _, err := s.library.IncrementUsage(context.WithoutCancel(ctx), id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to increment usage after copy")
	}
	return copied, copyErr
}

// Copied reports whether prompt id shows the "copied" indicator.
func (s *Service) Copied(id string) bool {
	s.mu.RLock()
	t, ok := s.trackers[id]
	s.mu.RUnlock()
	return ok && t.Copied()
}

func (s *Service) tracker(id string) *clipboard.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		t = clipboard.NewTracker(s.clipboard, s.config.CopyReset())
		s.trackers[id] = t
	}
	return t
}

// SetSearchQuery schedules a query change after the debounce quiet period.
func (s *Service) SetSearchQuery(query string) {
	s.search.Call(query)
}

// SetSearchQueryNow applies a query immediately, dropping any pending one.
func (s *Service) SetSearchQueryNow(query string) {
	s.search.Cancel()
	s.applyQuery(query)
}

func (s *Service) applyQuery(query string) {
	s.updateCriteria(func(c *view.Criteria) { c.Query = query })
}

// SearchPending reports whether a debounced query is waiting to apply.
func (s *Service) SearchPending() bool {
	return s.search.Pending()
}

// SetSelectedTags sets the AND tag filter.
func (s *Service) SetSelectedTags(tags []string) {
	s.updateCriteria(func(c *view.Criteria) {
		c.Tags = slices.Clone(tags)
		if c.Tags == nil {
			c.Tags = []string{}
		}
	})
}

// SetShowFavorites toggles the favorites-only filter.
func (s *Service) SetShowFavorites(show bool) {
	s.updateCriteria(func(c *view.Criteria) { c.FavoritesOnly = show })
}

// SetSortOptions sets the sort key and direction. Unknown values fall back
// to the defaults.
func (s *Service) SetSortOptions(sortBy, order string) {
	s.updateCriteria(func(c *view.Criteria) {
		c.SortBy = view.ParseSortKey(sortBy)
		c.Order = view.ParseOrder(order)
	})
}

// SetCriteria replaces every criterion at once.
func (s *Service) SetCriteria(c view.Criteria) {
	s.search.Cancel()
	s.updateCriteria(func(cur *view.Criteria) {
		*cur = c
		cur.SortBy = view.ParseSortKey(string(c.SortBy))
		cur.Order = view.ParseOrder(string(c.Order))
		cur.Tags = slices.Clone(c.Tags)
		if cur.Tags == nil {
			cur.Tags = []string{}
		}
	})
}

func (s *Service) updateCriteria(fn func(*view.Criteria)) {
	s.mu.Lock()
	fn(&s.criteria)
	c := cloneCriteria(s.criteria)
	s.mu.Unlock()

	s.sseBroadcaster.Publish(sse.EventFilters, c)
}

// Criteria returns the current filter criteria.
func (s *Service) Criteria() view.Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCriteria(s.criteria)
}

func cloneCriteria(c view.Criteria) view.Criteria {
	c.Tags = slices.Clone(c.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}

// Prompts returns the whole collection in storage order.
func (s *Service) Prompts() []models.Prompt {
	return s.library.Prompts()
}

// FilteredPrompts returns the collection filtered and sorted by the current
// criteria.
func (s *Service) FilteredPrompts() []models.Prompt {
	return view.Derive(s.library.Prompts(), s.Criteria())
}

// Settings returns the settings record.
func (s *Service) Settings() models.Settings {
	return s.library.Settings()
}

// Tags returns every distinct tag, sorted.
func (s *Service) Tags() []string {
	return s.library.Tags()
}

// UpdateSettings merges the allowed fields of patch.
func (s *Service) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	return s.library.UpdateSettings(ctx, patch)
}

// ExportData renders the export document and records it as a backup. Callers
// that write the document somewhere that can fail should use RenderExport and
// CommitExport instead.
func (s *Service) ExportData(ctx context.Context) (*ExportResult, error) {
	res, err := s.RenderExport()
	if err != nil {
		return nil, err
	}
	if err := s.CommitExport(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RenderExport renders the export document without recording a backup.
func (s *Service) RenderExport() (*ExportResult, error) {
	now := s.now()
	doc := transfer.Export(s.library.Prompts(), s.library.Settings(), now)
	data, err := transfer.Marshal(doc)
	if err != nil {
		s.notifications.Error("Export failed", err.Error())
		return nil, fmt.Errorf("export: %w", err)
	}
	return &ExportResult{
		Filename:   transfer.Filename(now),
		MIMEType:   transfer.MIMEType,
		Data:       data,
		Document:   doc,
		ExportedAt: now,
	}, nil
}

// CommitExport records the export time of res as the last backup. Call it
// only once the document has been delivered.
func (s *Service) CommitExport(ctx context.Context, res *ExportResult) error {
	if err := s.library.MarkBackup(ctx, res.ExportedAt.UnixMilli()); err != nil {
		return err
	}
	s.notifications.Success(MsgDataExported, "")
	return nil
}

// ImportData reads an export document and replaces the collection with it.
// On any failure the store is left unchanged.
func (s *Service) ImportData(ctx context.Context, r io.Reader) error {
	s.mu.Lock()
	if s.importState == ImportLoading {
		s.mu.Unlock()
		return ErrImportInProgress
	}
	s.importState = ImportLoading
	s.importErr = ""
	s.mu.Unlock()
	s.sseBroadcaster.Publish(sse.EventImport, ImportLoading)
	s.notifications.Info(MsgImportLoading, "")

	err := s.runImport(ctx, r)

	state := ImportSuccess
	if err != nil {
		state = ImportFailure
	}
	s.mu.Lock()
	s.importState = state
	if err != nil {
		s.importErr = err.Error()
	}
	s.mu.Unlock()

	s.metrics.Import(ctx, err == nil)
	s.sseBroadcaster.Publish(sse.EventImport, state)
	if err != nil {
		log.Warn().Err(err).Msg("Import failed")
		s.notifications.Error(MsgImportFailed, err.Error())
	}
	return err
}

func (s *Service) runImport(ctx context.Context, r io.Reader) error {
	snap, err := transfer.ImportReader(ctx, r)
	if err != nil {
		return err
	}
	if err := s.library.ReplaceAll(ctx, snap.Prompts, snap.Settings); err != nil {
		return err
	}
	if snap.Dropped > 0 {
		log.Warn().Int("dropped", snap.Dropped).Msg("Import skipped non-object prompt entries")
		s.notifications.Warning(MsgImportSkipped, fmt.Sprintf("%d entries were not prompt objects", snap.Dropped))
	}
	return nil
}

// ImportState returns the state of the most recent import and, after a
// failure, its error message.
func (s *Service) ImportState() (ImportState, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.importState, s.importErr
}

// ClearAllData empties the collection, restores default settings and
// resets the filters.
func (s *Service) ClearAllData(ctx context.Context) error {
	if err := s.library.ClearAll(ctx); err != nil {
		return err
	}
	s.search.Cancel()
	s.updateCriteria(func(c *view.Criteria) { *c = view.DefaultCriteria() })
	return nil
}

func (s *Service) onLibraryChange(c library.Change) {
	switch c.Op {
	case library.OpUpdateSettings, library.OpMarkBackup:
		s.sseBroadcaster.Publish(sse.EventSettings, s.library.Settings())
	case library.OpReplaceAll, library.OpClearAll, library.OpReload:
		s.sseBroadcaster.Publish(sse.EventSettings, s.library.Settings())
		s.sseBroadcaster.Publish(sse.EventPrompts, c)
	default:
		s.sseBroadcaster.Publish(sse.EventPrompts, c)
	}
}
