package worker

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptrium/internal/library"
	"github.com/thebtf/promptrium/internal/transfer"
	"github.com/thebtf/promptrium/internal/validation"
	"github.com/thebtf/promptrium/internal/view"
	"github.com/thebtf/promptrium/internal/worker/sse"
	"github.com/thebtf/promptrium/pkg/models"
)

// maxBodySize bounds JSON request bodies other than imports.
const maxBodySize = 1 << 20

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", serveIndex)
	r.Get("/assets/*", serveAssets)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/version", s.handleVersion)

	r.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Get("/api/prompts", s.handleListPrompts)
		r.Get("/api/prompts/filtered", s.handleFilteredPrompts)
		r.Post("/api/prompts", s.handleCreatePrompt)
		r.Get("/api/prompts/{id}", s.handleGetPrompt)
		r.Put("/api/prompts/{id}", s.handleUpdatePrompt)
		r.Delete("/api/prompts/{id}", s.handleDeletePrompt)
		r.Post("/api/prompts/{id}/favorite", s.handleToggleFavorite)
		r.Post("/api/prompts/{id}/usage", s.handleIncrementUsage)
		r.Post("/api/prompts/{id}/copy", s.handleCopyPrompt)

		r.Get("/api/filters", s.handleGetFilters)
		r.Put("/api/filters", s.handlePutFilters)
		r.Get("/api/tags", s.handleTags)

		r.Get("/api/settings", s.handleGetSettings)
		r.Patch("/api/settings", s.handlePatchSettings)

		r.Get("/api/export", s.handleExport)
		r.Post("/api/import", s.handleImport)
		r.Get("/api/import", s.handleImportState)
		r.Delete("/api/data", s.handleClearData)

		r.Get("/api/notifications", s.handleListNotifications)
		r.Delete("/api/notifications", s.handleClearNotifications)
		r.Delete("/api/notifications/{id}", s.handleDismissNotification)

		r.Get("/api/metrics", s.handleMetrics)
		r.Get("/api/events", s.sseBroadcaster.HandleSSE)
	})
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// requireReady rejects requests until Init has completed.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.ready.Load() {
		status = "initializing"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"prompts":        s.library.Len(),
		"storage":        s.adapter.Available(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleListPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Prompts())
}

func (s *Service) handleFilteredPrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q) == 0 {
		writeJSON(w, http.StatusOK, s.FilteredPrompts())
		return
	}

	// Query parameters override the session criteria for this request only.
	c := s.Criteria()
	if q.Has("query") {
		c.Query = q.Get("query")
	}
	if q.Has("tag") {
		c.Tags = q["tag"]
	}
	if q.Has("favorites") {
		c.FavoritesOnly, _ = strconv.ParseBool(q.Get("favorites"))
	}
	if q.Has("sort_by") {
		c.SortBy = view.ParseSortKey(q.Get("sort_by"))
	}
	if q.Has("sort_order") {
		c.Order = view.ParseOrder(q.Get("sort_order"))
	}
	writeJSON(w, http.StatusOK, view.Derive(s.Prompts(), c))
}

func (s *Service) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	p, ok := s.library.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, library.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": p, "copied": s.Copied(p.ID)})
}

func (s *Service) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var data models.FormData
	if !decodeJSON(w, r, &data) {
		return
	}
	p, err := s.AddPrompt(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Service) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var data models.FormData
	if !decodeJSON(w, r, &data) {
		return
	}
	p, err := s.UpdatePrompt(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeError(w, library.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	removed, err := s.DeletePrompt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

func (s *Service) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	p, err := s.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleIncrementUsage(w http.ResponseWriter, r *http.Request) {
	p, err := s.IncrementUsage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCopyPrompt reports a failed clipboard write in the body rather than
// the status: the use was still counted.
func (s *Service) handleCopyPrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	copied, err := s.CopyPrompt(r.Context(), id)
	if errors.Is(err, library.ErrNotFound) {
		writeError(w, err)
		return
	}

	resp := map[string]any{"copied": copied}
	if err != nil {
		resp["error"] = err.Error()
	}
	if p, ok := s.library.Get(id); ok {
		resp["usage_count"] = p.UsageCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// filtersRequest is a partial criteria update. Absent fields are unchanged.
type filtersRequest struct {
	Query         *string   `json:"query"`
	Debounce      bool      `json:"debounce"`
	Tags          *[]string `json:"tags"`
	FavoritesOnly *bool     `json:"favorites_only"`
	SortBy        *string   `json:"sort_by"`
	Order         *string   `json:"sort_order"`
}

type filtersResponse struct {
	view.Criteria
	SearchPending bool `json:"search_pending"`
}

func (s *Service) handleGetFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, filtersResponse{Criteria: s.Criteria(), SearchPending: s.SearchPending()})
}

func (s *Service) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Tags != nil {
		s.SetSelectedTags(*req.Tags)
	}
	if req.FavoritesOnly != nil {
		s.SetShowFavorites(*req.FavoritesOnly)
	}
	if req.SortBy != nil || req.Order != nil {
		cur := s.Criteria()
		sortBy, order := string(cur.SortBy), string(cur.Order)
		if req.SortBy != nil {
			sortBy = *req.SortBy
		}
		if req.Order != nil {
			order = *req.Order
		}
		s.SetSortOptions(sortBy, order)
	}
	if req.Query != nil {
		if req.Debounce {
			s.SetSearchQuery(*req.Query)
		} else {
			s.SetSearchQueryNow(*req.Query)
		}
	}

	writeJSON(w, http.StatusOK, filtersResponse{Criteria: s.Criteria(), SearchPending: s.SearchPending()})
}

func (s *Service) handleTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Tags())
}

func (s *Service) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings())
}

func (s *Service) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	settings, err := s.UpdateSettings(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.ExportData(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// handleImport accepts either a multipart upload in the "file" field or the
// document as the raw request body.
func (s *Service) handleImport(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file: " + err.Error()})
			return
		}
		defer file.Close()
		body = file
	}

	if err := s.ImportData(r.Context(), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   ImportSuccess,
		"prompts": s.library.Len(),
	})
}

func (s *Service) handleImportState(w http.ResponseWriter, _ *http.Request) {
	state, msg := s.ImportState()
	resp := map[string]string{"state": string(state)}
	if msg != "" {
		resp["error"] = msg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.ClearAllData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.notifications.List())
}

func (s *Service) handleClearNotifications(w http.ResponseWriter, _ *http.Request) {
	s.notifications.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.notifications.Remove(id)
	s.sseBroadcaster.Publish(sse.EventDismissed, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// decodeJSON reads a bounded JSON body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError maps core errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *validation.Error
		ferr *transfer.ImportFormatError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"errors": verr.Errors,
		})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ferr.Error()})
	case errors.Is(err, library.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrImportInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, library.ErrNotInitialized), errors.Is(err, library.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
