package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/catalog-crawler/internal/models"
)

// ProgressSource is read by the status endpoints while a crawl runs.
type ProgressSource interface {
	Snapshot() models.ProgressSnapshot
}

type Handlers struct {
	progress ProgressSource
	started  time.Time
	logger   *slog.Logger
}

func NewHandlers(progress ProgressSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		progress: progress,
		started:  time.Now(),
		logger:   logger.With("component", "api"),
	}
}

type HealthResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
	Uptime string `json:"uptime"`
}

type CategoryProgressResponse struct {
	CategoryID string `json:"category_id"`
	Records    int    `json:"records"`
	InProgress bool   `json:"in_progress"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.progress.Snapshot()
	h.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		RunID:  snap.RunID,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// GetProgress returns the whole crawl tally.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.progress.Snapshot())
}

// GetCategoryProgress returns the tally for one category, which must have been
// started.
func (h *Handlers) GetCategoryProgress(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")
	if categoryID == "" {
		h.respondError(w, http.StatusBadRequest, "category ID is required")
		return
	}

	snap := h.progress.Snapshot()
	records, done := snap.PerCategory[categoryID]
	inProgress := snap.CurrentCategory == categoryID
	if !done && !inProgress {
		h.respondError(w, http.StatusNotFound, "category not crawled")
		return
	}

	h.respondJSON(w, http.StatusOK, CategoryProgressResponse{
		CategoryID: categoryID,
		Records:    records,
		InProgress: inProgress,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
