package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mentha-app/mentha-engine/internal/api/middleware"
	"github.com/mentha-app/mentha-engine/internal/api/response"
	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/internal/scheduler"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// ScanScheduler triggers on-demand scans outside the recurring schedule.
type ScanScheduler interface {
	ScheduleManual(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) ([]*models.ScanJob, error)
}

// ResultStore is the read-side store surface for jobs and results.
type ResultStore interface {
	GetScanJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.ScanJob, error)
	GetScanResultByJobID(ctx context.Context, jobID uuid.UUID) (*models.ScanResult, error)
	GetLatestScanResult(ctx context.Context, keywordID uuid.UUID, engine string, tenantID uuid.UUID) (*models.ScanResult, error)
	ListScanResults(ctx context.Context, filter store.ResultFilter) ([]*models.ScanResult, int, error)
}

// NewTriggerScanHandler returns the handler for POST /api/v1/keywords/{keywordID}/scan.
// Jobs already in flight for a (keyword, engine) pair are silently skipped,
// so the returned list may be shorter than the keyword's target engines.
func NewTriggerScanHandler(sched ScanScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "keywordID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keywordID must be a valid UUID", nil)
			return
		}

		jobs, err := sched.ScheduleManual(r.Context(), id, tenantID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Keyword not found", nil)
			case errors.Is(err, scheduler.ErrKeywordInactive):
				response.Error(w, http.StatusConflict, "KEYWORD_INACTIVE",
					"Keyword is deactivated and cannot be scanned", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, map[string]any{
			"jobs": jobs,
		})
	}
}

// NewGetScanJobHandler returns the handler for GET /api/v1/jobs/{jobID},
// used to poll a triggered scan to completion.
func NewGetScanJobHandler(st ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := st.GetScanJob(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewJobResultHandler returns the handler for GET /api/v1/jobs/{jobID}/result.
// The job lookup is tenant-scoped, so the result can be fetched by job ID
// without a second ownership check.
func NewJobResultHandler(st ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		if _, err := st.GetScanJob(r.Context(), id, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		result, err := st.GetScanResultByJobID(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "No result for this job yet", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, result)
	}
}

// NewLatestResultHandler returns the handler for
// GET /api/v1/keywords/{keywordID}/results/latest?engine=. The latest result
// per (keyword, engine) defines the keyword's current visibility; the
// analysis pipeline keeps a cached copy that is served before hitting the
// database. Both paths are tenant-checked so a keyword UUID alone never
// exposes another tenant's results.
func NewLatestResultHandler(st ResultStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "keywordID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keywordID must be a valid UUID", nil)
			return
		}

		engine := r.URL.Query().Get("engine")
		if !models.ValidEngine(engine) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"engine must be one of: openai, anthropic, gemini, perplexity", nil)
			return
		}

		if raw, found, err := c.Get(r.Context(), cache.LatestResultKey(id, engine)); err == nil && found {
			var cached models.ScanResult
			if json.Unmarshal(raw, &cached) == nil && cached.TenantID == tenantID {
				response.JSON(w, &cached)
				return
			}
		}

		result, err := st.GetLatestScanResult(r.Context(), id, engine, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "No results for this keyword and engine", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, result)
	}
}

// NewListResultsHandler returns the handler for
// GET /api/v1/keywords/{keywordID}/results, the keyword's scan history.
func NewListResultsHandler(st ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		keywordID, err := uuid.Parse(chi.URLParam(r, "keywordID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keywordID must be a valid UUID", nil)
			return
		}

		filter := store.ResultFilter{TenantID: tenantID, KeywordID: keywordID}
		if engine := r.URL.Query().Get("engine"); engine != "" {
			if !models.ValidEngine(engine) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"engine must be one of: openai, anthropic, gemini, perplexity", nil)
				return
			}
			filter.Engine = engine
		}
		if raw := r.URL.Query().Get("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = since
		}
		filter.Page, filter.Limit = pagination(r)

		items, total, err := st.ListScanResults(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Collection(w, items, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}
