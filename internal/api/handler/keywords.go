// Package handler contains the HTTP handlers for the public API. Each
// handler depends on a narrow interface so tests can inject fakes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mentha-app/mentha-engine/internal/api/middleware"
	"github.com/mentha-app/mentha-engine/internal/api/response"
	"github.com/mentha-app/mentha-engine/internal/keywords"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// KeywordRegistry defines the keyword operations the handlers depend on.
type KeywordRegistry interface {
	Register(ctx context.Context, tenantID uuid.UUID, params keywords.RegisterParams) (*models.Keyword, error)
	Get(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Keyword, error)
	List(ctx context.Context, filter store.KeywordFilter) ([]*models.Keyword, int, error)
	Deactivate(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// NewCreateKeywordHandler returns the handler for POST /api/v1/keywords.
func NewCreateKeywordHandler(reg KeywordRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			ProjectID      string   `json:"project_id"`
			QueryText      string   `json:"query_text"`
			IntentCategory string   `json:"intent_category"`
			ScanFrequency  string   `json:"scan_frequency"`
			TargetEngines  []string `json:"target_engines"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		projectID, err := uuid.Parse(req.ProjectID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id must be a valid UUID", nil)
			return
		}

		kw, err := reg.Register(r.Context(), tenantID, keywords.RegisterParams{
			ProjectID:      projectID,
			QueryText:      req.QueryText,
			IntentCategory: req.IntentCategory,
			ScanFrequency:  req.ScanFrequency,
			TargetEngines:  req.TargetEngines,
		})
		if err != nil {
			switch {
			case errors.Is(err, keywords.ErrInvalidKeyword):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
			case errors.Is(err, store.ErrDuplicateKey):
				response.Error(w, http.StatusConflict, "DUPLICATE_KEYWORD",
					"A keyword with this query already exists in the project", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, kw)
	}
}

// NewGetKeywordHandler returns the handler for GET /api/v1/keywords/{keywordID}.
func NewGetKeywordHandler(reg KeywordRegistry) http.HandlerFunc {
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

		kw, err := reg.Get(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Keyword not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, kw)
	}
}

// NewListKeywordsHandler returns the handler for GET /api/v1/keywords.
func NewListKeywordsHandler(reg KeywordRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		filter := store.KeywordFilter{
			TenantID:   tenantID,
			ActiveOnly: r.URL.Query().Get("active") == "true",
		}
		if raw := r.URL.Query().Get("project_id"); raw != "" {
			projectID, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id must be a valid UUID", nil)
				return
			}
			filter.ProjectID = projectID
		}
		filter.Page, filter.Limit = pagination(r)

		items, total, err := reg.List(r.Context(), filter)
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

// NewDeleteKeywordHandler returns the handler for DELETE /api/v1/keywords/{keywordID}.
// Deactivation is a soft delete: history is kept and in-flight jobs finish.
func NewDeleteKeywordHandler(reg KeywordRegistry) http.HandlerFunc {
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

		if err := reg.Deactivate(r.Context(), id, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Keyword not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.NoContent(w)
	}
}

// pagination parses page/limit query params with defaults and bounds.
func pagination(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
