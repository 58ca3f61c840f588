package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mentha-app/mentha-engine/internal/api/middleware"
	"github.com/mentha-app/mentha-engine/internal/api/response"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// ProjectStore defines the project operations the handlers depend on.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, tenantID uuid.UUID) ([]*models.Project, error)
}

// NewCreateProjectHandler returns the handler for POST /api/v1/projects.
// The brand ground truth recorded here drives mention detection and the
// hallucination judge for every keyword under the project.
func NewCreateProjectHandler(st ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			Name            string   `json:"name"`
			BrandName       string   `json:"brand_name"`
			BrandAliases    []string `json:"brand_aliases"`
			BrandFacts      []string `json:"brand_facts"`
			CompetitorNames []string `json:"competitor_names"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		req.BrandName = strings.TrimSpace(req.BrandName)
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if req.BrandName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "brand_name is required", nil)
			return
		}

		now := time.Now().UTC()
		project := &models.Project{
			ID:              uuid.New(),
			TenantID:        tenantID,
			Name:            req.Name,
			BrandName:       req.BrandName,
			BrandAliases:    req.BrandAliases,
			BrandFacts:      req.BrandFacts,
			CompetitorNames: req.CompetitorNames,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := st.CreateProject(r.Context(), project); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_PROJECT",
					"A project with this name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Created(w, project)
	}
}

// NewGetProjectHandler returns the handler for GET /api/v1/projects/{projectID}.
func NewGetProjectHandler(st ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "projectID must be a valid UUID", nil)
			return
		}

		project, err := st.GetProject(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, project)
	}
}

// NewListProjectsHandler returns the handler for GET /api/v1/projects.
func NewListProjectsHandler(st ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		projects, err := st.ListProjects(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, projects)
	}
}
