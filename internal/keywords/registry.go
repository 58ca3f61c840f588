// Package keywords is the keyword registry: trackable query definitions and
// the pure state/queries the scheduler runs against. No provider calls happen
// here.
package keywords

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// ErrInvalidKeyword marks a registration rejected by validation.
var ErrInvalidKeyword = errors.New("invalid keyword")

// RegisterParams holds validated input for registering a keyword.
type RegisterParams struct {
	ProjectID      uuid.UUID
	QueryText      string
	IntentCategory string
	ScanFrequency  string
	TargetEngines  []string
}

// Registry manages trackable keyword definitions.
type Registry struct {
	store     store.Store
	jitterMax time.Duration
	randInt   func(n int) int // swappable for deterministic tests
}

// NewRegistry creates a keyword registry. jitterMax bounds the stable
// per-keyword fire offset assigned at registration.
func NewRegistry(st store.Store, jitterMax time.Duration) *Registry {
	return &Registry{
		store:     st,
		jitterMax: jitterMax,
		randInt:   rand.Intn,
	}
}

// Register validates and persists a new keyword. The jitter offset is drawn
// once here and never re-randomized, so fire times stay stable across ticks
// and redeploys.
func (r *Registry) Register(ctx context.Context, tenantID uuid.UUID, params RegisterParams) (*models.Keyword, error) {
	if params.QueryText == "" {
		return nil, fmt.Errorf("%w: query_text is required", ErrInvalidKeyword)
	}
	if !models.ValidIntentCategory(params.IntentCategory) {
		return nil, fmt.Errorf("%w: unknown intent_category %q", ErrInvalidKeyword, params.IntentCategory)
	}
	if !models.ValidScanFrequency(params.ScanFrequency) {
		return nil, fmt.Errorf("%w: unknown scan_frequency %q", ErrInvalidKeyword, params.ScanFrequency)
	}
	if len(params.TargetEngines) == 0 {
		return nil, fmt.Errorf("%w: at least one target engine is required", ErrInvalidKeyword)
	}
	for _, e := range params.TargetEngines {
		if !models.ValidEngine(e) {
			return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidKeyword, e)
		}
	}

	// The keyword must belong to a project of the calling tenant.
	if _, err := r.store.GetProject(ctx, params.ProjectID, tenantID); err != nil {
		return nil, err
	}

	jitterBound := int(r.jitterMax/time.Minute) + 1
	now := time.Now().UTC()
	k := &models.Keyword{
		ID:             uuid.New(),
		ProjectID:      params.ProjectID,
		TenantID:       tenantID,
		QueryText:      params.QueryText,
		IntentCategory: params.IntentCategory,
		ScanFrequency:  params.ScanFrequency,
		TargetEngines:  params.TargetEngines,
		IsActive:       true,
		JitterMinutes:  r.randInt(jitterBound),
		LastScanStatus: models.ScanStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.store.CreateKeyword(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Deactivate soft-deactivates a keyword. Already-enqueued jobs still run to
// completion; only future scheduling stops.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	return r.store.DeactivateKeyword(ctx, id, tenantID)
}

// Get returns one keyword.
func (r *Registry) Get(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Keyword, error) {
	return r.store.GetKeyword(ctx, id, tenantID)
}

// List returns keywords matching the filter plus the unpaginated total.
func (r *Registry) List(ctx context.Context, filter store.KeywordFilter) ([]*models.Keyword, int, error) {
	return r.store.ListKeywords(ctx, filter)
}

// ListDue returns active, auto-scheduled keywords whose last scan plus their
// frequency interval is at or before now. Manual keywords are never returned.
func (r *Registry) ListDue(ctx context.Context, now time.Time) ([]*models.Keyword, error) {
	return r.store.ListDueKeywords(ctx, now)
}
