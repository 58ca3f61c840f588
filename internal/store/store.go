package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, tenantID uuid.UUID) ([]*models.Project, error)

	CreateKeyword(ctx context.Context, k *models.Keyword) error
	GetKeyword(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Keyword, error)
	ListKeywords(ctx context.Context, filter KeywordFilter) ([]*models.Keyword, int, error)
	DeactivateKeyword(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
	ListDueKeywords(ctx context.Context, now time.Time) ([]*models.Keyword, error)
	// AdvanceKeywordLastScanned compare-and-sets last_scanned_at from prev to
	// scannedAt. Returns false when another scheduler tick won the race.
	AdvanceKeywordLastScanned(ctx context.Context, id uuid.UUID, prev *time.Time, scannedAt time.Time) (bool, error)
	// RestoreKeywordLastScanned compensates an optimistic advance after a job
	// permanently fails, making the keyword due again.
	RestoreKeywordLastScanned(ctx context.Context, id uuid.UUID, prev *time.Time) error
	SetKeywordScanStatus(ctx context.Context, id uuid.UUID, status string) error

	CreateScanJob(ctx context.Context, job *models.ScanJob) error
	GetScanJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.ScanJob, error)
	UpdateScanJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	// DeleteScanJob rolls back a job row whose payload never made it onto the
	// queue. Deleting a missing row is not an error.
	DeleteScanJob(ctx context.Context, id uuid.UUID) error

	// CreateScanResult inserts a result unless one already exists for the
	// job. Returns false when the row was already there (idempotent replay).
	CreateScanResult(ctx context.Context, result *models.ScanResult) (bool, error)
	GetScanResultByJobID(ctx context.Context, jobID uuid.UUID) (*models.ScanResult, error)
	GetLatestScanResult(ctx context.Context, keywordID uuid.UUID, engine string, tenantID uuid.UUID) (*models.ScanResult, error)
	// GetPreviousScanResult returns the newest result older than before, for
	// notable-change detection.
	GetPreviousScanResult(ctx context.Context, keywordID uuid.UUID, engine string, before time.Time) (*models.ScanResult, error)
	ListScanResults(ctx context.Context, filter ResultFilter) ([]*models.ScanResult, int, error)
}

type KeywordFilter struct {
	TenantID   uuid.UUID
	ProjectID  uuid.UUID
	ActiveOnly bool
	Page       int
	Limit      int
}

type ResultFilter struct {
	TenantID  uuid.UUID
	KeywordID uuid.UUID
	Engine    string
	Since     time.Time
	Page      int
	Limit     int
}

type jobUpdateParams struct {
	ErrorMessage *string
	AttemptCount *int
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithAttemptCount(n int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.AttemptCount = &n
	}
}
