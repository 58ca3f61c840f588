package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, plan, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.Plan, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, tenant_id, name, brand_name, brand_aliases, brand_facts, competitor_names, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.Name, p.BrandName, p.BrandAliases, p.BrandFacts, p.CompetitorNames,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, brand_name, brand_aliases, brand_facts, competitor_names, created_at, updated_at
		 FROM projects WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.BrandName, &p.BrandAliases, &p.BrandFacts,
		&p.CompetitorNames, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, tenantID uuid.UUID) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, brand_name, brand_aliases, brand_facts, competitor_names, created_at, updated_at
		 FROM projects WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.BrandName, &p.BrandAliases,
			&p.BrandFacts, &p.CompetitorNames, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// --- Keywords ---

const keywordColumns = `id, project_id, tenant_id, query_text, intent_category, scan_frequency,
	target_engines, is_active, jitter_minutes, last_scanned_at, last_scan_status, created_at, updated_at`

func scanKeyword(row pgx.Row) (*models.Keyword, error) {
	var k models.Keyword
	err := row.Scan(&k.ID, &k.ProjectID, &k.TenantID, &k.QueryText, &k.IntentCategory,
		&k.ScanFrequency, &k.TargetEngines, &k.IsActive, &k.JitterMinutes,
		&k.LastScannedAt, &k.LastScanStatus, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) CreateKeyword(ctx context.Context, k *models.Keyword) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO keywords (id, project_id, tenant_id, query_text, intent_category, scan_frequency,
		   target_engines, is_active, jitter_minutes, last_scan_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		k.ID, k.ProjectID, k.TenantID, k.QueryText, k.IntentCategory, k.ScanFrequency,
		k.TargetEngines, k.IsActive, k.JitterMinutes, k.LastScanStatus, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create keyword: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetKeyword(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Keyword, error) {
	k, err := scanKeyword(s.pool.QueryRow(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get keyword: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListKeywords(ctx context.Context, filter KeywordFilter) ([]*models.Keyword, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.ProjectID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argIdx))
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM keywords WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count keywords: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+keywordColumns+` FROM keywords WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []*models.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, k)
	}
	return keywords, total, rows.Err()
}

func (s *PostgresStore) DeactivateKeyword(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE keywords SET is_active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND is_active`, id, tenantID)
	if err != nil {
		return fmt.Errorf("deactivate keyword: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDueKeywords(ctx context.Context, now time.Time) ([]*models.Keyword, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+keywordColumns+` FROM keywords
		 WHERE is_active AND scan_frequency <> 'manual'
		   AND (last_scanned_at IS NULL
		     OR (scan_frequency = 'daily'  AND last_scanned_at + INTERVAL '24 hours' <= $1)
		     OR (scan_frequency = 'weekly' AND last_scanned_at + INTERVAL '7 days'   <= $1))
		 ORDER BY last_scanned_at NULLS FIRST`, now)
	if err != nil {
		return nil, fmt.Errorf("list due keywords: %w", err)
	}
	defer rows.Close()

	var keywords []*models.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

func (s *PostgresStore) AdvanceKeywordLastScanned(ctx context.Context, id uuid.UUID, prev *time.Time, scannedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE keywords SET last_scanned_at = $3, last_scan_status = 'pending', updated_at = NOW()
		 WHERE id = $1 AND last_scanned_at IS NOT DISTINCT FROM $2`, id, prev, scannedAt)
	if err != nil {
		return false, fmt.Errorf("advance keyword last scanned: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RestoreKeywordLastScanned(ctx context.Context, id uuid.UUID, prev *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE keywords SET last_scanned_at = $2, last_scan_status = 'failed', updated_at = NOW()
		 WHERE id = $1`, id, prev)
	if err != nil {
		return fmt.Errorf("restore keyword last scanned: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetKeywordScanStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE keywords SET last_scan_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set keyword scan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Scan Jobs ---

func (s *PostgresStore) CreateScanJob(ctx context.Context, job *models.ScanJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_jobs (id, keyword_id, tenant_id, project_id, engine, query_text, status, attempt_count, enqueued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.KeywordID, job.TenantID, job.ProjectID, job.Engine, job.QueryText,
		job.Status, job.AttemptCount, job.EnqueuedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create scan job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScanJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.ScanJob, error) {
	var j models.ScanJob
	err := s.pool.QueryRow(ctx,
		`SELECT id, keyword_id, tenant_id, project_id, engine, query_text, status, attempt_count,
		   error_message, enqueued_at, started_at, completed_at
		 FROM scan_jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&j.ID, &j.KeywordID, &j.TenantID, &j.ProjectID, &j.Engine, &j.QueryText, &j.Status,
		&j.AttemptCount, &j.ErrorMessage, &j.EnqueuedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan job: %w", err)
	}
	return &j, nil
}

var validTransitions = map[string][]string{
	models.JobStatusPending: {models.JobStatusRunning},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed},
}

func (s *PostgresStore) UpdateScanJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM scan_jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get scan job status: %w", err)
	}

	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid scan job status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE scan_jobs SET status = $2`
	args := []any{id, status}
	argIdx := 3

	if status == models.JobStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.AttemptCount != nil {
		query += fmt.Sprintf(", attempt_count = $%d", argIdx)
		args = append(args, *params.AttemptCount)
		argIdx++
	}

	query += " WHERE id = $1"

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update scan job status: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteScanJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM scan_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scan job: %w", err)
	}
	return nil
}

// --- Scan Results ---

const resultColumns = `id, scan_job_id, keyword_id, tenant_id, engine, brand_visibility, sentiment_score,
	recommendation_type, hallucination_flag, compliance_warning, raw_response, analysis_json, degraded,
	model_name, total_tokens, latency_ms, created_at`

func scanResult(row pgx.Row) (*models.ScanResult, error) {
	var r models.ScanResult
	err := row.Scan(&r.ID, &r.ScanJobID, &r.KeywordID, &r.TenantID, &r.Engine, &r.BrandVisibility,
		&r.SentimentScore, &r.RecommendationType, &r.HallucinationFlag, &r.ComplianceWarning,
		&r.RawResponse, &r.AnalysisJSON, &r.Degraded, &r.ModelName, &r.TotalTokens, &r.LatencyMs,
		&r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateScanResult(ctx context.Context, result *models.ScanResult) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scan_results (id, scan_job_id, keyword_id, tenant_id, engine, brand_visibility,
		   sentiment_score, recommendation_type, hallucination_flag, compliance_warning, raw_response,
		   analysis_json, degraded, model_name, total_tokens, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (scan_job_id) DO NOTHING`,
		result.ID, result.ScanJobID, result.KeywordID, result.TenantID, result.Engine,
		result.BrandVisibility, result.SentimentScore, result.RecommendationType,
		result.HallucinationFlag, result.ComplianceWarning, result.RawResponse,
		result.AnalysisJSON, result.Degraded, result.ModelName, result.TotalTokens,
		result.LatencyMs, result.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create scan result: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetScanResultByJobID(ctx context.Context, jobID uuid.UUID) (*models.ScanResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM scan_results WHERE scan_job_id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan result by job: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetLatestScanResult(ctx context.Context, keywordID uuid.UUID, engine string, tenantID uuid.UUID) (*models.ScanResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM scan_results
		 WHERE keyword_id = $1 AND engine = $2 AND tenant_id = $3
		 ORDER BY created_at DESC LIMIT 1`, keywordID, engine, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest scan result: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetPreviousScanResult(ctx context.Context, keywordID uuid.UUID, engine string, before time.Time) (*models.ScanResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM scan_results
		 WHERE keyword_id = $1 AND engine = $2 AND created_at < $3
		 ORDER BY created_at DESC LIMIT 1`, keywordID, engine, before))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get previous scan result: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListScanResults(ctx context.Context, filter ResultFilter) ([]*models.ScanResult, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.KeywordID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("keyword_id = $%d", argIdx))
		args = append(args, filter.KeywordID)
		argIdx++
	}
	if filter.Engine != "" {
		conditions = append(conditions, fmt.Sprintf("engine = $%d", argIdx))
		args = append(args, filter.Engine)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM scan_results WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scan results: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+resultColumns+` FROM scan_results WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scan results: %w", err)
	}
	defer rows.Close()

	var results []*models.ScanResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan result row: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
