package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error                               { return s.pingErr }
func (s *testStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) { return nil, nil }
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *testStore) CreateProject(_ context.Context, _ *models.Project) error       { return nil }
func (s *testStore) GetProject(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Project, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListProjects(_ context.Context, _ uuid.UUID) ([]*models.Project, error) {
	return nil, nil
}
func (s *testStore) CreateKeyword(_ context.Context, _ *models.Keyword) error { return nil }
func (s *testStore) GetKeyword(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Keyword, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListKeywords(_ context.Context, _ store.KeywordFilter) ([]*models.Keyword, int, error) {
	return nil, 0, nil
}
func (s *testStore) DeactivateKeyword(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *testStore) ListDueKeywords(_ context.Context, _ time.Time) ([]*models.Keyword, error) {
	return nil, nil
}
func (s *testStore) AdvanceKeywordLastScanned(_ context.Context, _ uuid.UUID, _ *time.Time, _ time.Time) (bool, error) {
	return true, nil
}
func (s *testStore) RestoreKeywordLastScanned(_ context.Context, _ uuid.UUID, _ *time.Time) error {
	return nil
}
func (s *testStore) SetKeywordScanStatus(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *testStore) CreateScanJob(_ context.Context, _ *models.ScanJob) error            { return nil }
func (s *testStore) GetScanJob(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.ScanJob, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) UpdateScanJobStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.JobUpdateOption) error {
	return nil
}
func (s *testStore) DeleteScanJob(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateScanResult(_ context.Context, _ *models.ScanResult) (bool, error) {
	return true, nil
}
func (s *testStore) GetScanResultByJobID(_ context.Context, _ uuid.UUID) (*models.ScanResult, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetLatestScanResult(_ context.Context, _ uuid.UUID, _ string, _ uuid.UUID) (*models.ScanResult, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetPreviousScanResult(_ context.Context, _ uuid.UUID, _ string, _ time.Time) (*models.ScanResult, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListScanResults(_ context.Context, _ store.ResultFilter) ([]*models.ScanResult, int, error) {
	return nil, 0, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) SetNX(_ context.Context, _ string, _ []byte, _ time.Duration) (bool, error) {
	return true, nil
}
func (c *testCache) Ping(_ context.Context) error { return c.pingErr }
func (c *testCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *testCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_BothDegraded(t *testing.T) {
	h := healthHandler(
		&testStore{pingErr: errors.New("db down")},
		&testCache{pingErr: errors.New("redis down")},
	)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
