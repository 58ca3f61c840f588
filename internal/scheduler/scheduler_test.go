package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/internal/keywords"
	"github.com/mentha-app/mentha-engine/internal/queue"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

type mockStore struct {
	store.Store

	mu          sync.Mutex
	keywords    map[uuid.UUID]*models.Keyword
	due         []*models.Keyword
	casResult   bool
	casCalls    int
	jobsCreated []*models.ScanJob
	jobsDeleted []uuid.UUID
	createErr   error
}

func (m *mockStore) GetKeyword(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Keyword, error) {
	kw, ok := m.keywords[id]
	if !ok || kw.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return kw, nil
}

func (m *mockStore) ListDueKeywords(_ context.Context, _ time.Time) ([]*models.Keyword, error) {
	return m.due, nil
}

func (m *mockStore) AdvanceKeywordLastScanned(_ context.Context, _ uuid.UUID, _ *time.Time, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	return m.casResult, nil
}

func (m *mockStore) CreateScanJob(_ context.Context, job *models.ScanJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsCreated = append(m.jobsCreated, job)
	return nil
}

func (m *mockStore) DeleteScanJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsDeleted = append(m.jobsDeleted, id)
	return nil
}

type mockQueue struct {
	queue.Queue

	mu         sync.Mutex
	enqueued   []*models.ScanJob
	enqueueErr map[string]error // engine -> error
	depth      int64
}

func (m *mockQueue) Enqueue(_ context.Context, job *models.ScanJob) error {
	if err := m.enqueueErr[job.Engine]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockQueue) Depth(_ context.Context) (int64, error) {
	return m.depth, nil
}

type mockCache struct {
	cache.Cache

	lockHeld bool // when true, SetNX loses
	setNXKey string
}

func (m *mockCache) SetNX(_ context.Context, key string, _ []byte, _ time.Duration) (bool, error) {
	m.setNXKey = key
	return !m.lockHeld, nil
}

func newTestScheduler(st *mockStore, q *mockQueue, c *mockCache, now time.Time) *Scheduler {
	reg := keywords.NewRegistry(st, 59*time.Minute)
	s := New(reg, st, q, c, time.Minute, 55*time.Second)
	s.now = func() time.Time { return now }
	return s
}

func dueKeyword(jitterMinutes int, lastScanned *time.Time) *models.Keyword {
	return &models.Keyword{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		TenantID:      uuid.New(),
		QueryText:     "best crm for startups",
		ScanFrequency: models.FrequencyDaily,
		TargetEngines: []string{models.EngineOpenAI, models.EnginePerplexity},
		IsActive:      true,
		JitterMinutes: jitterMinutes,
		LastScannedAt: lastScanned,
		CreatedAt:     time.Now().UTC().Add(-48 * time.Hour),
	}
}

func TestTick_EnqueuesOneJobPerEngine(t *testing.T) {
	now := time.Now().UTC()
	kw := dueKeyword(0, nil)
	st := &mockStore{due: []*models.Keyword{kw}, casResult: true}
	q := &mockQueue{}
	c := &mockCache{}
	s := newTestScheduler(st, q, c, now)

	require.NoError(t, s.Tick(context.Background()))

	require.Len(t, q.enqueued, 2)
	require.Len(t, st.jobsCreated, 2)
	engines := []string{q.enqueued[0].Engine, q.enqueued[1].Engine}
	assert.ElementsMatch(t, []string{models.EngineOpenAI, models.EnginePerplexity}, engines)

	job := q.enqueued[0]
	assert.Equal(t, kw.ID, job.KeywordID)
	assert.Equal(t, kw.TenantID, job.TenantID)
	assert.Equal(t, kw.QueryText, job.QueryText)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Nil(t, job.PrevScannedAt)
	assert.Equal(t, now, job.EnqueuedAt)
}

func TestTick_SkipsWhenLockNotAcquired(t *testing.T) {
	st := &mockStore{due: []*models.Keyword{dueKeyword(0, nil)}, casResult: true}
	q := &mockQueue{}
	c := &mockCache{lockHeld: true}
	s := newTestScheduler(st, q, c, time.Now().UTC())

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, cache.SchedulerLockKey(), c.setNXKey)
	assert.Empty(t, q.enqueued)
	assert.Zero(t, st.casCalls)
}

func TestTick_JitterGatesFireTime(t *testing.T) {
	now := time.Now().UTC()

	// Due 30 minutes ago, jitter offset of 45 minutes: not yet.
	last := now.Add(-24*time.Hour - 30*time.Minute)
	early := dueKeyword(45, &last)

	// Due 50 minutes ago, jitter offset of 45 minutes: fires.
	lastReady := now.Add(-24*time.Hour - 50*time.Minute)
	ready := dueKeyword(45, &lastReady)

	st := &mockStore{due: []*models.Keyword{early, ready}, casResult: true}
	q := &mockQueue{}
	s := newTestScheduler(st, q, &mockCache{}, now)

	require.NoError(t, s.Tick(context.Background()))

	require.Len(t, q.enqueued, 2)
	for _, job := range q.enqueued {
		assert.Equal(t, ready.ID, job.KeywordID)
	}
}

func TestTick_LostCASSkipsKeyword(t *testing.T) {
	st := &mockStore{due: []*models.Keyword{dueKeyword(0, nil)}, casResult: false}
	q := &mockQueue{}
	s := newTestScheduler(st, q, &mockCache{}, time.Now().UTC())

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, 1, st.casCalls)
	assert.Empty(t, q.enqueued)
	assert.Empty(t, st.jobsCreated)
}

func TestTick_DuplicateEnqueueTolerated(t *testing.T) {
	kw := dueKeyword(0, nil)
	st := &mockStore{due: []*models.Keyword{kw}, casResult: true}
	q := &mockQueue{enqueueErr: map[string]error{models.EngineOpenAI: queue.ErrDuplicateEnqueue}}
	s := newTestScheduler(st, q, &mockCache{}, time.Now().UTC())

	require.NoError(t, s.Tick(context.Background()))

	// The in-flight engine is skipped; the other still gets its job.
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, models.EnginePerplexity, q.enqueued[0].Engine)

	// The skipped engine's row was rolled back so no orphan row survives.
	require.Len(t, st.jobsCreated, 2)
	require.Len(t, st.jobsDeleted, 1)
	var openaiJob *models.ScanJob
	for _, job := range st.jobsCreated {
		if job.Engine == models.EngineOpenAI {
			openaiJob = job
		}
	}
	require.NotNil(t, openaiJob)
	assert.Equal(t, openaiJob.ID, st.jobsDeleted[0])
}

func TestScheduleManual_EnqueuesAllEngines(t *testing.T) {
	now := time.Now().UTC()
	last := now.Add(-time.Hour) // not due; manual bypasses the frequency gate
	kw := dueKeyword(30, &last)
	st := &mockStore{
		keywords:  map[uuid.UUID]*models.Keyword{kw.ID: kw},
		casResult: true,
	}
	q := &mockQueue{}
	s := newTestScheduler(st, q, &mockCache{}, now)

	jobs, err := s.ScheduleManual(context.Background(), kw.ID, kw.TenantID)
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	require.Len(t, q.enqueued, 2)
	require.NotNil(t, jobs[0].PrevScannedAt)
	assert.Equal(t, last, *jobs[0].PrevScannedAt)
}

func TestScheduleManual_InactiveKeyword(t *testing.T) {
	kw := dueKeyword(0, nil)
	kw.IsActive = false
	st := &mockStore{keywords: map[uuid.UUID]*models.Keyword{kw.ID: kw}}
	s := newTestScheduler(st, &mockQueue{}, &mockCache{}, time.Now().UTC())

	_, err := s.ScheduleManual(context.Background(), kw.ID, kw.TenantID)
	assert.ErrorIs(t, err, ErrKeywordInactive)
}

func TestScheduleManual_UnknownKeyword(t *testing.T) {
	st := &mockStore{keywords: map[uuid.UUID]*models.Keyword{}}
	s := newTestScheduler(st, &mockQueue{}, &mockCache{}, time.Now().UTC())

	_, err := s.ScheduleManual(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScheduleManual_WrongTenant(t *testing.T) {
	kw := dueKeyword(0, nil)
	st := &mockStore{keywords: map[uuid.UUID]*models.Keyword{kw.ID: kw}}
	s := newTestScheduler(st, &mockQueue{}, &mockCache{}, time.Now().UTC())

	_, err := s.ScheduleManual(context.Background(), kw.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnqueueKeyword_RecordFailureNeverPublishes(t *testing.T) {
	kw := dueKeyword(0, nil)
	kw.TargetEngines = []string{models.EngineOpenAI}
	st := &mockStore{
		keywords:  map[uuid.UUID]*models.Keyword{kw.ID: kw},
		casResult: true,
		createErr: assert.AnError,
	}
	q := &mockQueue{}
	s := newTestScheduler(st, q, &mockCache{}, time.Now().UTC())

	_, err := s.ScheduleManual(context.Background(), kw.ID, kw.TenantID)
	require.Error(t, err)

	// The row insert failed before the payload was published, so no worker
	// can ever dequeue a job with no backing row.
	assert.Empty(t, q.enqueued)
	assert.Empty(t, st.jobsDeleted)
}

func TestEnqueueKeyword_PublishFailureRollsBackRow(t *testing.T) {
	kw := dueKeyword(0, nil)
	kw.TargetEngines = []string{models.EngineOpenAI}
	st := &mockStore{
		keywords:  map[uuid.UUID]*models.Keyword{kw.ID: kw},
		casResult: true,
	}
	q := &mockQueue{enqueueErr: map[string]error{models.EngineOpenAI: assert.AnError}}
	s := newTestScheduler(st, q, &mockCache{}, time.Now().UTC())

	_, err := s.ScheduleManual(context.Background(), kw.ID, kw.TenantID)
	require.Error(t, err)

	require.Len(t, st.jobsCreated, 1)
	assert.Equal(t, []uuid.UUID{st.jobsCreated[0].ID}, st.jobsDeleted)
	assert.Empty(t, q.enqueued)
}
