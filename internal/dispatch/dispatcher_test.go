package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentha-app/mentha-engine/internal/provider"
	"github.com/mentha-app/mentha-engine/internal/provider/mock"
	"github.com/mentha-app/mentha-engine/internal/queue"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

type stubProviders struct {
	p   models.SearchProvider
	err error
}

func (s stubProviders) Get(string) (models.SearchProvider, error) {
	return s.p, s.err
}

type statusUpdate struct {
	jobID  uuid.UUID
	status string
	opts   int
}

type mockStore struct {
	store.Store

	updates    []statusUpdate
	scanStatus []string
	restored   []*time.Time
}

func (m *mockStore) UpdateScanJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	m.updates = append(m.updates, statusUpdate{jobID: id, status: status, opts: len(opts)})
	return nil
}

func (m *mockStore) SetKeywordScanStatus(_ context.Context, _ uuid.UUID, status string) error {
	m.scanStatus = append(m.scanStatus, status)
	return nil
}

func (m *mockStore) RestoreKeywordLastScanned(_ context.Context, _ uuid.UUID, prev *time.Time) error {
	m.restored = append(m.restored, prev)
	return nil
}

type delayedJob struct {
	job     *models.ScanJob
	readyAt time.Time
}

type mockQueue struct {
	queue.Queue

	delayed  []delayedJob
	released int
}

func (m *mockQueue) EnqueueDelayed(_ context.Context, job *models.ScanJob, readyAt time.Time) error {
	m.delayed = append(m.delayed, delayedJob{job: job, readyAt: readyAt})
	return nil
}

func (m *mockQueue) Release(_ context.Context, _ uuid.UUID, _ string) error {
	m.released++
	return nil
}

type mockAnalyzer struct {
	jobs []*models.ScanJob
	err  error
}

func (m *mockAnalyzer) Process(_ context.Context, job *models.ScanJob, _ *models.ProviderResponse) error {
	m.jobs = append(m.jobs, job)
	return m.err
}

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestDispatcher(src providerSource, st *mockStore, q *mockQueue, an *mockAnalyzer) *Dispatcher {
	d := New(src, st, q, an, Config{
		Workers:        1,
		AttemptTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 2 * time.Second,
		ProviderRPS:    1000,
		ProviderBurst:  1000,
	})
	d.now = func() time.Time { return fixedNow }
	return d
}

func pendingJob() *models.ScanJob {
	return &models.ScanJob{
		ID:        uuid.New(),
		KeywordID: uuid.New(),
		TenantID:  uuid.New(),
		ProjectID: uuid.New(),
		Engine:    models.EngineOpenAI,
		QueryText: "best crm for startups",
		Status:    models.JobStatusPending,
	}
}

func TestProcessJob_Success(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	an := &mockAnalyzer{}
	p := mock.NewMockProvider(models.EngineOpenAI)
	d := newTestDispatcher(stubProviders{p: p}, st, q, an)

	job := pendingJob()
	d.ProcessJob(context.Background(), job)

	require.Len(t, p.Calls, 1)
	assert.Equal(t, job.QueryText, p.Calls[0].Query)
	assert.Equal(t, defaultTemperature, p.Calls[0].Temperature)
	assert.Equal(t, defaultMaxTokens, p.Calls[0].MaxTokens)

	require.Len(t, an.jobs, 1)
	assert.Equal(t, 1, an.jobs[0].AttemptCount)

	require.Len(t, st.updates, 2)
	assert.Equal(t, models.JobStatusRunning, st.updates[0].status)
	assert.Equal(t, models.JobStatusCompleted, st.updates[1].status)
	assert.Equal(t, []string{models.ScanStatusOK}, st.scanStatus)
	assert.Equal(t, 1, q.released)
	assert.Empty(t, q.delayed)
}

func TestProcessJob_TransientFailureRequeuesWithBackoff(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	p := mock.NewFailingProvider(models.EngineOpenAI, provider.ErrProviderUnavailable)
	d := newTestDispatcher(stubProviders{p: p}, st, q, &mockAnalyzer{})

	job := pendingJob()
	d.ProcessJob(context.Background(), job)

	require.Len(t, q.delayed, 1)
	assert.Equal(t, 1, q.delayed[0].job.AttemptCount)
	assert.Equal(t, fixedNow.Add(2*time.Second), q.delayed[0].readyAt)

	// The job is still live: no terminal status, in-flight key kept.
	require.Len(t, st.updates, 1)
	assert.Equal(t, models.JobStatusRunning, st.updates[0].status)
	assert.Zero(t, q.released)
	assert.Empty(t, st.restored)
}

func TestProcessJob_BackoffDoublesPerAttempt(t *testing.T) {
	tests := []struct {
		attemptCount int
		wantDelay    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
	}

	for _, tt := range tests {
		st := &mockStore{}
		q := &mockQueue{}
		p := mock.NewFailingProvider(models.EngineOpenAI, provider.ErrRateLimited)
		d := newTestDispatcher(stubProviders{p: p}, st, q, &mockAnalyzer{})

		job := pendingJob()
		job.AttemptCount = tt.attemptCount
		d.ProcessJob(context.Background(), job)

		require.Len(t, q.delayed, 1)
		assert.Equal(t, fixedNow.Add(tt.wantDelay), q.delayed[0].readyAt)
	}
}

func TestProcessJob_RetriesExhausted(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	p := mock.NewFailingProvider(models.EngineOpenAI, provider.ErrProviderTimeout)
	d := newTestDispatcher(stubProviders{p: p}, st, q, &mockAnalyzer{})

	prev := fixedNow.Add(-24 * time.Hour)
	job := pendingJob()
	job.AttemptCount = 3 // fourth attempt: past MaxRetries
	job.PrevScannedAt = &prev
	d.ProcessJob(context.Background(), job)

	assert.Empty(t, q.delayed)
	require.Len(t, st.updates, 1)
	assert.Equal(t, models.JobStatusFailed, st.updates[0].status)

	// Compensation restores the pre-scan timestamp so the keyword is due again.
	require.Len(t, st.restored, 1)
	assert.Equal(t, prev, *st.restored[0])
	assert.Equal(t, 1, q.released)
}

func TestProcessJob_CredentialErrorIsFatal(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	p := mock.NewFailingProvider(models.EngineOpenAI, provider.ErrInvalidCredentials)
	d := newTestDispatcher(stubProviders{p: p}, st, q, &mockAnalyzer{})

	job := pendingJob()
	d.ProcessJob(context.Background(), job)

	// Not retried: straight to failed on the first attempt.
	assert.Empty(t, q.delayed)
	require.Len(t, st.updates, 2)
	assert.Equal(t, models.JobStatusRunning, st.updates[0].status)
	assert.Equal(t, models.JobStatusFailed, st.updates[1].status)
	require.Len(t, st.restored, 1)
	assert.Nil(t, st.restored[0])
	assert.Equal(t, 1, q.released)
}

func TestProcessJob_UnregisteredEngine(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	d := newTestDispatcher(stubProviders{err: provider.ErrInvalidCredentials}, st, q, &mockAnalyzer{})

	d.ProcessJob(context.Background(), pendingJob())

	require.Len(t, st.updates, 2)
	assert.Equal(t, models.JobStatusFailed, st.updates[1].status)
	assert.Equal(t, 1, q.released)
}

func TestProcessJob_AnalyzerFailureFailsJob(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	an := &mockAnalyzer{err: assert.AnError}
	p := mock.NewMockProvider(models.EngineOpenAI)
	d := newTestDispatcher(stubProviders{p: p}, st, q, an)

	job := pendingJob()
	d.ProcessJob(context.Background(), job)

	// The provider response is consume-once: an analysis failure terminates
	// the job instead of retrying the scan.
	require.Len(t, st.updates, 2)
	assert.Equal(t, models.JobStatusFailed, st.updates[1].status)
	assert.Empty(t, q.delayed)
	assert.Equal(t, 1, q.released)
}

func TestProcessJob_RetrySkipsRunningTransition(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	p := mock.NewMockProvider(models.EngineOpenAI)
	d := newTestDispatcher(stubProviders{p: p}, st, q, &mockAnalyzer{})

	job := pendingJob()
	job.AttemptCount = 2 // third attempt after two requeues
	d.ProcessJob(context.Background(), job)

	// Already marked running on the first attempt; only the terminal update.
	require.Len(t, st.updates, 1)
	assert.Equal(t, models.JobStatusCompleted, st.updates[0].status)
	assert.Equal(t, 3, job.AttemptCount)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	st := &mockStore{}
	q := &mockQueue{}
	d := newTestDispatcher(stubProviders{p: mock.NewMockProvider(models.EngineOpenAI)}, st, q, &mockAnalyzer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
