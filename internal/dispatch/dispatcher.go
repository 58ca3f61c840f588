// Package dispatch runs the worker pool that executes scan jobs against
// provider adapters, with per-provider rate limits, bounded attempt timeouts,
// and exponential backoff for transient failures.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mentha-app/mentha-engine/internal/metrics"
	"github.com/mentha-app/mentha-engine/internal/provider"
	"github.com/mentha-app/mentha-engine/internal/queue"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// Search defaults applied to every scan. Keywords carry no per-scan options;
// low temperature keeps recurring scans comparable across windows.
const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 1024
)

// Analyzer consumes one provider response per completed job.
type Analyzer interface {
	Process(ctx context.Context, job *models.ScanJob, resp *models.ProviderResponse) error
}

// providerSource is the slice of provider.Registry the dispatcher needs.
type providerSource interface {
	Get(engine string) (models.SearchProvider, error)
}

// Config tunes the worker pool and retry policy.
type Config struct {
	Workers        int
	AttemptTimeout time.Duration
	// MaxRetries bounds transient-failure retries after the first attempt,
	// so a job makes at most MaxRetries+1 attempts.
	MaxRetries     int
	RetryBaseDelay time.Duration
	ProviderRPS    float64
	ProviderBurst  int
}

// Dispatcher executes scan jobs pulled from the queue.
type Dispatcher struct {
	providers providerSource
	store     store.Store
	queue     queue.Queue
	analyzer  Analyzer
	cfg       Config

	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// New creates a Dispatcher. One rate limiter is built per engine so a slow
// or strict provider never starves the others.
func New(providers providerSource, st store.Store, q queue.Queue, an Analyzer, cfg Config) *Dispatcher {
	limiters := make(map[string]*rate.Limiter, len(models.AllEngines()))
	for _, e := range models.AllEngines() {
		limiters[e] = rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst)
	}

	return &Dispatcher{
		providers: providers,
		store:     st,
		queue:     q,
		analyzer:  an,
		cfg:       cfg,
		limiters:  limiters,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			return d.worker(ctx)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := d.queue.Dequeue(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("dequeue failed", "error", err)
			continue
		}

		d.ProcessJob(ctx, job)
	}
}

// ProcessJob runs one attempt of a scan job. Transient failures are requeued
// with backoff; fatal failures and exhausted retries terminate the job.
func (d *Dispatcher) ProcessJob(ctx context.Context, job *models.ScanJob) {
	attempt := job.AttemptCount + 1

	if attempt == 1 {
		if err := d.store.UpdateScanJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
			slog.Error("mark job running failed", "job_id", job.ID, "error", err)
		}
	}

	p, err := d.providers.Get(job.Engine)
	if err != nil {
		d.fail(ctx, job, attempt, err)
		return
	}

	if lim := d.limiters[job.Engine]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return // shutting down; the in-flight key TTL will free the pair
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	start := d.now()
	resp, err := p.Search(attemptCtx, models.SearchRequest{
		Query:       job.QueryText,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	elapsed := d.now().Sub(start)

	metrics.ScanDuration.WithLabelValues(job.Engine).Observe(elapsed.Seconds())

	if err == nil {
		metrics.ScanAttempts.WithLabelValues(job.Engine, "success").Inc()
		slog.Info("scan attempt succeeded",
			"job_id", job.ID,
			"provider", job.Engine,
			"attempt", attempt,
			"latency_ms", elapsed.Milliseconds(),
		)
		d.complete(ctx, job, attempt, resp)
		return
	}

	if !provider.Transient(err) {
		metrics.ScanAttempts.WithLabelValues(job.Engine, "fatal_error").Inc()
		d.fail(ctx, job, attempt, err)
		return
	}

	metrics.ScanAttempts.WithLabelValues(job.Engine, "transient_error").Inc()
	slog.Warn("scan attempt failed",
		"job_id", job.ID,
		"provider", job.Engine,
		"attempt", attempt,
		"latency_ms", elapsed.Milliseconds(),
		"error", err,
	)

	if attempt > d.cfg.MaxRetries {
		d.fail(ctx, job, attempt, fmt.Errorf("retries exhausted: %w", err))
		return
	}

	// Backoff doubles per failed attempt: base, 2*base, 4*base, ...
	delay := d.cfg.RetryBaseDelay << (attempt - 1)
	job.AttemptCount = attempt
	if err := d.queue.EnqueueDelayed(ctx, job, d.now().Add(delay)); err != nil {
		d.fail(ctx, job, attempt, fmt.Errorf("requeue for retry: %w", err))
	}
}

// complete hands the response downstream and finalizes the job.
func (d *Dispatcher) complete(ctx context.Context, job *models.ScanJob, attempt int, resp *models.ProviderResponse) {
	job.AttemptCount = attempt

	if err := d.analyzer.Process(ctx, job, resp); err != nil {
		d.fail(ctx, job, attempt, fmt.Errorf("analysis: %w", err))
		return
	}

	metrics.TokensUsed.WithLabelValues(job.Engine, resp.ModelName).Add(float64(resp.Usage.TotalTokens))
	metrics.JobsCompleted.WithLabelValues(job.Engine, models.JobStatusCompleted).Inc()

	if err := d.store.UpdateScanJobStatus(ctx, job.ID, models.JobStatusCompleted,
		store.WithAttemptCount(attempt)); err != nil {
		slog.Error("mark job completed failed", "job_id", job.ID, "error", err)
	}
	if err := d.store.SetKeywordScanStatus(ctx, job.KeywordID, models.ScanStatusOK); err != nil {
		slog.Error("set keyword scan status failed", "keyword_id", job.KeywordID, "error", err)
	}
	if err := d.queue.Release(ctx, job.KeywordID, job.Engine); err != nil {
		slog.Error("release in-flight key failed", "job_id", job.ID, "error", err)
	}
}

// fail finalizes a job that cannot proceed: records the error, compensates
// the keyword's optimistic last_scanned_at so it becomes due again, and
// releases the in-flight key.
func (d *Dispatcher) fail(ctx context.Context, job *models.ScanJob, attempt int, cause error) {
	msg := "scan job failed"
	if errors.Is(cause, provider.ErrInvalidCredentials) {
		msg = "scan job failed: provider credentials invalid"
	}
	slog.Error(msg,
		"job_id", job.ID,
		"keyword_id", job.KeywordID,
		"provider", job.Engine,
		"attempt", attempt,
		"error", cause,
	)

	metrics.JobsCompleted.WithLabelValues(job.Engine, models.JobStatusFailed).Inc()

	if err := d.store.UpdateScanJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage(cause.Error()), store.WithAttemptCount(attempt)); err != nil {
		slog.Error("mark job failed failed", "job_id", job.ID, "error", err)
	}
	if err := d.store.RestoreKeywordLastScanned(ctx, job.KeywordID, job.PrevScannedAt); err != nil {
		slog.Error("compensate keyword last scanned failed", "keyword_id", job.KeywordID, "error", err)
	}
	if err := d.queue.Release(ctx, job.KeywordID, job.Engine); err != nil {
		slog.Error("release in-flight key failed", "job_id", job.ID, "error", err)
	}
}
