// Package scheduler turns due keywords into enqueued scan jobs. A single
// leader-locked polling loop replaces any external cron: one replica wins the
// tick lock, computes due keywords, and enqueues one job per keyword+engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/internal/keywords"
	"github.com/mentha-app/mentha-engine/internal/metrics"
	"github.com/mentha-app/mentha-engine/internal/queue"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// ErrKeywordInactive rejects manual scans of deactivated keywords.
var ErrKeywordInactive = errors.New("keyword is not active")

// Scheduler periodically enqueues scans for due keywords and serves manual
// trigger requests.
type Scheduler struct {
	registry *keywords.Registry
	store    store.Store
	queue    queue.Queue
	cache    cache.Cache

	tick    time.Duration
	lockTTL time.Duration
	now     func() time.Time // swappable clock for tests
}

// New creates a Scheduler.
func New(reg *keywords.Registry, st store.Store, q queue.Queue, ca cache.Cache, tick, lockTTL time.Duration) *Scheduler {
	return &Scheduler{
		registry: reg,
		store:    st,
		queue:    q,
		cache:    ca,
		tick:     tick,
		lockTTL:  lockTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run drives the tick loop until ctx is cancelled. The first tick fires
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	if err := s.Tick(ctx); err != nil {
		slog.Error("scheduler tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Tick(ctx); err != nil {
				slog.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduling pass. Replicas race for the tick lock; losers
// no-op so a keyword set is only scheduled once per interval.
func (s *Scheduler) Tick(ctx context.Context) error {
	leader, err := s.cache.SetNX(ctx, cache.SchedulerLockKey(), []byte("1"), s.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire tick lock: %w", err)
	}
	if !leader {
		return nil
	}

	now := s.now()
	due, err := s.registry.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due keywords: %w", err)
	}

	for _, kw := range due {
		if !s.jitterElapsed(kw, now) {
			continue
		}
		if _, err := s.enqueueKeyword(ctx, kw, "recurring"); err != nil {
			slog.Error("enqueue keyword failed", "keyword_id", kw.ID, "error", err)
		}
	}

	if depth, err := s.queue.Depth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}

	return nil
}

// jitterElapsed reports whether the keyword's stable jitter offset has passed
// since it became due. The offset spreads fire times so all daily keywords
// registered together don't hammer providers in the same minute.
func (s *Scheduler) jitterElapsed(kw *models.Keyword, now time.Time) bool {
	jitter := time.Duration(kw.JitterMinutes) * time.Minute

	base := kw.CreatedAt
	if kw.LastScannedAt != nil {
		base = kw.LastScannedAt.Add(kw.Interval())
	}
	return !now.Before(base.Add(jitter))
}

// ScheduleManual enqueues jobs for every target engine of a keyword,
// bypassing the frequency gate and jitter. The in-flight dedup key still
// applies: engines with a running scan are skipped.
func (s *Scheduler) ScheduleManual(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) ([]*models.ScanJob, error) {
	kw, err := s.registry.Get(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if !kw.IsActive {
		return nil, ErrKeywordInactive
	}
	return s.enqueueKeyword(ctx, kw, "manual")
}

// enqueueKeyword advances last_scanned_at optimistically via compare-and-set,
// then enqueues one job per target engine. A lost CAS means a concurrent tick
// already scheduled this window; a duplicate enqueue means the pair is still
// in flight. Both are silent no-ops.
func (s *Scheduler) enqueueKeyword(ctx context.Context, kw *models.Keyword, origin string) ([]*models.ScanJob, error) {
	now := s.now()
	prev := kw.LastScannedAt

	advanced, err := s.store.AdvanceKeywordLastScanned(ctx, kw.ID, prev, now)
	if err != nil {
		return nil, err
	}
	if !advanced {
		metrics.ScansEnqueued.WithLabelValues(origin, "duplicate").Inc()
		return nil, nil
	}

	var jobs []*models.ScanJob
	for _, engine := range kw.TargetEngines {
		job := &models.ScanJob{
			ID:            uuid.New(),
			KeywordID:     kw.ID,
			TenantID:      kw.TenantID,
			ProjectID:     kw.ProjectID,
			Engine:        engine,
			QueryText:     kw.QueryText,
			Status:        models.JobStatusPending,
			PrevScannedAt: prev,
			EnqueuedAt:    now,
		}

		// The row is written before the payload is published so a dequeued
		// job always has a backing row for status updates and results.
		if err := s.store.CreateScanJob(ctx, job); err != nil {
			return jobs, fmt.Errorf("record scan job: %w", err)
		}

		err := s.queue.Enqueue(ctx, job)
		if errors.Is(err, queue.ErrDuplicateEnqueue) {
			// The in-flight copy owns the pair; drop the row we just wrote.
			_ = s.store.DeleteScanJob(ctx, job.ID)
			metrics.ScansEnqueued.WithLabelValues(origin, "duplicate").Inc()
			slog.Debug("scan already in flight", "keyword_id", kw.ID, "engine", engine)
			continue
		}
		if err != nil {
			_ = s.store.DeleteScanJob(ctx, job.ID)
			return jobs, fmt.Errorf("enqueue %s/%s: %w", kw.ID, engine, err)
		}

		metrics.ScansEnqueued.WithLabelValues(origin, "enqueued").Inc()
		slog.Info("scan job enqueued",
			"keyword_id", kw.ID,
			"engine", engine,
			"origin", origin,
			"job_id", job.ID,
		)
		jobs = append(jobs, job)
	}

	return jobs, nil
}
