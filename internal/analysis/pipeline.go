package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/internal/metrics"
	"github.com/mentha-app/mentha-engine/internal/queue"
	"github.com/mentha-app/mentha-engine/internal/store"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

var emptyAnalysis = []byte("{}")

// latestResultTTL bounds how long a cached latest result is served before
// falling back to the database.
const latestResultTTL = 24 * time.Hour

// Pipeline derives one ScanResult from each completed scan job's provider
// response and flags notable visibility changes for downstream alerting.
type Pipeline struct {
	store store.Store
	queue queue.Queue
	cache cache.Cache
	judge Judge
}

func NewPipeline(st store.Store, q queue.Queue, c cache.Cache, judge Judge) *Pipeline {
	return &Pipeline{store: st, queue: q, cache: c, judge: judge}
}

// analysisDetail is the structured breakdown persisted as analysis_json.
type analysisDetail struct {
	Mentions       []Mention `json:"mentions"`
	MatchedTerms   []string  `json:"matched_terms"`
	CitationCount  int       `json:"citation_count"`
	JudgeVerdict   bool      `json:"judge_verdict"`
	JudgeSkipped   bool      `json:"judge_skipped,omitempty"`
	ComplianceHits string    `json:"compliance_hits,omitempty"`
}

// Process analyzes one provider response and persists exactly one ScanResult
// for the job. Replays are no-ops; malformed or empty provider content
// produces a degraded result rather than an error. Only storage failures
// propagate.
func (p *Pipeline) Process(ctx context.Context, job *models.ScanJob, resp *models.ProviderResponse) error {
	project, err := p.store.GetProject(ctx, job.ProjectID, job.TenantID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", job.ProjectID, err)
	}

	result := &models.ScanResult{
		ID:          uuid.New(),
		ScanJobID:   job.ID,
		KeywordID:   job.KeywordID,
		TenantID:    job.TenantID,
		Engine:      job.Engine,
		RawResponse: resp.Content,
		ModelName:   resp.ModelName,
		TotalTokens: resp.Usage.TotalTokens,
		LatencyMs:   resp.LatencyMs,
		CreatedAt:   time.Now().UTC(),
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		result.RecommendationType = models.RecommendationAbsent
		result.AnalysisJSON = emptyAnalysis
		result.Degraded = true
		slog.Warn("provider returned empty content, persisting degraded result",
			"job_id", job.ID, "provider", job.Engine)
	} else {
		p.analyze(ctx, project, content, resp.Citations, result)
	}

	// The comparison baseline is the newest result older than this one, so
	// the row we are about to write can never be compared against itself.
	prev, err := p.store.GetPreviousScanResult(ctx, job.KeywordID, job.Engine, result.CreatedAt)
	if errors.Is(err, store.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return fmt.Errorf("load previous result: %w", err)
	}

	created, err := p.store.CreateScanResult(ctx, result)
	if err != nil {
		return fmt.Errorf("persist scan result: %w", err)
	}
	if !created {
		slog.Info("scan result already exists, skipping replay", "job_id", job.ID)
		return nil
	}

	metrics.AnalysisResults.WithLabelValues(result.RecommendationType).Inc()

	// Best-effort: the read path serves the latest result from cache.
	if raw, err := json.Marshal(result); err == nil {
		key := cache.LatestResultKey(job.KeywordID, job.Engine)
		if err := p.cache.Set(ctx, key, raw, latestResultTTL); err != nil {
			slog.Warn("cache latest result failed", "keyword_id", job.KeywordID, "error", err)
		}
	}

	if prev != nil && notableChange(prev, result) {
		metrics.NotableChanges.Inc()
		n := &queue.Notification{
			KeywordID:    job.KeywordID,
			TenantID:     job.TenantID,
			Engine:       job.Engine,
			ScanResultID: result.ID,
			PrevType:     prev.RecommendationType,
			NewType:      result.RecommendationType,
			PrevVisible:  prev.BrandVisibility,
			NewVisible:   result.BrandVisibility,
			CreatedAt:    result.CreatedAt,
		}
		if err := p.queue.EnqueueNotification(ctx, n); err != nil {
			slog.Error("enqueue notification failed", "keyword_id", job.KeywordID, "error", err)
		} else {
			slog.Info("notable visibility change",
				"keyword_id", job.KeywordID,
				"provider", job.Engine,
				"prev_type", prev.RecommendationType,
				"new_type", result.RecommendationType,
			)
		}
	}

	return nil
}

// analyze fills the classification fields on result from non-empty content.
func (p *Pipeline) analyze(ctx context.Context, project *models.Project, content string, citations []models.Citation, result *models.ScanResult) {
	mentions := DetectMentions(content, project.BrandName, project.BrandAliases)
	result.BrandVisibility = len(mentions) > 0
	result.RecommendationType = ClassifyRecommendation(content, mentions)

	contexts := make([]string, 0, len(mentions))
	termSet := make(map[string]struct{})
	for _, m := range mentions {
		contexts = append(contexts, m.Context)
		termSet[m.Term] = struct{}{}
	}
	result.SentimentScore = ScoreSentiment(contexts)
	result.ComplianceWarning = DetectComplianceWarning(content)

	detail := analysisDetail{
		Mentions:      mentions,
		MatchedTerms:  make([]string, 0, len(termSet)),
		CitationCount: len(citations),
	}
	for term := range termSet {
		detail.MatchedTerms = append(detail.MatchedTerms, term)
	}
	sort.Strings(detail.MatchedTerms)

	if result.BrandVisibility {
		flagged, err := p.judge.Assess(ctx, project, content, mentions)
		if err != nil {
			slog.Warn("hallucination judge failed, leaving flag unset",
				"keyword_id", result.KeywordID, "error", err)
			detail.JudgeSkipped = true
		} else {
			result.HallucinationFlag = flagged
			detail.JudgeVerdict = flagged
		}
	}
	if result.ComplianceWarning != nil {
		detail.ComplianceHits = *result.ComplianceWarning
	}

	raw, err := json.Marshal(detail)
	if err != nil {
		result.AnalysisJSON = emptyAnalysis
		result.Degraded = true
		return
	}
	result.AnalysisJSON = raw
}

// notableChange reports whether visibility or recommendation flipped
// between consecutive results.
func notableChange(prev, cur *models.ScanResult) bool {
	return prev.BrandVisibility != cur.BrandVisibility ||
		prev.RecommendationType != cur.RecommendationType
}
