package models

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation classifications for how a brand appears in a response.
const (
	RecommendationDirect   = "direct_recommendation"
	RecommendationNeutral  = "neutral_comparison"
	RecommendationNegative = "negative_mention"
	RecommendationAbsent   = "absent"
)

// ScanResult is the structured analysis derived from one provider response.
// Append-only: the latest result per (keyword, engine) defines current
// visibility. Exactly one result exists per scan job.
type ScanResult struct {
	ID                 uuid.UUID `db:"id"                  json:"id"`
	ScanJobID          uuid.UUID `db:"scan_job_id"         json:"scan_job_id"`
	KeywordID          uuid.UUID `db:"keyword_id"          json:"keyword_id"`
	TenantID           uuid.UUID `db:"tenant_id"           json:"tenant_id"`
	Engine             string    `db:"engine"              json:"engine"`
	BrandVisibility    bool      `db:"brand_visibility"    json:"brand_visibility"`
	SentimentScore     float64   `db:"sentiment_score"     json:"sentiment_score"`
	RecommendationType string    `db:"recommendation_type" json:"recommendation_type"`
	HallucinationFlag  bool      `db:"hallucination_flag"  json:"hallucination_flag"`
	ComplianceWarning  *string   `db:"compliance_warning"  json:"compliance_warning,omitempty"`
	RawResponse        string    `db:"raw_response"        json:"raw_response"`
	AnalysisJSON       []byte    `db:"analysis_json"       json:"analysis_json"`
	Degraded           bool      `db:"degraded"            json:"degraded"`
	ModelName          string    `db:"model_name"          json:"model_name"`
	TotalTokens        int       `db:"total_tokens"        json:"total_tokens"`
	LatencyMs          int64     `db:"latency_ms"          json:"latency_ms"`
	CreatedAt          time.Time `db:"created_at"          json:"created_at"`
}
