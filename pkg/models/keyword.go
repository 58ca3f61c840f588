package models

import (
	"time"

	"github.com/google/uuid"
)

// Intent categories for a tracked keyword.
const (
	IntentDiscovery     = "discovery"
	IntentComparison    = "comparison"
	IntentAuthority     = "authority"
	IntentTransactional = "transactional"
	IntentSafety        = "safety"
	IntentCustom        = "custom"
)

// Scan frequencies. Manual keywords are never auto-selected by the scheduler.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyManual = "manual"
)

// Last-scan outcome surfaced on the keyword so persistently failing scans
// are visible to the tenant instead of a silently frozen timestamp.
const (
	ScanStatusOK      = "ok"
	ScanStatusFailed  = "failed"
	ScanStatusPending = "pending"
)

// Keyword is a tracked natural-language query monitored across answer engines.
// Keywords are soft-deactivated rather than deleted so scan history stays intact.
type Keyword struct {
	ID             uuid.UUID  `db:"id"               json:"id"`
	ProjectID      uuid.UUID  `db:"project_id"       json:"project_id"`
	TenantID       uuid.UUID  `db:"tenant_id"        json:"tenant_id"`
	QueryText      string     `db:"query_text"       json:"query_text"`
	IntentCategory string     `db:"intent_category"  json:"intent_category"`
	ScanFrequency  string     `db:"scan_frequency"   json:"scan_frequency"`
	TargetEngines  []string   `db:"target_engines"   json:"target_engines"`
	IsActive       bool       `db:"is_active"        json:"is_active"`
	JitterMinutes  int        `db:"jitter_minutes"   json:"jitter_minutes"`
	LastScannedAt  *time.Time `db:"last_scanned_at"  json:"last_scanned_at,omitempty"`
	LastScanStatus string     `db:"last_scan_status" json:"last_scan_status"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}

// Interval returns the auto-scan interval for the keyword's frequency.
// Manual keywords return 0 and are skipped by the scheduler.
func (k *Keyword) Interval() time.Duration {
	switch k.ScanFrequency {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ValidIntentCategory reports whether s is a known intent category.
func ValidIntentCategory(s string) bool {
	switch s {
	case IntentDiscovery, IntentComparison, IntentAuthority, IntentTransactional, IntentSafety, IntentCustom:
		return true
	}
	return false
}

// ValidScanFrequency reports whether s is a known scan frequency.
func ValidScanFrequency(s string) bool {
	switch s {
	case FrequencyDaily, FrequencyWeekly, FrequencyManual:
		return true
	}
	return false
}
