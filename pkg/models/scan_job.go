package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ScanJob is one unit of work: run one keyword's query against one engine.
// Immutable once enqueued; the dispatcher only advances its status and
// attempt count. PrevScannedAt carries the keyword's last_scanned_at value
// from before the optimistic advance so an exhausted job can compensate.
type ScanJob struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	KeywordID     uuid.UUID  `db:"keyword_id"     json:"keyword_id"`
	TenantID      uuid.UUID  `db:"tenant_id"      json:"tenant_id"`
	ProjectID     uuid.UUID  `db:"project_id"     json:"project_id"`
	Engine        string     `db:"engine"         json:"engine"`
	QueryText     string     `db:"query_text"     json:"query_text"`
	Status        string     `db:"status"         json:"status"`
	AttemptCount  int        `db:"attempt_count"  json:"attempt_count"`
	ErrorMessage  *string    `db:"error_message"  json:"error_message,omitempty"`
	PrevScannedAt *time.Time `db:"-"              json:"prev_scanned_at,omitempty"`
	EnqueuedAt    time.Time  `db:"enqueued_at"    json:"enqueued_at"`
	StartedAt     *time.Time `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
}
