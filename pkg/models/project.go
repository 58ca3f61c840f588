package models

import (
	"time"

	"github.com/google/uuid"
)

// Project holds one brand tracked by a tenant. The brand ground truth
// (aliases, facts, competitors) feeds mention detection and the
// hallucination judge.
type Project struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	TenantID        uuid.UUID `db:"tenant_id"        json:"tenant_id"`
	Name            string    `db:"name"             json:"name"`
	BrandName       string    `db:"brand_name"       json:"brand_name"`
	BrandAliases    []string  `db:"brand_aliases"    json:"brand_aliases"`
	BrandFacts      []string  `db:"brand_facts"      json:"brand_facts"`
	CompetitorNames []string  `db:"competitor_names" json:"competitor_names"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}
