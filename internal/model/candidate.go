package model

import "time"

// EnrichmentStatus tracks a candidate through the enrichment lifecycle.
type EnrichmentStatus string

const (
	EnrichmentPending    EnrichmentStatus = "Pending"
	EnrichmentInProgress EnrichmentStatus = "In Progress"
	EnrichmentCompleted  EnrichmentStatus = "Completed"
	EnrichmentFailed     EnrichmentStatus = "Failed"
)

// ScoringStatus is updated only by the scoring path, independent of
// EnrichmentStatus.
type ScoringStatus string

const (
	ScoringNotScored ScoringStatus = "Not Scored"
	ScoringScored    ScoringStatus = "Scored"
	ScoringFailed    ScoringStatus = "Failed"
)

// Baseline holds the attributes produced by upstream ingestion.
type Baseline struct {
	ReviewCount       *int     `json:"review_count,omitempty"`
	Rating            *float64 `json:"rating,omitempty"`
	HasWebsite        bool     `json:"has_website"`
	MultipleLocations bool     `json:"multiple_locations"`
}

// Candidate is one prospect practice tracked through enrichment and scoring.
// ID is the record store page ID and never changes.
type Candidate struct {
	ID               string            `json:"id"`
	PlaceID          string            `json:"place_id,omitempty"`
	Name             string            `json:"name"`
	Website          string            `json:"website"`
	Baseline         Baseline          `json:"baseline"`
	Enrichment       *ExtractionResult `json:"enrichment,omitempty"`
	EnrichmentStatus EnrichmentStatus  `json:"enrichment_status"`
	LastEnrichedAt   *time.Time        `json:"last_enriched_at,omitempty"`
	ScoringStatus    ScoringStatus     `json:"scoring_status"`
}

// IsEnriched reports whether the candidate carries enrichment data.
func (c Candidate) IsEnriched() bool {
	return c.Enrichment != nil && c.EnrichmentStatus == EnrichmentCompleted
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
