package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// RunKind distinguishes enrichment runs from rescore-only runs.
type RunKind string

const (
	RunKindEnrich  RunKind = "enrich"
	RunKindRescore RunKind = "rescore"
)

// Outcome is the final per-candidate result recorded for a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	Kind       RunKind    `json:"kind"`
	Status     RunStatus  `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Retried    int        `json:"retried"`
	Scored     int        `json:"scored"`
	ScoreFails int        `json:"scoring_failures"`
	CostUSD    float64    `json:"cost_usd"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CandidateOutcome records what happened to one candidate in a run.
type CandidateOutcome struct {
	RunID       string    `json:"run_id"`
	CandidateID string    `json:"candidate_id"`
	Name        string    `json:"name"`
	Outcome     Outcome   `json:"outcome"`
	Attempts    int       `json:"attempts"`
	Reason      string    `json:"reason,omitempty"`
	Score       *int      `json:"score,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	CostUSD     float64   `json:"cost_usd"`
	RecordedAt  time.Time `json:"recorded_at"`
}
