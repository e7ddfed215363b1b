package enrich

import (
	"context"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/scoring"
)

// Store is the record store surface used by the orchestrator.
type Store interface {
	QueryDueForEnrichment(ctx context.Context, limit int) ([]model.Candidate, error)
	QueryAll(ctx context.Context) ([]model.Candidate, error)
	Get(ctx context.Context, id string) (model.Candidate, error)
	MarkInProgress(ctx context.Context, id string) error
	UpdateEnrichment(ctx context.Context, id string, r *model.ExtractionResult) error
	MarkFailed(ctx context.Context, id, reason string) error
	UpdateScoring(ctx context.Context, id string, b scoring.Breakdown) error
	MarkScoringFailed(ctx context.Context, id, reason string) error
}

// Crawler fetches the pages of a practice website.
type Crawler interface {
	Crawl(ctx context.Context, url string) ([]model.WebPageResult, error)
}

// Extractor turns crawled pages into structured facts.
type Extractor interface {
	Extract(ctx context.Context, pages []model.WebPageResult, practiceName string) (*model.ExtractionResult, error)
}

// ScoreFunc computes a score breakdown. scoring.Score in production.
type ScoreFunc func(scoring.Input) scoring.Breakdown
