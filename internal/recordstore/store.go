// Package recordstore reads and partially updates candidate records in the
// Notion lead database. Every write is checked against the enrichment or
// scoring field subsets.
package recordstore

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/internal/scoring"
	"github.com/sells-group/lead-enrichment/pkg/notion"
)

// DefaultStalenessDays is the age after which a completed enrichment is due
// again.
const DefaultStalenessDays = 30

// Config configures a Store.
type Config struct {
	DatabaseID    string
	StalenessDays int
	Retry         resilience.RetryConfig
}

// Store is the Notion-backed record store.
type Store struct {
	client notion.Client
	cfg    Config
	now    func() time.Time
}

// New creates a Store over client.
func New(client notion.Client, cfg Config) *Store {
	if cfg.StalenessDays <= 0 {
		cfg.StalenessDays = DefaultStalenessDays
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	return &Store{client: client, cfg: cfg, now: time.Now}
}

// DueFilter selects candidates never enriched, not completed, or completed
// before staleBefore.
func DueFilter(staleBefore time.Time) *notionapi.DatabaseQueryRequest {
	before := notionapi.Date(staleBefore)
	return &notionapi.DatabaseQueryRequest{
		Filter: notionapi.OrCompoundFilter{
			notionapi.PropertyFilter{
				Property: PropEnrichmentStatus,
				Select:   &notionapi.SelectFilterCondition{DoesNotEqual: string(model.EnrichmentCompleted)},
			},
			notionapi.PropertyFilter{
				Property: PropLastEnrichmentDate,
				Date:     &notionapi.DateFilterCondition{Before: &before},
			},
		},
		Sorts: []notionapi.SortObject{
			{Property: PropLastEnrichmentDate, Direction: notionapi.SortOrderASC},
		},
	}
}

func hasWebsite(p notionapi.Page) bool {
	return notion.URL(p.Properties, PropWebsite) != ""
}

// QueryDueForEnrichment returns up to limit candidates due for enrichment.
// Records without a website are skipped. limit <= 0 means no limit.
func (s *Store) QueryDueForEnrichment(ctx context.Context, limit int) ([]model.Candidate, error) {
	staleBefore := s.now().AddDate(0, 0, -s.cfg.StalenessDays)
	pages, err := resilience.DoVal(ctx, s.cfg.Retry, func(ctx context.Context) ([]notionapi.Page, error) {
		pages, err := notion.Query(ctx, s.client, s.cfg.DatabaseID, DueFilter(staleBefore), limit, hasWebsite)
		return pages, classify("query due", err)
	})
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: query due for enrichment")
	}
	return toCandidates(pages), nil
}

// QueryAll returns every candidate in the database.
func (s *Store) QueryAll(ctx context.Context) ([]model.Candidate, error) {
	pages, err := resilience.DoVal(ctx, s.cfg.Retry, func(ctx context.Context) ([]notionapi.Page, error) {
		pages, err := notion.QueryAll(ctx, s.client, s.cfg.DatabaseID, nil)
		return pages, classify("query all", err)
	})
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: query all")
	}
	return toCandidates(pages), nil
}

// Get reads a single candidate.
func (s *Store) Get(ctx context.Context, id string) (model.Candidate, error) {
	page, err := resilience.DoVal(ctx, s.cfg.Retry, func(ctx context.Context) (*notionapi.Page, error) {
		page, err := s.client.GetPage(ctx, id)
		return page, classify("get "+id, err)
	})
	if err != nil {
		return model.Candidate{}, eris.Wrapf(err, "recordstore: get %s", id)
	}
	return candidateFromPage(*page), nil
}

// MarkInProgress sets the enrichment status to In Progress.
func (s *Store) MarkInProgress(ctx context.Context, id string) error {
	return s.update(ctx, id, "mark in progress", InProgressPayload(), EnrichmentFields)
}

// UpdateEnrichment writes a successful extraction and marks the candidate
// Completed.
func (s *Store) UpdateEnrichment(ctx context.Context, id string, r *model.ExtractionResult) error {
	if r == nil {
		return eris.New("recordstore: nil extraction result")
	}
	return s.update(ctx, id, "update enrichment", EnrichmentPayload(r, s.now()), EnrichmentFields)
}

// MarkFailed records an enrichment failure reason.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, "mark failed", FailedPayload(reason), EnrichmentFields)
}

// UpdateScoring writes a score breakdown.
func (s *Store) UpdateScoring(ctx context.Context, id string, b scoring.Breakdown) error {
	props, err := ScoringPayload(b, s.now())
	if err != nil {
		return err
	}
	return s.update(ctx, id, "update scoring", props, ScoringFields)
}

// MarkScoringFailed records a scoring failure reason.
func (s *Store) MarkScoringFailed(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, "mark scoring failed", ScoringFailedPayload(reason), ScoringFields)
}

func (s *Store) update(ctx context.Context, id, op string, props notionapi.Properties, allowed map[string]bool) error {
	if err := checkPayload(props, allowed); err != nil {
		return err
	}
	req := &notionapi.PageUpdateRequest{Properties: props}
	err := resilience.Do(ctx, s.retryConfig(id, op), func(ctx context.Context) error {
		_, err := s.client.UpdatePage(ctx, id, req)
		return classify(op, err)
	})
	if err != nil {
		return eris.Wrapf(err, "recordstore: %s %s", op, id)
	}
	return nil
}

func (s *Store) retryConfig(id, op string) resilience.RetryConfig {
	cfg := s.cfg.Retry
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("recordstore: retrying write",
			zap.String("candidate", id),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return cfg
}

func toCandidates(pages []notionapi.Page) []model.Candidate {
	out := make([]model.Candidate, 0, len(pages))
	for _, p := range pages {
		out = append(out, candidateFromPage(p))
	}
	return out
}
