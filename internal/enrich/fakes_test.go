package enrich

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/scoring"
)

// fakeStore is an in-memory record store safe for concurrent use.
type fakeStore struct {
	mu         sync.Mutex
	candidates []model.Candidate
	queryErr   error
	markErr    map[string]error
	updateErr  map[string]error

	inProgress []string
	enriched   map[string]*model.ExtractionResult
	failed     map[string]string
	scored     map[string]scoring.Breakdown
	scoreFail  map[string]string
}

func newFakeStore(cs ...model.Candidate) *fakeStore {
	return &fakeStore{
		candidates: cs,
		markErr:    map[string]error{},
		updateErr:  map[string]error{},
		enriched:   map[string]*model.ExtractionResult{},
		failed:     map[string]string{},
		scored:     map[string]scoring.Breakdown{},
		scoreFail:  map[string]string{},
	}
}

func (f *fakeStore) QueryDueForEnrichment(_ context.Context, limit int) ([]model.Candidate, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if limit > 0 && limit < len(f.candidates) {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeStore) QueryAll(_ context.Context) ([]model.Candidate, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.candidates, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (model.Candidate, error) {
	for _, c := range f.candidates {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Candidate{}, context.DeadlineExceeded
}

func (f *fakeStore) MarkInProgress(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[id]; err != nil {
		return err
	}
	f.inProgress = append(f.inProgress, id)
	return nil
}

func (f *fakeStore) UpdateEnrichment(_ context.Context, id string, r *model.ExtractionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	f.enriched[id] = r
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeStore) UpdateScoring(_ context.Context, id string, b scoring.Breakdown) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scored[id] = b
	return nil
}

func (f *fakeStore) MarkScoringFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoreFail[id] = reason
	return nil
}

func (f *fakeStore) snapshot() (failed, scoreFail map[string]string, enriched int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	failed = make(map[string]string, len(f.failed))
	for k, v := range f.failed {
		failed[k] = v
	}
	scoreFail = make(map[string]string, len(f.scoreFail))
	for k, v := range f.scoreFail {
		scoreFail[k] = v
	}
	return failed, scoreFail, len(f.enriched)
}

// crawlFunc adapts a function to Crawler.
type crawlFunc func(ctx context.Context, url string) ([]model.WebPageResult, error)

func (f crawlFunc) Crawl(ctx context.Context, url string) ([]model.WebPageResult, error) {
	return f(ctx, url)
}

// extractFunc adapts a function to Extractor.
type extractFunc func(ctx context.Context, pages []model.WebPageResult, name string) (*model.ExtractionResult, error)

func (f extractFunc) Extract(ctx context.Context, pages []model.WebPageResult, name string) (*model.ExtractionResult, error) {
	return f(ctx, pages, name)
}

func okCrawler() Crawler {
	return crawlFunc(func(_ context.Context, url string) ([]model.WebPageResult, error) {
		return []model.WebPageResult{{URL: url, Text: "We have 4 veterinarians.", Success: true}}, nil
	})
}

func okExtractor() Extractor {
	return extractFunc(func(_ context.Context, _ []model.WebPageResult, _ string) (*model.ExtractionResult, error) {
		return &model.ExtractionResult{
			VetCount:           model.IntPtr(4),
			VetCountConfidence: model.ConfidenceHigh,
			CostUSD:            0.002,
		}, nil
	})
}

// countingCrawler tracks the maximum number of concurrent Crawl calls.
type countingCrawler struct {
	inflight atomic.Int64
	peak     atomic.Int64
	release  chan struct{}
}

func (c *countingCrawler) Crawl(ctx context.Context, url string) ([]model.WebPageResult, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []model.WebPageResult{{URL: url, Text: "x", Success: true}}, nil
}

// fakeRuns records run history in memory.
type fakeRuns struct {
	mu       sync.Mutex
	started  []model.RunKind
	finished []model.Run
	outcomes []model.CandidateOutcome
}

func (f *fakeRuns) StartRun(_ context.Context, kind model.RunKind) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, kind)
	return &model.Run{ID: "run-1", Kind: kind, Status: model.RunStatusRunning}, nil
}

func (f *fakeRuns) FinishRun(_ context.Context, run *model.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *run)
	return nil
}

func (f *fakeRuns) RecordOutcomes(_ context.Context, _ string, outcomes []model.CandidateOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcomes...)
	return nil
}

func candidates(n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		out[i] = model.Candidate{
			ID:               "page-" + id,
			Name:             "Practice " + id,
			Website:          "https://" + id + ".example.com",
			Baseline:         model.Baseline{HasWebsite: true, ReviewCount: model.IntPtr(60)},
			EnrichmentStatus: model.EnrichmentPending,
		}
	}
	return out
}
