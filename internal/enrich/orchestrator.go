// Package enrich drives candidates through crawl, extraction, record store
// write-back and scoring with a bounded worker pool.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enrichment/internal/cost"
	"github.com/sells-group/lead-enrichment/internal/metrics"
	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/internal/scoring"
)

// Defaults.
const (
	DefaultConcurrency    = 5
	DefaultScoringTimeout = 5 * time.Second
	cleanupTimeout        = 30 * time.Second
)

// RunRecorder persists run history. runlog.Store satisfies it.
type RunRecorder interface {
	StartRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error
	RecordOutcomes(ctx context.Context, runID string, outcomes []model.CandidateOutcome) error
}

// Config controls orchestration.
type Config struct {
	// Concurrency bounds how many candidates are in flight. Default: 5.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// ScoringEnabled scores each candidate right after enrichment.
	ScoringEnabled bool `yaml:"scoring_enabled" mapstructure:"scoring_enabled"`
	// ScoringTimeout bounds one scoring call. Default: 5s.
	ScoringTimeout time.Duration `yaml:"scoring_timeout" mapstructure:"scoring_timeout"`
}

// Deps are the collaborators of an Orchestrator. Governor, Breaker, Runs
// and Score are optional.
type Deps struct {
	Store     Store
	Crawler   Crawler
	Extractor Extractor
	Governor  *cost.Governor
	Breaker   *resilience.CircuitBreaker
	Runs      RunRecorder
	Score     ScoreFunc
}

// Orchestrator runs enrichment and scoring passes.
type Orchestrator struct {
	store     Store
	crawler   Crawler
	extractor Extractor
	governor  *cost.Governor
	breaker   *resilience.CircuitBreaker
	runs      RunRecorder
	score     ScoreFunc
	cfg       Config
	now       func() time.Time
}

// New creates an Orchestrator.
func New(d Deps, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ScoringTimeout <= 0 {
		cfg.ScoringTimeout = DefaultScoringTimeout
	}
	if d.Breaker == nil {
		d.Breaker = NewBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	if d.Score == nil {
		d.Score = scoring.Score
	}
	return &Orchestrator{
		store:     d.Store,
		crawler:   d.Crawler,
		extractor: d.Extractor,
		governor:  d.Governor,
		breaker:   d.Breaker,
		runs:      d.Runs,
		score:     d.Score,
		cfg:       cfg,
		now:       time.Now,
	}
}

// NewBreaker creates the scoring circuit breaker with state changes logged
// and exported as a gauge.
func NewBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	next := cfg.OnStateChange
	cfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("enrich: scoring circuit state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.SetCircuitState(int(to))
		if next != nil {
			next(from, to)
		}
	}
	return resilience.NewCircuitBreaker(cfg)
}

// RunSummary reports the result of one run.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	Retried         int           `json:"retried"`
	Scored          int           `json:"scored"`
	ScoringFailures int           `json:"scoring_failures"`
	CostUSD         float64       `json:"cost_usd"`
	Elapsed         time.Duration `json:"elapsed"`
	Aborted         bool          `json:"aborted"`
	AbortReason     string        `json:"abort_reason,omitempty"`
}

// stage is where a candidate's attempt stopped.
type stage int

const (
	stageNone stage = iota
	stageCrawl
	stageExtract
	stageStore
	stageFatal
	stageDone
)

// candidateState tracks one candidate across passes. Each is owned by a
// single worker at a time.
type candidateState struct {
	c        model.Candidate
	attempts int
	marked   bool
	stage    stage
	err      error
	result   *model.ExtractionResult
	score    *scoring.Breakdown
	scoreErr error
}

func (s *candidateState) fail(st stage, err error) {
	s.stage = st
	s.err = err
}

func (s *candidateState) retryable() bool {
	return s.stage == stageCrawl || s.stage == stageExtract
}

// outcome classifies the final state. A claimed candidate that did not
// complete is a failure even if the run stopped it.
func (s *candidateState) outcome() model.Outcome {
	switch {
	case s.stage == stageDone:
		return model.OutcomeSucceeded
	case s.err != nil || s.marked:
		return model.OutcomeFailed
	}
	return model.OutcomeSkipped
}

// Run enriches up to limit due candidates. A non-nil error means the run
// was aborted by a run-fatal failure or could not start; the summary is
// still returned when available.
func (o *Orchestrator) Run(ctx context.Context, limit int) (*RunSummary, error) {
	start := o.now()
	run := o.startRun(ctx, model.RunKindEnrich)
	summary := &RunSummary{RunID: run.ID}

	candidates, err := o.store.QueryDueForEnrichment(ctx, limit)
	if err != nil {
		err = eris.Wrap(err, "enrich: query due candidates")
		if isRunFatal(err) {
			err = &abortError{cause: err}
			summary.Aborted = true
			summary.AbortReason = err.Error()
		}
		o.finishRun(ctx, run, summary, nil, err)
		return summary, err
	}
	summary.Total = len(candidates)
	zap.L().Info("enrich: starting run",
		zap.String("run_id", run.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Bool("scoring", o.cfg.ScoringEnabled),
	)

	states := make([]*candidateState, len(candidates))
	for i, c := range candidates {
		states[i] = &candidateState{c: c}
	}

	fatal := o.pass(ctx, states)

	if fatal == nil {
		var retry []*candidateState
		for _, s := range states {
			if s.retryable() {
				retry = append(retry, s)
			}
		}
		summary.Retried = len(retry)
		if len(retry) > 0 {
			zap.L().Info("enrich: retrying failed candidates", zap.Int("count", len(retry)))
			fatal = o.pass(ctx, retry)
		}
	}

	var runErr error
	if fatal != nil {
		runErr = &abortError{cause: fatal}
		summary.Aborted = true
		summary.AbortReason = fatal.Error()
		zap.L().Error("enrich: run aborted", zap.String("run_id", run.ID), zap.Error(fatal))
	}

	o.markFailures(ctx, states, fatal)

	for _, s := range states {
		out := s.outcome()
		switch out {
		case model.OutcomeSucceeded:
			summary.Succeeded++
			if s.score != nil {
				summary.Scored++
			}
			if s.scoreErr != nil {
				summary.ScoringFailures++
			}
		case model.OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
		metrics.ObserveCandidate(string(out))
	}
	summary.CostUSD = o.spent()
	summary.Elapsed = o.now().Sub(start)
	metrics.SetRunCost(summary.CostUSD)

	o.finishRun(ctx, run, summary, outcomes(run.ID, states, fatal, o.now().UTC()), runErr)

	zap.L().Info("enrich: run complete",
		zap.String("run_id", run.ID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("retried", summary.Retried),
		zap.Int("scored", summary.Scored),
		zap.Int("scoring_failures", summary.ScoringFailures),
		zap.Float64("cost_usd", summary.CostUSD),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, runErr
}

// pass processes states with at most Concurrency in flight. It returns the
// first run-fatal error; once one occurs no further candidates start.
func (o *Orchestrator) pass(ctx context.Context, states []*candidateState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, s := range states {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			return o.process(gctx, s)
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = eris.Wrap(context.Cause(ctx), "enrich: run cancelled")
	}
	return err
}

// process runs one attempt for a candidate. Only run-fatal errors are
// returned; everything else is recorded on s.
func (o *Orchestrator) process(ctx context.Context, s *candidateState) error {
	s.attempts++
	s.stage, s.err = stageNone, nil
	c := s.c
	log := zap.L().With(
		zap.String("candidate", c.ID),
		zap.String("name", c.Name),
		zap.Int("attempt", s.attempts),
	)

	if !s.marked {
		if err := o.store.MarkInProgress(ctx, c.ID); err != nil {
			if isRunFatal(err) {
				s.fail(stageFatal, err)
				return err
			}
			log.Error("enrich: mark in progress failed", zap.Error(err))
			s.fail(stageStore, err)
			return nil
		}
		s.marked = true
	}

	pages, err := o.crawler.Crawl(ctx, c.Website)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("enrich: crawl failed", zap.Error(err))
		s.fail(stageCrawl, err)
		return nil
	}

	result, err := o.extractor.Extract(ctx, pages, c.Name)
	metrics.SetRunCost(o.spent())
	if err != nil {
		if isRunFatal(err) {
			s.fail(stageFatal, err)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("enrich: extraction failed", zap.Error(err))
		s.fail(stageExtract, err)
		return nil
	}

	if err := o.store.UpdateEnrichment(ctx, c.ID, result); err != nil {
		if isRunFatal(err) {
			s.fail(stageFatal, err)
			return err
		}
		log.Error("enrich: write enrichment failed", zap.Error(err))
		s.fail(stageStore, err)
		return nil
	}
	s.stage = stageDone
	s.result = result
	log.Info("enrich: candidate enriched",
		zap.Int("pages", len(pages)),
		zap.Float64("cost_usd", result.CostUSD),
	)

	if o.cfg.ScoringEnabled {
		c.Enrichment = result
		c.EnrichmentStatus = model.EnrichmentCompleted
		// The enrichment is written, so an abort elsewhere in the pass must
		// not turn it into a scoring failure. ScoringTimeout still bounds it.
		b, err := o.scoreAndWrite(context.WithoutCancel(ctx), c)
		if err != nil {
			log.Warn("enrich: scoring failed", zap.Error(err))
			s.scoreErr = err
		} else {
			s.score = b
		}
	}
	return nil
}

// markFailures writes the terminal Failed status for every candidate that
// was claimed but did not complete. It runs detached from ctx so an abort
// does not leave records In Progress.
func (o *Orchestrator) markFailures(ctx context.Context, states []*candidateState, fatal error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, s := range states {
		if s.outcome() != model.OutcomeFailed {
			continue
		}
		reason := failureReason(s, fatal)
		if err := o.store.MarkFailed(cctx, s.c.ID, reason); err != nil {
			zap.L().Error("enrich: mark failed",
				zap.String("candidate", s.c.ID),
				zap.Error(err),
			)
		}
	}
}

func failureReason(s *candidateState, fatal error) string {
	switch {
	case s.err != nil:
		return s.err.Error()
	case fatal != nil:
		return "run aborted: " + fatal.Error()
	}
	return "run aborted"
}

// scoreAndWrite scores c through the circuit breaker and writes the result.
// Failures are recorded on the candidate's scoring status and never
// affect its enrichment status.
func (o *Orchestrator) scoreAndWrite(ctx context.Context, c model.Candidate) (*scoring.Breakdown, error) {
	b, err := o.scoreCandidate(ctx, c)
	if err == nil {
		err = o.store.UpdateScoring(ctx, c.ID, b)
	}
	if err != nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if merr := o.store.MarkScoringFailed(wctx, c.ID, err.Error()); merr != nil {
			zap.L().Error("enrich: mark scoring failed",
				zap.String("candidate", c.ID),
				zap.Error(merr),
			)
		}
		return nil, err
	}
	return &b, nil
}

func (o *Orchestrator) scoreCandidate(ctx context.Context, c model.Candidate) (scoring.Breakdown, error) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.ScoringTimeout)
	defer cancel()
	in := scoring.InputFor(c)
	return resilience.ExecuteVal(sctx, o.breaker, func(ctx context.Context) (scoring.Breakdown, error) {
		return o.computeScore(ctx, in)
	})
}

// computeScore runs the score function, converting a panic or a missed
// deadline into an error.
func (o *Orchestrator) computeScore(ctx context.Context, in scoring.Input) (scoring.Breakdown, error) {
	type result struct {
		b   scoring.Breakdown
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: eris.Errorf("enrich: scoring panic: %v", r)}
			}
		}()
		ch <- result{b: o.score(in)}
	}()

	select {
	case r := <-ch:
		return r.b, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return scoring.Breakdown{}, ErrScoringTimeout
		}
		return scoring.Breakdown{}, eris.Wrap(ctx.Err(), "enrich: scoring cancelled")
	}
}

func (o *Orchestrator) spent() float64 {
	if o.governor == nil {
		return 0
	}
	return o.governor.Spent()
}

// startRun opens a run record. Run history is best effort: a failure is
// logged and the run proceeds under a local ID.
func (o *Orchestrator) startRun(ctx context.Context, kind model.RunKind) *model.Run {
	if o.runs != nil {
		run, err := o.runs.StartRun(ctx, kind)
		if err == nil {
			return run
		}
		zap.L().Warn("enrich: start run record", zap.Error(err))
	}
	return &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: o.now().UTC(),
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, run *model.Run, s *RunSummary, recorded []model.CandidateOutcome, runErr error) {
	if o.runs == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if len(recorded) > 0 {
		if err := o.runs.RecordOutcomes(wctx, run.ID, recorded); err != nil {
			zap.L().Warn("enrich: record outcomes", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusAborted
		run.Error = runErr.Error()
	}
	run.Total = s.Total
	run.Succeeded = s.Succeeded
	run.Failed = s.Failed
	run.Retried = s.Retried
	run.Scored = s.Scored
	run.ScoreFails = s.ScoringFailures
	run.CostUSD = s.CostUSD
	if err := o.runs.FinishRun(wctx, run); err != nil {
		zap.L().Warn("enrich: finish run record", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func outcomes(runID string, states []*candidateState, fatal error, now time.Time) []model.CandidateOutcome {
	out := make([]model.CandidateOutcome, 0, len(states))
	for _, s := range states {
		o := model.CandidateOutcome{
			RunID:       runID,
			CandidateID: s.c.ID,
			Name:        s.c.Name,
			Outcome:     s.outcome(),
			Attempts:    s.attempts,
			RecordedAt:  now,
		}
		switch o.Outcome {
		case model.OutcomeSucceeded:
			if s.result != nil {
				o.CostUSD = s.result.CostUSD
			}
			if s.score != nil {
				o.Score = model.IntPtr(s.score.FinalScore)
				o.Tier = string(s.score.Tier)
			}
			if s.scoreErr != nil {
				o.Reason = "scoring: " + s.scoreErr.Error()
			}
		case model.OutcomeFailed:
			o.Reason = failureReason(s, fatal)
		}
		out = append(out, o)
	}
	return out
}

// Rescore recomputes the score of one candidate from its stored data.
func (o *Orchestrator) Rescore(ctx context.Context, id string) (*scoring.Breakdown, error) {
	c, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: get candidate %s", id)
	}
	b, err := o.scoreAndWrite(ctx, c)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: rescore %s", id)
	}
	return b, nil
}

// RescoreAll recomputes scores for every candidate in the record store.
// Scoring failures are counted, not returned.
func (o *Orchestrator) RescoreAll(ctx context.Context) (*RunSummary, error) {
	start := o.now()
	run := o.startRun(ctx, model.RunKindRescore)
	summary := &RunSummary{RunID: run.ID}

	candidates, err := o.store.QueryAll(ctx)
	if err != nil {
		err = eris.Wrap(err, "enrich: query candidates")
		o.finishRun(ctx, run, summary, nil, err)
		return summary, err
	}
	summary.Total = len(candidates)

	states := make([]*candidateState, len(candidates))
	var scored, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, c := range candidates {
		s := &candidateState{c: c, attempts: 1}
		states[i] = s
		g.Go(func() error {
			b, err := o.scoreAndWrite(gctx, c)
			if err != nil {
				failed.Add(1)
				s.marked = true
				s.err = err
				zap.L().Warn("enrich: rescore failed", zap.String("candidate", c.ID), zap.Error(err))
				return nil
			}
			scored.Add(1)
			s.stage = stageDone
			s.score = b
			return nil
		})
	}
	_ = g.Wait()

	summary.Scored = int(scored.Load())
	summary.ScoringFailures = int(failed.Load())
	summary.Succeeded = summary.Scored
	summary.Failed = summary.ScoringFailures
	summary.Elapsed = o.now().Sub(start)

	o.finishRun(ctx, run, summary, outcomes(run.ID, states, nil, o.now().UTC()), nil)
	zap.L().Info("enrich: rescore complete",
		zap.String("run_id", run.ID),
		zap.Int("total", summary.Total),
		zap.Int("scored", summary.Scored),
		zap.Int("scoring_failures", summary.ScoringFailures),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// String renders a one-line summary.
func (s *RunSummary) String() string {
	line := fmt.Sprintf("run %s: %d total, %d succeeded, %d failed, %d skipped, %d retried, %d scored, %d scoring failures, $%.4f in %s",
		s.RunID, s.Total, s.Succeeded, s.Failed, s.Skipped, s.Retried, s.Scored, s.ScoringFailures, s.CostUSD, s.Elapsed.Round(time.Millisecond))
	if s.Aborted {
		line += " (aborted: " + s.AbortReason + ")"
	}
	return line
}
