// Package extract turns crawled page text into a typed ExtractionResult
// through a structured-output language model, gated by the cost governor.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/cost"
	"github.com/sells-group/lead-enrichment/internal/metrics"
	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/resilience"
)

// ErrExtractionFailure matches any *ExtractionError.
var ErrExtractionFailure = eris.New("extract: extraction failure")

// ExtractionError is a non-retryable extraction failure, or a transient one
// that exhausted its retries.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
	}
	return "extract: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrExtractionFailure.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailure
}

// Config controls prompt size and model parameters.
type Config struct {
	Model         string
	MaxInputChars int
	// OutputTokens is the output allowance used for the pre-call estimate.
	OutputTokens int64
	// MaxTokens caps the response length.
	MaxTokens   int64
	Temperature float64
	Retry       resilience.RetryConfig
}

// DefaultConfig returns the standard extraction settings.
func DefaultConfig() Config {
	return Config{
		Model:         "claude-haiku-4-5-20251001",
		MaxInputChars: 8000,
		OutputTokens:  300,
		MaxTokens:     1024,
		Temperature:   0.1,
		Retry:         resilience.DefaultRetryConfig(),
	}
}

// Extractor calls a Backend under the cost governor with retries.
type Extractor struct {
	backend  Backend
	governor *cost.Governor
	cfg      Config
	now      func() time.Time
}

// New creates an Extractor. Zero config fields take DefaultConfig values.
func New(backend Backend, governor *cost.Governor, cfg Config) *Extractor {
	d := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = d.MaxInputChars
	}
	if cfg.OutputTokens <= 0 {
		cfg.OutputTokens = d.OutputTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = d.Temperature
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger(backend.Name(), "extract")
	}
	return &Extractor{backend: backend, governor: governor, cfg: cfg, now: time.Now}
}

// Extract produces facts for the practice from its crawled pages. A budget
// rejection is returned as is, matching cost.ErrCostLimitExceeded; every
// other failure is an *ExtractionError.
func (x *Extractor) Extract(ctx context.Context, pages []model.WebPageResult, practiceName string) (*model.ExtractionResult, error) {
	log := zap.L().With(zap.String("practice", practiceName), zap.String("backend", x.backend.Name()))

	text := BuildPageText(pages, x.cfg.MaxInputChars)
	if text == "" {
		return nil, &ExtractionError{Reason: "no page text to extract from"}
	}

	req := Request{
		Model:       x.cfg.Model,
		System:      systemPrompt,
		Prompt:      userPrompt(practiceName, text),
		MaxTokens:   x.cfg.MaxTokens,
		Temperature: x.cfg.Temperature,
	}
	estimate := x.governor.EstimateCost(EstimateTokens(req.System+req.Prompt), x.cfg.OutputTokens)

	var spent float64
	resp, err := resilience.DoVal(ctx, x.cfg.Retry, func(ctx context.Context) (*Response, error) {
		res, err := x.governor.CheckBudget(estimate)
		if err != nil {
			return nil, err
		}
		resp, err := x.backend.Complete(ctx, req)
		if resp != nil && resp.Usage().Total() > 0 {
			spent += x.governor.TrackUsage(res, resp.Usage())
		} else {
			x.governor.Release(res)
		}
		if err != nil {
			metrics.ObserveExtraction(x.backend.Name(), resilience.ClassifyError(err))
			return nil, err
		}
		metrics.ObserveExtraction(x.backend.Name(), "ok")
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, cost.ErrCostLimitExceeded) {
			return nil, err
		}
		log.Warn("extract: call failed", zap.Error(err))
		return nil, &ExtractionError{Reason: "service call failed", Err: err}
	}

	var result model.ExtractionResult
	if err := json.Unmarshal(resp.JSON, &result); err != nil {
		return nil, &ExtractionError{Reason: "malformed service output", Err: err}
	}
	result.Normalize()
	result.ExtractedAt = x.now().UTC()
	if result.VetCount != nil {
		at := result.ExtractedAt
		result.VetCountAt = &at
	}
	result.Model = resp.Model
	if result.Model == "" {
		result.Model = x.cfg.Model
	}
	result.CostUSD = spent

	log.Debug("extract: complete",
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Int64("cache_write_tokens", resp.CacheWriteTokens),
		zap.Int64("cache_read_tokens", resp.CacheReadTokens),
		zap.Float64("cost_usd", spent),
	)
	return &result, nil
}
