package main

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/config"
	"github.com/sells-group/lead-enrichment/internal/cost"
	"github.com/sells-group/lead-enrichment/internal/crawl"
	"github.com/sells-group/lead-enrichment/internal/enrich"
	"github.com/sells-group/lead-enrichment/internal/extract"
	"github.com/sells-group/lead-enrichment/internal/recordstore"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/internal/runlog"
	anthropicpkg "github.com/sells-group/lead-enrichment/pkg/anthropic"
	"github.com/sells-group/lead-enrichment/pkg/gemini"
	"github.com/sells-group/lead-enrichment/pkg/notion"
)

// pipelineEnv holds the initialized clients and the orchestrator needed by
// the enrich and rescore commands.
type pipelineEnv struct {
	Records      *recordstore.Store
	Runs         runlog.Store
	Governor     *cost.Governor
	Orchestrator *enrich.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Runs != nil {
		_ = pe.Runs.Close()
	}
}

// initPipeline validates the config for mode and wires every component.
// The extraction backend is only built for "enrich". Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode string, scoringEnabled bool) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	runs, err := initRunLog(ctx)
	if err != nil {
		return nil, err
	}

	notionClient := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
	records := recordstore.New(notionClient, recordStoreConfig(cfg))

	env := &pipelineEnv{Records: records, Runs: runs}
	deps := enrich.Deps{
		Store:   records,
		Runs:    runs,
		Breaker: enrich.NewBreaker(breakerConfig(cfg.Scoring)),
	}

	if mode == "enrich" {
		governor, err := cost.NewGovernor(cost.NewCalculator(costRates(cfg.Cost)), governorConfig(cfg))
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "init cost governor")
		}
		env.Governor = governor
		backend, err := initBackend(ctx)
		if err != nil {
			env.Close()
			return nil, err
		}
		deps.Governor = env.Governor
		deps.Crawler = crawl.New(crawlConfig(cfg.Crawl))
		deps.Extractor = extract.New(backend, env.Governor, extractConfig(cfg.Extract))
		zap.L().Info("pipeline initialized",
			zap.String("backend", backend.Name()),
			zap.String("model", cfg.Extract.Model),
			zap.Float64("ceiling_usd", cfg.Cost.CeilingUSD),
		)
	}

	env.Orchestrator = enrich.New(deps, enrich.Config{
		Concurrency:    cfg.Batch.Concurrency,
		ScoringEnabled: scoringEnabled,
		ScoringTimeout: seconds(cfg.Scoring.TimeoutSecs),
	})
	return env, nil
}

// initRunLog opens the run history store.
func initRunLog(ctx context.Context) (runlog.Store, error) {
	st, err := runlog.Open(ctx, runlog.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool: runlog.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open run log")
	}
	return st, nil
}

func initBackend(ctx context.Context) (extract.Backend, error) {
	switch strings.ToLower(cfg.Extract.Backend) {
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.Gemini.Key,
			BaseURL: cfg.Gemini.BaseURL,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		return extract.NewGeminiBackend(client), nil
	default:
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		return extract.NewAnthropicBackend(anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)), nil
	}
}

func recordStoreConfig(c *config.Config) recordstore.Config {
	return recordstore.Config{
		DatabaseID:    c.Notion.LeadDB,
		StalenessDays: c.Notion.StalenessDays,
		Retry:         resilience.FromRetryConfig(c.Notion.MaxAttempts, 0, 0),
	}
}

func governorConfig(c *config.Config) cost.GovernorConfig {
	return cost.GovernorConfig{
		Model:        c.Extract.Model,
		Ceiling:      c.Cost.CeilingUSD,
		Buffer:       c.Cost.Buffer,
		ObserveEvery: c.Cost.ObserveEvery,
	}
}

func costRates(c config.CostConfig) cost.Rates {
	rates := cost.Rates{Models: make(map[string]cost.ModelRate, len(c.Rates))}
	for name, p := range c.Rates {
		rates.Models[name] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

func crawlConfig(c config.CrawlConfig) crawl.Config {
	return crawl.Config{
		MaxDepth:     c.MaxDepth,
		MaxPages:     c.MaxPages,
		PageTimeout:  seconds(c.TimeoutSecs),
		MaxPageChars: c.MaxPageChars,
		UserAgent:    c.UserAgent,
		Patterns:     c.Patterns,
	}
}

func extractConfig(c config.ExtractConfig) extract.Config {
	return extract.Config{
		Model:         c.Model,
		MaxInputChars: c.MaxInputChars,
		OutputTokens:  c.OutputTokens,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
		Retry:         resilience.FromRetryConfig(c.MaxAttempts, 0, 0),
	}
}

func breakerConfig(c config.ScoringConfig) resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
