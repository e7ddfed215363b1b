package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrichment/internal/config"
	"github.com/sells-group/lead-enrichment/internal/cost"
	"github.com/sells-group/lead-enrichment/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "runs.db")
	c.Notion.Token = "ntn_token"
	c.Notion.LeadDB = "lead-db"
	c.Notion.StalenessDays = 30
	c.Notion.RateLimit = 3
	c.Anthropic.Key = "sk-ant-test"
	c.Extract.Backend = "anthropic"
	c.Extract.Model = "claude-haiku-4-5-20251001"
	c.Crawl.MaxPages = 5
	c.Cost.CeilingUSD = 1
	c.Cost.Buffer = 0.1
	c.Scoring.TimeoutSecs = 5
	c.Batch.Concurrency = 5
	c.Log.Format = "json"
	return c
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitPipeline_Enrich(t *testing.T) {
	withConfig(t, testConfig(t))

	env, err := initPipeline(context.Background(), "enrich", true)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Records)
	assert.NotNil(t, env.Runs)
	assert.NotNil(t, env.Governor)
	assert.NotNil(t, env.Orchestrator)
	assert.InDelta(t, 1.0, env.Governor.Snapshot().Ceiling, 0.0001)
}

func TestInitPipeline_GeminiBackend(t *testing.T) {
	c := testConfig(t)
	c.Extract.Backend = "gemini"
	c.Extract.Model = "gemini-2.5-flash"
	c.Gemini.Key = "g-test"
	withConfig(t, c)

	env, err := initPipeline(context.Background(), "enrich", false)
	require.NoError(t, err)
	env.Close()
}

func TestInitPipeline_UnpricedModel(t *testing.T) {
	c := testConfig(t)
	c.Extract.Backend = "gemini"
	c.Extract.Model = "gemini-2.0-flash"
	c.Gemini.Key = "g-test"
	withConfig(t, c)

	env, err := initPipeline(context.Background(), "enrich", false)
	require.Error(t, err)
	assert.Nil(t, env)
	assert.ErrorIs(t, err, cost.ErrUnknownModel)

	c.Cost.Rates = map[string]config.ModelPricing{"gemini-2.0-flash": {Input: 0.10, Output: 0.40}}
	env, err = initPipeline(context.Background(), "enrich", false)
	require.NoError(t, err)
	env.Close()
}

func TestInitPipeline_RescoreSkipsBackend(t *testing.T) {
	c := testConfig(t)
	c.Anthropic.Key = ""
	withConfig(t, c)

	env, err := initPipeline(context.Background(), "rescore", true)
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Governor)
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Notion.Token = ""
	withConfig(t, c)

	_, err := initPipeline(context.Background(), "enrich", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
}

func TestInitRunLog_SQLite(t *testing.T) {
	withConfig(t, testConfig(t))

	st, err := initRunLog(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.StartRun(context.Background(), model.RunKindEnrich)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestConfigConversions(t *testing.T) {
	c := testConfig(t)
	c.Crawl.TimeoutSecs = 30
	c.Crawl.Patterns = []string{"*team*"}
	c.Cost.Rates = map[string]config.ModelPricing{
		"custom-model": {Input: 2, Output: 8},
	}
	c.Extract.MaxAttempts = 4
	c.Notion.MaxAttempts = 2
	c.Scoring.FailureThreshold = 3
	c.Scoring.ResetTimeoutSecs = 90

	cc := crawlConfig(c.Crawl)
	assert.Equal(t, 30*time.Second, cc.PageTimeout)
	assert.Equal(t, []string{"*team*"}, cc.Patterns)

	rates := costRates(c.Cost)
	assert.InDelta(t, 8.0, rates.Models["custom-model"].Output, 0.0001)

	assert.Equal(t, 4, extractConfig(c.Extract).Retry.MaxAttempts)

	rs := recordStoreConfig(c)
	assert.Equal(t, "lead-db", rs.DatabaseID)
	assert.Equal(t, 2, rs.Retry.MaxAttempts)

	bc := breakerConfig(c.Scoring)
	assert.Equal(t, 3, bc.FailureThreshold)
	assert.Equal(t, 90*time.Second, bc.ResetTimeout)

	gc := governorConfig(c)
	assert.Equal(t, "claude-haiku-4-5-20251001", gc.Model)
	assert.InDelta(t, 1.0, gc.Ceiling, 0.0001)
}
