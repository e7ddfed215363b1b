// Package runlog persists the history of pipeline runs and their
// per-candidate outcomes. The record store stays the source of truth for
// candidate state; this is an audit trail.
package runlog

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// Store defines the run history persistence interface.
type Store interface {
	StartRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error
	RecordOutcomes(ctx context.Context, runID string, outcomes []model.CandidateOutcome) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	ListOutcomes(ctx context.Context, runID string) ([]model.CandidateOutcome, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 20

// Open connects to the configured store and applies migrations.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "lead-enrichment.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres", "postgresql":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	default:
		return nil, eris.Errorf("runlog: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
