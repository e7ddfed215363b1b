package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/db"
	"github.com/sells-group/lead-enrichment/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'running',
	total            INTEGER NOT NULL DEFAULT 0,
	succeeded        INTEGER NOT NULL DEFAULT 0,
	failed           INTEGER NOT NULL DEFAULT 0,
	retried          INTEGER NOT NULL DEFAULT 0,
	scored           INTEGER NOT NULL DEFAULT 0,
	scoring_failures INTEGER NOT NULL DEFAULT 0,
	cost_usd         DOUBLE PRECISION NOT NULL DEFAULT 0,
	error            TEXT,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_candidates (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	candidate_id TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	reason       TEXT,
	score        INTEGER,
	tier         TEXT,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, candidate_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_candidates_candidate ON run_candidates(candidate_id);
`

// outcomeColumns is the run_candidates column order used by RecordOutcomes.
var outcomeColumns = []string{
	"run_id", "candidate_id", "name", "outcome", "attempts",
	"reason", "score", "tier", "cost_usd", "recorded_at",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) StartRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, total = $2, succeeded = $3, failed = $4, retried = $5, scored = $6,
		 scoring_failures = $7, cost_usd = $8, error = $9, finished_at = $10 WHERE id = $11`,
		string(run.Status), run.Total, run.Succeeded, run.Failed, run.Retried, run.Scored,
		run.ScoreFails, run.CostUSD, nullString(run.Error), *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

// RecordOutcomes bulk-loads outcomes with COPY and merges them on
// (run_id, candidate_id).
func (s *PostgresStore) RecordOutcomes(ctx context.Context, runID string, outcomes []model.CandidateOutcome) error {
	rows := make([][]any, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, outcomeRow(runID, o))
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "run_candidates",
		Columns:      outcomeColumns,
		ConflictKeys: []string{"run_id", "candidate_id"},
	}, rows)
	return eris.Wrapf(err, "postgres: record outcomes for run %s", runID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, status, total, succeeded, failed, retried, scored, scoring_failures,
		 cost_usd, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var kind, status string
		var errText *string
		if err := rows.Scan(&r.ID, &kind, &status, &r.Total, &r.Succeeded, &r.Failed, &r.Retried,
			&r.Scored, &r.ScoreFails, &r.CostUSD, &errText, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Kind = model.RunKind(kind)
		r.Status = model.RunStatus(status)
		if errText != nil {
			r.Error = *errText
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]model.CandidateOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, candidate_id, name, outcome, attempts, reason, score, tier, cost_usd, recorded_at
		 FROM run_candidates WHERE run_id = $1 ORDER BY recorded_at, candidate_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list outcomes %s", runID)
	}
	defer rows.Close()

	var out []model.CandidateOutcome
	for rows.Next() {
		var o model.CandidateOutcome
		var outcome string
		var reason, tier *string
		if err := rows.Scan(&o.RunID, &o.CandidateID, &o.Name, &outcome, &o.Attempts,
			&reason, &o.Score, &tier, &o.CostUSD, &o.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o.Outcome = model.Outcome(outcome)
		if reason != nil {
			o.Reason = *reason
		}
		if tier != nil {
			o.Tier = *tier
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}
