package runlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	cost_usd         REAL NOT NULL DEFAULT 0,
	error            TEXT,
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME
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
	cost_usd     REAL NOT NULL DEFAULT 0,
	recorded_at  DATETIME NOT NULL,
	PRIMARY KEY (run_id, candidate_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_candidates_candidate ON run_candidates(candidate_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total = ?, succeeded = ?, failed = ?, retried = ?, scored = ?,
		 scoring_failures = ?, cost_usd = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Total, run.Succeeded, run.Failed, run.Retried, run.Scored,
		run.ScoreFails, run.CostUSD, nullString(run.Error), *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

// RecordOutcomes upserts outcomes in one transaction; recording the same
// candidate twice for a run keeps the latest outcome.
func (s *SQLiteStore) RecordOutcomes(ctx context.Context, runID string, outcomes []model.CandidateOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin outcomes tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_candidates (run_id, candidate_id, name, outcome, attempts, reason, score, tier, cost_usd, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, candidate_id) DO UPDATE SET
		   name = excluded.name, outcome = excluded.outcome, attempts = excluded.attempts,
		   reason = excluded.reason, score = excluded.score, tier = excluded.tier,
		   cost_usd = excluded.cost_usd, recorded_at = excluded.recorded_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare outcome insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, outcomeRow(runID, o)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert outcome %s", o.CandidateID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit outcomes")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, total, succeeded, failed, retried, scored, scoring_failures,
		 cost_usd, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errText sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.Total, &r.Succeeded, &r.Failed, &r.Retried,
			&r.Scored, &r.ScoreFails, &r.CostUSD, &errText, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Error = errText.String
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]model.CandidateOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, candidate_id, name, outcome, attempts, reason, score, tier, cost_usd, recorded_at
		 FROM run_candidates WHERE run_id = ? ORDER BY recorded_at, candidate_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list outcomes %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CandidateOutcome
	for rows.Next() {
		var o model.CandidateOutcome
		var reason, tier sql.NullString
		var score sql.NullInt64
		if err := rows.Scan(&o.RunID, &o.CandidateID, &o.Name, &o.Outcome, &o.Attempts,
			&reason, &score, &tier, &o.CostUSD, &o.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		o.Reason = reason.String
		o.Tier = tier.String
		if score.Valid {
			o.Score = model.IntPtr(int(score.Int64))
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

// helpers

func outcomeRow(runID string, o model.CandidateOutcome) []any {
	recorded := o.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}
	var score any
	if o.Score != nil {
		score = *o.Score
	}
	return []any{
		runID, o.CandidateID, o.Name, string(o.Outcome), o.Attempts,
		nullString(o.Reason), score, nullString(o.Tier), o.CostUSD, recorded,
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
