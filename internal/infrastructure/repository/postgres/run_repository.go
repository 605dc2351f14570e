package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

// RunRepository stores run and comparison artifacts as JSONB next to the
// columns the listing queries filter on.
type RunRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across evaluator/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS eval_runs (
	run_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	avg_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	test_size INTEGER NOT NULL DEFAULT 0,
	evaluated INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	artifact JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eval_runs_name_created_at ON eval_runs(name, created_at DESC);

CREATE TABLE IF NOT EXISTS eval_comparisons (
	id BIGSERIAL PRIMARY KEY,
	baseline_run_id TEXT NOT NULL,
	enhanced_run_id TEXT NOT NULL,
	target_met BOOLEAN NOT NULL,
	achieved_count INTEGER NOT NULL,
	artifact JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eval_comparisons_runs ON eval_comparisons(baseline_run_id, enhanced_run_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) SaveRun(ctx context.Context, run *domain.RunResult) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("save run: %w: run id is required", domain.ErrInvalidInput)
	}
	artifact, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	createdAt := run.Timestamp
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO eval_runs (run_id, name, avg_score, test_size, evaluated, failed, artifact, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (run_id) DO UPDATE
SET name = EXCLUDED.name,
	avg_score = EXCLUDED.avg_score,
	test_size = EXCLUDED.test_size,
	evaluated = EXCLUDED.evaluated,
	failed = EXCLUDED.failed,
	artifact = EXCLUDED.artifact
`,
		run.RunID, run.Name, run.Summary.AvgScore, run.Summary.TestSize,
		run.Summary.Evaluated, run.Summary.Failed, artifact, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT artifact
FROM eval_runs
WHERE run_id = $1
`, runID)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get run", fmt.Errorf("run %s", runID))
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	var run domain.RunResult
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

func (r *RunRepository) SaveComparison(ctx context.Context, cmp *domain.ComparisonResult) error {
	if cmp == nil {
		return fmt.Errorf("save comparison: %w: comparison is nil", domain.ErrInvalidInput)
	}
	artifact, err := json.Marshal(cmp)
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO eval_comparisons (baseline_run_id, enhanced_run_id, target_met, achieved_count, artifact, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, cmp.BaselineRunID, cmp.EnhancedRunID, cmp.TargetMet, cmp.AchievedCount, artifact, r.now())
	if err != nil {
		return fmt.Errorf("insert comparison: %w", err)
	}
	return nil
}

// LatestRun returns the newest run recorded under a pipeline name.
func (r *RunRepository) LatestRun(ctx context.Context, name string) (*domain.RunResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT run_id
FROM eval_runs
WHERE name = $1
ORDER BY created_at DESC
LIMIT 1
`, name)

	var runID string
	if err := row.Scan(&runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "latest run", fmt.Errorf("no runs for %s", name))
		}
		return nil, fmt.Errorf("scan latest run: %w", err)
	}
	return r.GetRun(ctx, runID)
}
