package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *PGRunStore implements mirror.RunStore.
var _ mirror.RunStore = (*PGRunStore)(nil)

// PGRunStore implements RunStore using PostgreSQL.
type PGRunStore struct {
	pool *pgxpool.Pool
}

// NewPGRunStore creates a new PGRunStore.
func NewPGRunStore(pool *pgxpool.Pool) *PGRunStore {
	return &PGRunStore{pool: pool}
}

// SaveRun upserts a run and replaces its per-file results within a transaction.
func (s *PGRunStore) SaveRun(ctx context.Context, run mirror.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, delivery_id, trigger, owner, repo, commit_sha, base_sha, status, reason, retry_of, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   reason = EXCLUDED.reason,
		   finished_at = EXCLUDED.finished_at`,
		run.ID, run.DeliveryID, run.Trigger,
		run.Commit.Owner, run.Commit.Repo, run.Commit.CommitSHA, run.Commit.BaseSHA,
		string(run.Status), run.Reason, run.RetryOf, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("upsert run %q: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_files WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("clear files of run %q: %w", run.ID, err)
	}

	if run.Outcome != nil {
		batch := &pgx.Batch{}
		const insertFile = `INSERT INTO run_files (run_id, path, succeeded, error_kind, error_path, error)
			VALUES ($1, $2, $3, $4, $5, $6)`
		for _, p := range run.Outcome.Succeeded {
			batch.Queue(insertFile, run.ID, p, true, "", "", "")
		}
		for p, recErr := range run.Outcome.Failed {
			batch.Queue(insertFile, run.ID, p, false, string(recErr.Kind), recErr.Path, errString(recErr.Err))
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert files of run %q: %w", run.ID, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetRun retrieves a run with its per-file results.
func (s *PGRunStore) GetRun(ctx context.Context, id string) (*mirror.Run, error) {
	row := s.pool.QueryRow(ctx, selectRuns+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mirror.RunNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}

	outcomes, err := s.queryOutcomes(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	run.Outcome = outcomes[id]
	return &run, nil
}

// ListRuns returns up to limit runs, most recently started first.
func (s *PGRunStore) ListRuns(ctx context.Context, limit int) ([]mirror.Run, error) {
	rows, err := s.pool.Query(ctx, selectRuns+` ORDER BY started_at DESC, id LIMIT $1`, mirror.ClampRunLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []mirror.Run{}
	var ids []string
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
		ids = append(ids, run.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	if len(runs) == 0 {
		return runs, nil
	}

	outcomes, err := s.queryOutcomes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		runs[i].Outcome = outcomes[runs[i].ID]
	}
	return runs, nil
}

const selectRuns = `SELECT id, delivery_id, trigger, owner, repo, commit_sha, base_sha, status, reason, retry_of, started_at, finished_at FROM runs`

func scanRun(row pgx.Row) (mirror.Run, error) {
	var (
		run    mirror.Run
		status string
	)
	err := row.Scan(&run.ID, &run.DeliveryID, &run.Trigger,
		&run.Commit.Owner, &run.Commit.Repo, &run.Commit.CommitSHA, &run.Commit.BaseSHA,
		&status, &run.Reason, &run.RetryOf, &run.StartedAt, &run.FinishedAt)
	run.Status = mirror.Status(status)
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return run, err
}

func (s *PGRunStore) queryOutcomes(ctx context.Context, ids []string) (map[string]*mirror.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, path, succeeded, error_kind, error_path, error
		 FROM run_files WHERE run_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	defer rows.Close()

	outcomes := make(map[string]*mirror.Outcome, len(ids))
	for rows.Next() {
		var (
			runID, p, kind, errPath, msg string
			succeeded                    bool
		)
		if err := rows.Scan(&runID, &p, &succeeded, &kind, &errPath, &msg); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		out, ok := outcomes[runID]
		if !ok {
			out = &mirror.Outcome{Failed: map[string]*mirror.RecordError{}}
			outcomes[runID] = out
		}
		if succeeded {
			out.Succeeded = append(out.Succeeded, p)
			continue
		}
		out.Failed[p] = &mirror.RecordError{Kind: mirror.ErrorKind(kind), Path: errPath, Err: errors.New(msg)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan run files: %w", err)
	}
	for _, out := range outcomes {
		sort.Strings(out.Succeeded)
	}
	return outcomes, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
