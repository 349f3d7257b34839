package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

// PGStore persists settlement state in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS settlement_tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL,
  reward NUMERIC NOT NULL,
  deadline TIMESTAMPTZ NOT NULL,
  category TEXT,
  submission_type TEXT NOT NULL,
  creator_id TEXT,
  creator_wallet TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settlement_submissions (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES settlement_tasks(id),
  submitter_id TEXT,
  submitter_wallet TEXT,
  content TEXT NOT NULL,
  type TEXT NOT NULL,
  score INT,
  ai_reasoning TEXT,
  is_winner BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settlement_escrow_transactions (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES settlement_tasks(id),
  type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  from_wallet TEXT,
  to_wallet TEXT,
  status TEXT NOT NULL,
  tx_signature TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  confirmed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_settlement_tasks_status_deadline ON settlement_tasks(status, deadline);
CREATE INDEX IF NOT EXISTS idx_settlement_submissions_task ON settlement_submissions(task_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_settlement_escrow_release ON settlement_escrow_transactions(task_id) WHERE type = 'RELEASE';
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close shuts down the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const taskColumns = `id, title, description, status, reward, deadline, category, submission_type, creator_id, creator_wallet, created_at`

func scanTask(row pgx.Row) (core.Task, error) {
	var t core.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Reward, &t.Deadline,
		&t.Category, &t.SubmissionType, &t.CreatorID, &t.CreatorWallet, &t.CreatedAt)
	return t, err
}

// CreateTask inserts a task.
func (s *PGStore) CreateTask(ctx context.Context, task core.Task) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO settlement_tasks (id, title, description, status, reward, deadline, category, submission_type, creator_id, creator_wallet, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, task.ID, task.Title, task.Description, task.Status, task.Reward, task.Deadline,
		task.Category, task.SubmissionType, task.CreatorID, task.CreatorWallet, task.CreatedAt)
	return err
}

// GetTask returns a task by ID.
func (s *PGStore) GetTask(ctx context.Context, id string) (core.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM settlement_tasks WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Task{}, smw.ErrTaskNotFound
		}
		return core.Task{}, err
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, oldest deadline first.
func (s *PGStore) ListTasks(ctx context.Context, filter smw.TaskFilter) ([]core.Task, error) {
	due := filter.DueBefore
	if due.IsZero() {
		due = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+taskColumns+`
FROM settlement_tasks
WHERE ($1 = '' OR status = $1) AND deadline < $2
ORDER BY deadline
LIMIT $3
`, string(filter.Status), due, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// UpdateTaskStatusIf performs the compare-and-set status transition and
// reports how many rows it touched.
func (s *PGStore) UpdateTaskStatusIf(ctx context.Context, id string, from, to core.TaskStatus) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE settlement_tasks SET status=$3 WHERE id=$1 AND status=$2
`, id, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetTaskStatus writes the status unconditionally.
func (s *PGStore) SetTaskStatus(ctx context.Context, id string, status core.TaskStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE settlement_tasks SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return smw.ErrTaskNotFound
	}
	return nil
}

// CreateSubmission inserts a submission.
func (s *PGStore) CreateSubmission(ctx context.Context, sub core.Submission) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO settlement_submissions (id, task_id, submitter_id, submitter_wallet, content, type, score, ai_reasoning, is_winner, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, sub.ID, sub.TaskID, sub.SubmitterID, sub.SubmitterWallet, sub.Content, sub.Type,
		sub.Score, sub.AIReasoning, sub.IsWinner, sub.CreatedAt)
	return err
}

// ListSubmissions returns a task's submissions, oldest first.
func (s *PGStore) ListSubmissions(ctx context.Context, taskID string) ([]core.Submission, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, task_id, submitter_id, submitter_wallet, content, type, score, ai_reasoning, is_winner, created_at
FROM settlement_submissions WHERE task_id=$1 ORDER BY created_at
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Submission
	for rows.Next() {
		var sub core.Submission
		if err := rows.Scan(&sub.ID, &sub.TaskID, &sub.SubmitterID, &sub.SubmitterWallet, &sub.Content,
			&sub.Type, &sub.Score, &sub.AIReasoning, &sub.IsWinner, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ApplyVerdict batch-writes score, reasoning, and the winner flag in one
// transaction, leaving exactly one winner row for the task.
func (s *PGStore) ApplyVerdict(ctx context.Context, taskID string, verdict core.Verdict) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE settlement_submissions SET is_winner=false WHERE task_id=$1`, taskID); err != nil {
		return err
	}
	for id, entry := range verdict.Scores {
		if _, err := tx.Exec(ctx, `
UPDATE settlement_submissions SET score=$2, ai_reasoning=$3 WHERE id=$1 AND task_id=$4
`, id, entry.Score, entry.Reasoning, taskID); err != nil {
			return err
		}
	}
	tag, err := tx.Exec(ctx, `
UPDATE settlement_submissions SET is_winner=true WHERE id=$1 AND task_id=$2
`, verdict.WinnerID, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return smw.ErrSubmissionNotFound
	}
	return tx.Commit(ctx)
}

// CreateEscrowTransaction inserts an escrow record.
func (s *PGStore) CreateEscrowTransaction(ctx context.Context, esc core.EscrowTransaction) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO settlement_escrow_transactions (id, task_id, type, amount, from_wallet, to_wallet, status, tx_signature, created_at, confirmed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, esc.ID, esc.TaskID, esc.Type, esc.Amount, esc.FromWallet, esc.ToWallet, esc.Status,
		esc.TxSignature, esc.CreatedAt, esc.ConfirmedAt)
	return err
}

// ListEscrowTransactions returns a task's escrow records, oldest first.
func (s *PGStore) ListEscrowTransactions(ctx context.Context, taskID string) ([]core.EscrowTransaction, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, task_id, type, amount, from_wallet, to_wallet, status, tx_signature, created_at, confirmed_at
FROM settlement_escrow_transactions WHERE task_id=$1 ORDER BY created_at
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.EscrowTransaction
	for rows.Next() {
		var esc core.EscrowTransaction
		if err := rows.Scan(&esc.ID, &esc.TaskID, &esc.Type, &esc.Amount, &esc.FromWallet, &esc.ToWallet,
			&esc.Status, &esc.TxSignature, &esc.CreatedAt, &esc.ConfirmedAt); err != nil {
			return nil, err
		}
		out = append(out, esc)
	}
	return out, rows.Err()
}

// ReleaseTransaction returns the task's current RELEASE row, if any.
func (s *PGStore) ReleaseTransaction(ctx context.Context, taskID string) (core.EscrowTransaction, bool, error) {
	var esc core.EscrowTransaction
	err := s.pool.QueryRow(ctx, `
SELECT id, task_id, type, amount, from_wallet, to_wallet, status, tx_signature, created_at, confirmed_at
FROM settlement_escrow_transactions WHERE task_id=$1 AND type='RELEASE'
`, taskID).Scan(&esc.ID, &esc.TaskID, &esc.Type, &esc.Amount, &esc.FromWallet, &esc.ToWallet,
		&esc.Status, &esc.TxSignature, &esc.CreatedAt, &esc.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.EscrowTransaction{}, false, nil
		}
		return core.EscrowTransaction{}, false, err
	}
	return esc, true, nil
}

// UpsertRelease updates the task's RELEASE row in place, inserting it on
// first use. The partial unique index keeps a task at one RELEASE row even
// under concurrent writers.
func (s *PGStore) UpsertRelease(ctx context.Context, esc core.EscrowTransaction) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE settlement_escrow_transactions
SET amount=$2, from_wallet=$3, to_wallet=$4, status=$5, tx_signature=$6, confirmed_at=$7
WHERE task_id=$1 AND type='RELEASE'
`, esc.TaskID, esc.Amount, esc.FromWallet, esc.ToWallet, esc.Status, esc.TxSignature, esc.ConfirmedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.CreateEscrowTransaction(ctx, esc)
}
