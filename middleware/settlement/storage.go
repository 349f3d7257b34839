package settlement

import (
	"context"
	"time"

	core "starboard-backend/core/settlement"
)

var (
	ErrTaskNotFound       = Err("task not found")
	ErrSubmissionNotFound = Err("submission not found")
	ErrTaskNotOpen        = Err("task is not open for submissions")
	ErrDeadlinePassed     = Err("task deadline has passed")
	ErrDeadlineNotReached = Err("task deadline has not been reached")
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status    core.TaskStatus
	DueBefore time.Time
	Limit     int
}

// Store abstracts settlement persistence. It is the single source of truth
// for task status; UpdateTaskStatusIf is the conditional-write primitive
// every judging trigger must go through.
type Store interface {
	CreateTask(ctx context.Context, task core.Task) error
	GetTask(ctx context.Context, id string) (core.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]core.Task, error)
	// UpdateTaskStatusIf sets the status to `to` only where the current
	// status is `from`, returning the number of rows affected. Zero rows
	// means the caller lost the race and must abort without side effects.
	UpdateTaskStatusIf(ctx context.Context, id string, from, to core.TaskStatus) (int64, error)
	SetTaskStatus(ctx context.Context, id string, status core.TaskStatus) error

	CreateSubmission(ctx context.Context, sub core.Submission) error
	ListSubmissions(ctx context.Context, taskID string) ([]core.Submission, error)
	// ApplyVerdict batch-writes score, reasoning, and the winner flag onto
	// every submission of the task, leaving exactly one winner row.
	ApplyVerdict(ctx context.Context, taskID string, verdict core.Verdict) error

	CreateEscrowTransaction(ctx context.Context, tx core.EscrowTransaction) error
	ListEscrowTransactions(ctx context.Context, taskID string) ([]core.EscrowTransaction, error)
	// ReleaseTransaction returns the task's current RELEASE row, if any.
	ReleaseTransaction(ctx context.Context, taskID string) (core.EscrowTransaction, bool, error)
	// UpsertRelease inserts the task's RELEASE row or updates it in place;
	// a task never accumulates more than one.
	UpsertRelease(ctx context.Context, tx core.EscrowTransaction) error

	Close()
}
