package settlement

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	core "starboard-backend/core/settlement"
)

// CreateTaskRequest is the input for funded task creation.
type CreateTaskRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Reward           decimal.Decimal `json:"reward"`
	Deadline         time.Time       `json:"deadline"`
	Category         string          `json:"category"`
	SubmissionType   string          `json:"submission_type"`
	CreatorID        string          `json:"creator_id"`
	CreatorWallet    string          `json:"creator_wallet"`
	DepositSignature string          `json:"deposit_signature"`
}

// SubmitRequest is the input for submission intake.
type SubmitRequest struct {
	TaskID          string `json:"task_id"`
	SubmitterID     string `json:"submitter_id"`
	SubmitterWallet string `json:"submitter_wallet"`
	Content         string `json:"content"`
	Type            string `json:"type"`
}

// TaskService handles funded task creation and submission intake. Creation
// is gated on synchronous deposit verification; a task only exists once its
// reward is provably in the treasury.
type TaskService struct {
	store     Store
	escrow    *core.EscrowEngine
	scheduler *DeadlineScheduler
	treasury  string
}

// NewTaskService creates a task service.
func NewTaskService(store Store, escrow *core.EscrowEngine, scheduler *DeadlineScheduler, treasury string) *TaskService {
	return &TaskService{store: store, escrow: escrow, scheduler: scheduler, treasury: treasury}
}

// CreateFundedTask verifies the claimed deposit, persists the task with its
// LOCK escrow record, and registers the deadline timer.
func (s *TaskService) CreateFundedTask(ctx context.Context, req CreateTaskRequest) (core.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return core.Task{}, Err("title is required")
	}
	if req.Reward.Sign() <= 0 {
		return core.Task{}, Err("reward must be positive")
	}
	if !req.Deadline.After(time.Now()) {
		return core.Task{}, Err("deadline must be in the future")
	}
	subType := core.SubmissionType(strings.ToUpper(req.SubmissionType))
	switch subType {
	case core.SubmissionLink, core.SubmissionImage, core.SubmissionText:
	default:
		return core.Task{}, Err("submission type must be LINK, IMAGE, or TEXT")
	}

	if err := s.escrow.VerifyDeposit(ctx, req.DepositSignature, req.Reward); err != nil {
		depositVerifications.WithLabelValues("rejected").Inc()
		return core.Task{}, fmt.Errorf("deposit verification failed: %w", err)
	}
	depositVerifications.WithLabelValues("ok").Inc()

	now := time.Now()
	task := core.Task{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Status:         core.TaskOpen,
		Reward:         req.Reward,
		Deadline:       req.Deadline,
		Category:       strings.ToUpper(strings.TrimSpace(req.Category)),
		SubmissionType: subType,
		CreatorID:      req.CreatorID,
		CreatorWallet:  req.CreatorWallet,
		CreatedAt:      now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return core.Task{}, fmt.Errorf("persist task: %w", err)
	}

	lock := core.EscrowTransaction{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		Type:        core.EscrowLock,
		Amount:      req.Reward,
		FromWallet:  req.CreatorWallet,
		ToWallet:    s.treasury,
		Status:      core.EscrowConfirmed,
		TxSignature: req.DepositSignature,
		CreatedAt:   now,
		ConfirmedAt: &now,
	}
	if err := s.store.CreateEscrowTransaction(ctx, lock); err != nil {
		return core.Task{}, fmt.Errorf("persist escrow lock: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.Schedule(task.ID, task.Deadline)
	}
	log.Printf("created funded task %s: reward=%s deadline=%s", task.ID, task.Reward, task.Deadline.Format(time.RFC3339))
	return task, nil
}

// AddSubmission accepts a contributor entry while the task is OPEN and the
// deadline has not passed.
func (s *TaskService) AddSubmission(ctx context.Context, req SubmitRequest) (core.Submission, error) {
	task, err := s.store.GetTask(ctx, req.TaskID)
	if err != nil {
		return core.Submission{}, err
	}
	if task.Status != core.TaskOpen {
		return core.Submission{}, ErrTaskNotOpen
	}
	if time.Now().After(task.Deadline) {
		return core.Submission{}, ErrDeadlinePassed
	}
	if strings.TrimSpace(req.Content) == "" {
		return core.Submission{}, Err("submission content is required")
	}

	sub := core.Submission{
		ID:              uuid.NewString(),
		TaskID:          task.ID,
		SubmitterID:     req.SubmitterID,
		SubmitterWallet: req.SubmitterWallet,
		Content:         req.Content,
		Type:            core.SubmissionType(strings.ToUpper(req.Type)),
		CreatedAt:       time.Now(),
	}
	if sub.Type == "" {
		sub.Type = task.SubmissionType
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return core.Submission{}, fmt.Errorf("persist submission: %w", err)
	}
	return sub, nil
}

// CancelTask cancels an OPEN task out-of-band (admin action) and removes its
// pending timer. Returns Conflict-style no-op if the task already left OPEN.
func (s *TaskService) CancelTask(ctx context.Context, taskID string) (bool, error) {
	rows, err := s.store.UpdateTaskStatusIf(ctx, taskID, core.TaskOpen, core.TaskCancelled)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(taskID)
	}
	log.Printf("task %s cancelled by operator", taskID)
	return true, nil
}
