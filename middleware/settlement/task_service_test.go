package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

func newTaskService(f *fixture) (*smw.TaskService, *smw.DeadlineScheduler) {
	scheduler := smw.NewDeadlineScheduler(f.store, f.pipeline)
	return smw.NewTaskService(f.store, f.escrow, scheduler, "treasury"), scheduler
}

func validCreateRequest(depositSig string) smw.CreateTaskRequest {
	return smw.CreateTaskRequest{
		Title:            "design a logo",
		Description:      "vector logo for the launch",
		Reward:           decimal.RequireFromString("50"),
		Deadline:         time.Now().Add(24 * time.Hour),
		Category:         "design",
		SubmissionType:   "image",
		CreatorID:        "creator-1",
		CreatorWallet:    "creator-wallet",
		DepositSignature: depositSig,
	}
}

func TestCreateFundedTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Verified deposit creates task and lock", func(t *testing.T) {
		f := newFixture("0")
		sig := f.ledger.RecordDeposit("treasury", decimal.RequireFromString("50"), time.Now())
		service, scheduler := newTaskService(f)

		task, err := service.CreateFundedTask(ctx, validCreateRequest(sig))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if task.Status != core.TaskOpen {
			t.Errorf("Expected status OPEN but got %s", task.Status)
		}
		if task.Category != "DESIGN" {
			t.Errorf("Expected normalized category DESIGN but got %s", task.Category)
		}
		if task.SubmissionType != core.SubmissionImage {
			t.Errorf("Expected submission type IMAGE but got %s", task.SubmissionType)
		}

		txs, err := f.store.ListEscrowTransactions(ctx, task.ID)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(txs) != 1 {
			t.Fatalf("Expected 1 escrow transaction but got %d", len(txs))
		}
		if txs[0].Type != core.EscrowLock {
			t.Errorf("Expected LOCK transaction but got %s", txs[0].Type)
		}
		if txs[0].Status != core.EscrowConfirmed {
			t.Errorf("Expected LOCK status CONFIRMED but got %s", txs[0].Status)
		}
		if txs[0].TxSignature != sig {
			t.Errorf("Expected lock signature %s but got %s", sig, txs[0].TxSignature)
		}

		if scheduler.Pending() != 1 {
			t.Errorf("Expected a registered deadline timer but got %d", scheduler.Pending())
		}
	})

	t.Run("Unknown deposit signature rejected", func(t *testing.T) {
		f := newFixture("0")
		service, scheduler := newTaskService(f)

		_, err := service.CreateFundedTask(ctx, validCreateRequest("no-such-sig"))
		if !errors.Is(err, core.ErrDepositNotFound) {
			t.Errorf("Expected ErrDepositNotFound but got %v", err)
		}
		if scheduler.Pending() != 0 {
			t.Errorf("Expected no timer for rejected task but got %d", scheduler.Pending())
		}
	})

	t.Run("Underfunded deposit rejected", func(t *testing.T) {
		f := newFixture("0")
		sig := f.ledger.RecordDeposit("treasury", decimal.RequireFromString("49"), time.Now())
		service, _ := newTaskService(f)

		_, err := service.CreateFundedTask(ctx, validCreateRequest(sig))
		if !errors.Is(err, core.ErrDepositUnderfunded) {
			t.Errorf("Expected ErrDepositUnderfunded but got %v", err)
		}
	})

	t.Run("Stale deposit rejected", func(t *testing.T) {
		f := newFixture("0")
		sig := f.ledger.RecordDeposit("treasury", decimal.RequireFromString("50"), time.Now().Add(-time.Hour))
		service, _ := newTaskService(f)

		_, err := service.CreateFundedTask(ctx, validCreateRequest(sig))
		if !errors.Is(err, core.ErrDepositStale) {
			t.Errorf("Expected ErrDepositStale but got %v", err)
		}
	})

	t.Run("Input validation", func(t *testing.T) {
		f := newFixture("0")
		sig := f.ledger.RecordDeposit("treasury", decimal.RequireFromString("50"), time.Now())
		service, _ := newTaskService(f)

		cases := []struct {
			name   string
			mutate func(*smw.CreateTaskRequest)
		}{
			{"Empty title", func(r *smw.CreateTaskRequest) { r.Title = "  " }},
			{"Zero reward", func(r *smw.CreateTaskRequest) { r.Reward = decimal.Zero }},
			{"Past deadline", func(r *smw.CreateTaskRequest) { r.Deadline = time.Now().Add(-time.Minute) }},
			{"Bad submission type", func(r *smw.CreateTaskRequest) { r.SubmissionType = "VIDEO" }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := validCreateRequest(sig)
				tc.mutate(&req)
				if _, err := service.CreateFundedTask(ctx, req); err == nil {
					t.Error("Expected a validation error but got nil")
				}
			})
		}
	})
}

func TestAddSubmission(t *testing.T) {
	ctx := context.Background()

	t.Run("Accepted while open", func(t *testing.T) {
		f := newFixture("0")
		sig := f.ledger.RecordDeposit("treasury", decimal.RequireFromString("50"), time.Now())
		service, _ := newTaskService(f)
		task, err := service.CreateFundedTask(ctx, validCreateRequest(sig))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		sub, err := service.AddSubmission(ctx, smw.SubmitRequest{
			TaskID:          task.ID,
			SubmitterID:     "user-1",
			SubmitterWallet: "wallet-1",
			Content:         "https://example.com/logo.png",
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if sub.Type != core.SubmissionImage {
			t.Errorf("Expected submission to inherit the task type IMAGE but got %s", sub.Type)
		}

		subs, _ := f.store.ListSubmissions(ctx, task.ID)
		if len(subs) != 1 {
			t.Errorf("Expected 1 stored submission but got %d", len(subs))
		}
	})

	t.Run("Rejected after deadline", func(t *testing.T) {
		f := newFixture("0")
		service, _ := newTaskService(f)
		task := core.Task{ID: "past-task", Status: core.TaskOpen, Deadline: time.Now().Add(-time.Minute)}
		if err := f.store.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to seed task: %v", err)
		}

		_, err := service.AddSubmission(ctx, smw.SubmitRequest{TaskID: task.ID, Content: "late entry"})
		if !errors.Is(err, smw.ErrDeadlinePassed) {
			t.Errorf("Expected ErrDeadlinePassed but got %v", err)
		}
	})

	t.Run("Rejected when not open", func(t *testing.T) {
		f := newFixture("0")
		service, _ := newTaskService(f)
		task := core.Task{ID: "closed-task", Status: core.TaskCancelled, Deadline: time.Now().Add(time.Hour)}
		if err := f.store.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to seed task: %v", err)
		}

		_, err := service.AddSubmission(ctx, smw.SubmitRequest{TaskID: task.ID, Content: "entry"})
		if !errors.Is(err, smw.ErrTaskNotOpen) {
			t.Errorf("Expected ErrTaskNotOpen but got %v", err)
		}
	})

	t.Run("Rejected with empty content", func(t *testing.T) {
		f := newFixture("0")
		service, _ := newTaskService(f)
		task := core.Task{ID: "open-task", Status: core.TaskOpen, Deadline: time.Now().Add(time.Hour)}
		if err := f.store.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to seed task: %v", err)
		}

		if _, err := service.AddSubmission(ctx, smw.SubmitRequest{TaskID: task.ID, Content: "   "}); err == nil {
			t.Error("Expected a validation error but got nil")
		}
	})
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture("0")
	sig := f.ledger.RecordDeposit("treasury", decimal.RequireFromString("50"), time.Now())
	service, scheduler := newTaskService(f)
	task, err := service.CreateFundedTask(ctx, validCreateRequest(sig))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cancelled, err := service.CancelTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !cancelled {
		t.Error("Expected the open task to be cancelled")
	}
	if scheduler.Pending() != 0 {
		t.Errorf("Expected the timer to be removed but got %d pending", scheduler.Pending())
	}

	// Second cancel is a conflict no-op.
	cancelled, err = service.CancelTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cancelled {
		t.Error("Expected repeat cancel to be a no-op")
	}
}
