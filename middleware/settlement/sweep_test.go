package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

func TestDeadlineSweepSettlesOverdueTasks(t *testing.T) {
	f := newFixture("100")
	task := f.seedTask(t, time.Now().Add(-time.Minute), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	smw.StartDeadlineSweep(ctx, f.store, f.pipeline, 10*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := f.store.GetTask(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if stored.Status == core.TaskCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Sweep did not settle the overdue task within 5s")
}

func TestReconcileOncePromotesPendingTask(t *testing.T) {
	f := newFixture("10")
	task := f.seedTask(t, time.Now().Add(-time.Minute), 2)

	result, err := f.pipeline.CompleteTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Status != core.TaskPaymentPending {
		t.Fatalf("Expected status PAYMENT_PENDING but got %s", result.Status)
	}

	// Still underfunded: the pass is a no-op.
	if err := smw.ReconcileOnce(context.Background(), f.store, f.pipeline); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	stored, _ := f.store.GetTask(context.Background(), task.ID)
	if stored.Status != core.TaskPaymentPending {
		t.Errorf("Expected status to remain PAYMENT_PENDING but got %s", stored.Status)
	}

	f.ledger.SetBalance("treasury", decimal.RequireFromString("100"))
	if err := smw.ReconcileOnce(context.Background(), f.store, f.pipeline); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	stored, _ = f.store.GetTask(context.Background(), task.ID)
	if stored.Status != core.TaskCompleted {
		t.Errorf("Expected status COMPLETED after reconciliation but got %s", stored.Status)
	}
}
