package settlement_test

import (
	"context"
	"testing"
	"time"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

func TestSchedulerFiresPastDeadline(t *testing.T) {
	f := newFixture("100")
	task := f.seedTask(t, time.Now().Add(-time.Minute), 2)

	scheduler := smw.NewDeadlineScheduler(f.store, f.pipeline)
	scheduler.Schedule(task.ID, task.Deadline)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := f.store.GetTask(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if stored.Status == core.TaskCompleted {
			if scheduler.Pending() != 0 {
				t.Errorf("Expected no pending timers after firing but got %d", scheduler.Pending())
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timer did not settle the task within 5s")
}

func TestSchedulerReplaceAndCancel(t *testing.T) {
	f := newFixture("100")
	scheduler := smw.NewDeadlineScheduler(f.store, f.pipeline)

	scheduler.Schedule("task-a", time.Now().Add(time.Hour))
	scheduler.Schedule("task-a", time.Now().Add(2*time.Hour))
	if scheduler.Pending() != 1 {
		t.Errorf("Expected rescheduling to keep one timer but got %d", scheduler.Pending())
	}

	scheduler.Schedule("task-b", time.Now().Add(time.Hour))
	if scheduler.Pending() != 2 {
		t.Errorf("Expected 2 pending timers but got %d", scheduler.Pending())
	}

	scheduler.Cancel("task-a")
	if scheduler.Pending() != 1 {
		t.Errorf("Expected 1 pending timer after cancel but got %d", scheduler.Pending())
	}

	// Cancelling an unknown task is a no-op.
	scheduler.Cancel("task-a")
	if scheduler.Pending() != 1 {
		t.Errorf("Expected 1 pending timer but got %d", scheduler.Pending())
	}
}

func TestSchedulerRestore(t *testing.T) {
	f := newFixture("100")
	ctx := context.Background()

	open := core.Task{ID: "open-task", Status: core.TaskOpen, Deadline: time.Now().Add(time.Hour)}
	done := core.Task{ID: "done-task", Status: core.TaskCompleted, Deadline: time.Now().Add(time.Hour)}
	if err := f.store.CreateTask(ctx, open); err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}
	if err := f.store.CreateTask(ctx, done); err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}

	scheduler := smw.NewDeadlineScheduler(f.store, f.pipeline)
	if err := scheduler.Restore(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if scheduler.Pending() != 1 {
		t.Errorf("Expected 1 restored timer (OPEN tasks only) but got %d", scheduler.Pending())
	}
}
