package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

func TestMemoryStoreTaskStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	task := core.Task{ID: "task-1", Status: core.TaskOpen, Deadline: time.Now().Add(time.Hour)}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	t.Run("Get unknown task", func(t *testing.T) {
		if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, smw.ErrTaskNotFound) {
			t.Errorf("Expected ErrTaskNotFound but got %v", err)
		}
	})

	t.Run("CAS succeeds from matching status", func(t *testing.T) {
		rows, err := store.UpdateTaskStatusIf(ctx, task.ID, core.TaskOpen, core.TaskJudging)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if rows != 1 {
			t.Errorf("Expected 1 row affected but got %d", rows)
		}
		stored, _ := store.GetTask(ctx, task.ID)
		if stored.Status != core.TaskJudging {
			t.Errorf("Expected status JUDGING but got %s", stored.Status)
		}
	})

	t.Run("CAS fails from stale status", func(t *testing.T) {
		rows, err := store.UpdateTaskStatusIf(ctx, task.ID, core.TaskOpen, core.TaskCancelled)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if rows != 0 {
			t.Errorf("Expected 0 rows affected but got %d", rows)
		}
		stored, _ := store.GetTask(ctx, task.ID)
		if stored.Status != core.TaskJudging {
			t.Errorf("Expected status to remain JUDGING but got %s", stored.Status)
		}
	})

	t.Run("CAS on unknown task", func(t *testing.T) {
		rows, err := store.UpdateTaskStatusIf(ctx, "missing", core.TaskOpen, core.TaskJudging)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if rows != 0 {
			t.Errorf("Expected 0 rows affected but got %d", rows)
		}
	})

	t.Run("Unconditional set", func(t *testing.T) {
		if err := store.SetTaskStatus(ctx, task.ID, core.TaskOpen); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		stored, _ := store.GetTask(ctx, task.ID)
		if stored.Status != core.TaskOpen {
			t.Errorf("Expected status OPEN but got %s", stored.Status)
		}
		if err := store.SetTaskStatus(ctx, "missing", core.TaskOpen); !errors.Is(err, smw.ErrTaskNotFound) {
			t.Errorf("Expected ErrTaskNotFound but got %v", err)
		}
	})
}

func TestMemoryStoreListTasks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	seed := []core.Task{
		{ID: "a", Status: core.TaskOpen, Deadline: now.Add(3 * time.Hour)},
		{ID: "b", Status: core.TaskOpen, Deadline: now.Add(time.Hour)},
		{ID: "c", Status: core.TaskCompleted, Deadline: now.Add(2 * time.Hour)},
		{ID: "d", Status: core.TaskOpen, Deadline: now.Add(-time.Hour)},
	}
	for _, task := range seed {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	t.Run("Filter by status orders by deadline", func(t *testing.T) {
		tasks, err := store.ListTasks(ctx, smw.TaskFilter{Status: core.TaskOpen})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(tasks) != 3 {
			t.Fatalf("Expected 3 open tasks but got %d", len(tasks))
		}
		if tasks[0].ID != "d" || tasks[1].ID != "b" || tasks[2].ID != "a" {
			t.Errorf("Expected order d,b,a but got %s,%s,%s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
		}
	})

	t.Run("Filter by due before", func(t *testing.T) {
		tasks, err := store.ListTasks(ctx, smw.TaskFilter{Status: core.TaskOpen, DueBefore: now})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(tasks) != 1 || tasks[0].ID != "d" {
			t.Errorf("Expected only the overdue task d but got %d tasks", len(tasks))
		}
	})

	t.Run("Limit", func(t *testing.T) {
		tasks, err := store.ListTasks(ctx, smw.TaskFilter{Status: core.TaskOpen, Limit: 2})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(tasks) != 2 {
			t.Errorf("Expected 2 tasks but got %d", len(tasks))
		}
	})
}

func TestMemoryStoreApplyVerdict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	subs := []core.Submission{
		{ID: "sub-1", TaskID: "task-1", CreatedAt: time.Now()},
		{ID: "sub-2", TaskID: "task-1", CreatedAt: time.Now().Add(time.Second)},
		{ID: "sub-other", TaskID: "task-2", CreatedAt: time.Now()},
	}
	for _, sub := range subs {
		if err := store.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	verdict := core.Verdict{
		WinnerID: "sub-2",
		Scores: map[string]core.SubmissionScore{
			"sub-1": {Score: 70, Reasoning: "solid"},
			"sub-2": {Score: 95, Reasoning: "excellent"},
		},
	}
	if err := store.ApplyVerdict(ctx, "task-1", verdict); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	stored, _ := store.ListSubmissions(ctx, "task-1")
	if len(stored) != 2 {
		t.Fatalf("Expected 2 submissions but got %d", len(stored))
	}
	for _, sub := range stored {
		if sub.Score == nil {
			t.Fatalf("Expected a score on submission %s", sub.ID)
		}
		if sub.ID == "sub-2" && !sub.IsWinner {
			t.Error("Expected sub-2 to be the winner")
		}
		if sub.ID == "sub-1" && sub.IsWinner {
			t.Error("Expected sub-1 to not be the winner")
		}
	}

	// A second verdict moves the winner flag, it never accumulates.
	second := core.Verdict{
		WinnerID: "sub-1",
		Scores: map[string]core.SubmissionScore{
			"sub-1": {Score: 88},
			"sub-2": {Score: 60},
		},
	}
	if err := store.ApplyVerdict(ctx, "task-1", second); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	stored, _ = store.ListSubmissions(ctx, "task-1")
	winners := 0
	for _, sub := range stored {
		if sub.IsWinner {
			winners++
			if sub.ID != "sub-1" {
				t.Errorf("Expected winner sub-1 but got %s", sub.ID)
			}
		}
	}
	if winners != 1 {
		t.Errorf("Expected exactly one winner but got %d", winners)
	}

	// Submissions of other tasks stay untouched.
	other, _ := store.ListSubmissions(ctx, "task-2")
	if len(other) != 1 || other[0].Score != nil || other[0].IsWinner {
		t.Error("Expected task-2 submissions to be untouched")
	}
}

func TestMemoryStoreUpsertRelease(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	amount := decimal.RequireFromString("50")

	lock := core.EscrowTransaction{ID: "lock-1", TaskID: "task-1", Type: core.EscrowLock, Amount: amount, Status: core.EscrowConfirmed, CreatedAt: time.Now()}
	if err := store.CreateEscrowTransaction(ctx, lock); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, found, _ := store.ReleaseTransaction(ctx, "task-1"); found {
		t.Error("Expected no RELEASE row before the first upsert")
	}

	first := core.EscrowTransaction{ID: "rel-1", TaskID: "task-1", Type: core.EscrowRelease, Amount: amount, Status: core.EscrowPending, CreatedAt: time.Now()}
	if err := store.UpsertRelease(ctx, first); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	confirmed := first
	confirmed.ID = "rel-2"
	confirmed.Status = core.EscrowConfirmed
	confirmed.TxSignature = "sig-1"
	if err := store.UpsertRelease(ctx, confirmed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	release, found, err := store.ReleaseTransaction(ctx, "task-1")
	if err != nil || !found {
		t.Fatalf("Expected a RELEASE row (err=%v found=%t)", err, found)
	}
	if release.ID != "rel-1" {
		t.Errorf("Expected the original row ID rel-1 to be kept but got %s", release.ID)
	}
	if release.Status != core.EscrowConfirmed {
		t.Errorf("Expected status CONFIRMED but got %s", release.Status)
	}

	txs, _ := store.ListEscrowTransactions(ctx, "task-1")
	if len(txs) != 2 {
		t.Errorf("Expected LOCK plus one RELEASE but got %d rows", len(txs))
	}
}
