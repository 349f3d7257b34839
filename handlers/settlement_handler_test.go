package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	core "starboard-backend/core/settlement"
	"starboard-backend/ledger"
	smw "starboard-backend/middleware/settlement"
	store "starboard-backend/storage/settlement"
)

func newSettlementHandler(treasuryBalance string) (*SettlementHandler, *store.MemoryStore, *ledger.Mock) {
	st := store.NewMemoryStore()
	mock := ledger.NewMock()
	mock.SetBalance("treasury", decimal.RequireFromString(treasuryBalance))

	escrow := core.NewEscrowEngine(mock, st, core.EscrowConfig{
		Treasury:         "treasury",
		TransferAttempts: 2,
		RetryBackoff:     time.Millisecond,
	})
	judge := core.NewJudgingEngine(nil, nil, time.Second)
	pipeline := smw.NewPipeline(st, judge, escrow)
	scheduler := smw.NewDeadlineScheduler(st, pipeline)
	service := smw.NewTaskService(st, escrow, scheduler, "treasury")
	return NewSettlementHandler(st, service, pipeline), st, mock
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestHandleTasksCreate(t *testing.T) {
	handler, _, mock := newSettlementHandler("0")
	sig := mock.RecordDeposit("treasury", decimal.RequireFromString("50"), time.Now())

	body, _ := json.Marshal(map[string]interface{}{
		"title":             "write docs",
		"description":       "getting started guide",
		"reward":            "50",
		"deadline":          time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"category":          "writing",
		"submission_type":   "TEXT",
		"creator_id":        "creator-1",
		"creator_wallet":    "creator-wallet",
		"deposit_signature": sig,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 but got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp["success"] != true {
		t.Error("Expected success response")
	}
}

func TestHandleTasksCreateRejectsUnfundedTask(t *testing.T) {
	handler, _, _ := newSettlementHandler("0")

	body, _ := json.Marshal(map[string]interface{}{
		"title":             "write docs",
		"reward":            "50",
		"deadline":          time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"submission_type":   "TEXT",
		"deposit_signature": "bogus",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleTasks(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 but got %d", rec.Code)
	}
}

func TestHandleTaskByID(t *testing.T) {
	handler, st, _ := newSettlementHandler("100")
	task := core.Task{
		ID:       "task-1",
		Title:    "ship it",
		Status:   core.TaskOpen,
		Reward:   decimal.RequireFromString("50"),
		Deadline: time.Now().Add(-time.Minute),
	}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}
	sub := core.Submission{
		ID: "sub-1", TaskID: task.ID,
		SubmitterID: "user-1", SubmitterWallet: "wallet-1",
		Content: "done", Type: core.SubmissionText, CreatedAt: time.Now(),
	}
	if err := st.CreateSubmission(context.Background(), sub); err != nil {
		t.Fatalf("Failed to seed submission: %v", err)
	}

	t.Run("Get task", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/task-1", nil)
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200 but got %d", rec.Code)
		}
	})

	t.Run("Unknown task returns 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 but got %d", rec.Code)
		}
	})

	t.Run("Complete settles the task", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/tasks/task-1/complete", nil)
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200 but got %d: %s", rec.Code, rec.Body.String())
		}
		stored, _ := st.GetTask(context.Background(), task.ID)
		if stored.Status != core.TaskCompleted {
			t.Errorf("Expected status COMPLETED but got %s", stored.Status)
		}
	})

	t.Run("Cancel after completion conflicts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/tasks/task-1/cancel", nil)
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("Expected status 409 but got %d", rec.Code)
		}
	})

	t.Run("Submission after completion conflicts", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"submitter_id": "user-2", "content": "late"})
		req := httptest.NewRequest(http.MethodPost, "/api/tasks/task-1/submissions", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("Expected status 409 but got %d", rec.Code)
		}
	})

	t.Run("List escrow", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/task-1/escrow", nil)
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200 but got %d", rec.Code)
		}
	})

	t.Run("Unknown sub-resource", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/task-1/unknown", nil)
		rec := httptest.NewRecorder()
		handler.HandleTaskByID(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 but got %d", rec.Code)
		}
	})
}

func TestCompleteBeforeDeadlineConflicts(t *testing.T) {
	handler, st, _ := newSettlementHandler("100")
	task := core.Task{ID: "early", Status: core.TaskOpen, Deadline: time.Now().Add(time.Hour)}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/early/complete", nil)
	rec := httptest.NewRecorder()
	handler.HandleTaskByID(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409 but got %d", rec.Code)
	}
}

func TestHandleReconcile(t *testing.T) {
	handler, _, _ := newSettlementHandler("100")

	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", nil)
	rec := httptest.NewRecorder()
	handler.HandleReconcile(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 but got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/reconcile", nil)
	rec = httptest.NewRecorder()
	handler.HandleReconcile(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 but got %d", rec.Code)
	}
}
