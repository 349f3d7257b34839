package handlers

import (
	"errors"
	"net/http"
	"strings"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

// SettlementHandler exposes the settlement pipeline over HTTP: funded task
// creation, submission intake, the redundant-safe complete trigger, and the
// manual reconciliation sweep.
type SettlementHandler struct {
	*BaseHandler
	store    smw.Store
	service  *smw.TaskService
	pipeline *smw.Pipeline
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(store smw.Store, service *smw.TaskService, pipeline *smw.Pipeline) *SettlementHandler {
	return &SettlementHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		service:     service,
		pipeline:    pipeline,
	}
}

// HandleTasks handles the task collection
// @Summary Create a funded task or list tasks
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/tasks [get]
// @Router /api/tasks [post]
func (h *SettlementHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req smw.CreateTaskRequest
		if err := h.parseJSON(r, &req); err != nil {
			h.sendError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		task, err := h.service.CreateFundedTask(r.Context(), req)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.sendSuccess(w, task)
	case http.MethodGet:
		filter := smw.TaskFilter{Status: core.TaskStatus(strings.ToUpper(r.URL.Query().Get("status")))}
		tasks, err := h.store.ListTasks(r.Context(), filter)
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.sendSuccess(w, map[string]interface{}{"tasks": tasks, "total": len(tasks)})
	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleTaskByID dispatches /api/tasks/{id} and its sub-resources
// @Summary Task detail, submissions, completion trigger, and cancellation
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/tasks/{id} [get]
// @Router /api/tasks/{id}/complete [post]
// @Router /api/tasks/{id}/submissions [get]
// @Router /api/tasks/{id}/submissions [post]
// @Router /api/tasks/{id}/cancel [post]
func (h *SettlementHandler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		h.sendError(w, http.StatusBadRequest, "Task ID is required")
		return
	}
	taskID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.getTask(w, r, taskID)
		return
	}

	switch parts[1] {
	case "complete":
		h.completeTask(w, r, taskID)
	case "submissions":
		h.taskSubmissions(w, r, taskID)
	case "cancel":
		h.cancelTask(w, r, taskID)
	case "escrow":
		h.taskEscrow(w, r, taskID)
	default:
		h.sendError(w, http.StatusNotFound, "Unknown task resource")
	}
}

func (h *SettlementHandler) getTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		h.taskError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// completeTask runs the full settlement pass synchronously. Safe to call
// redundantly: losers of the judging race get a conflict result, not an
// error.
func (h *SettlementHandler) completeTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	result, err := h.pipeline.CompleteTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, smw.ErrDeadlineNotReached) {
			h.sendError(w, http.StatusConflict, err.Error())
			return
		}
		h.taskError(w, err)
		return
	}
	h.sendSuccess(w, result)
}

func (h *SettlementHandler) taskSubmissions(w http.ResponseWriter, r *http.Request, taskID string) {
	switch r.Method {
	case http.MethodPost:
		var req smw.SubmitRequest
		if err := h.parseJSON(r, &req); err != nil {
			h.sendError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		req.TaskID = taskID
		sub, err := h.service.AddSubmission(r.Context(), req)
		if err != nil {
			if errors.Is(err, smw.ErrTaskNotOpen) || errors.Is(err, smw.ErrDeadlinePassed) {
				h.sendError(w, http.StatusConflict, err.Error())
				return
			}
			h.taskError(w, err)
			return
		}
		h.sendSuccess(w, sub)
	case http.MethodGet:
		subs, err := h.store.ListSubmissions(r.Context(), taskID)
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.sendSuccess(w, map[string]interface{}{"submissions": subs, "total": len(subs)})
	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SettlementHandler) cancelTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	cancelled, err := h.service.CancelTask(r.Context(), taskID)
	if err != nil {
		h.taskError(w, err)
		return
	}
	if !cancelled {
		h.sendError(w, http.StatusConflict, "Task is no longer open")
		return
	}
	h.sendSuccess(w, map[string]interface{}{"task_id": taskID, "status": core.TaskCancelled})
}

func (h *SettlementHandler) taskEscrow(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	txs, err := h.store.ListEscrowTransactions(r.Context(), taskID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.sendSuccess(w, map[string]interface{}{"transactions": txs, "total": len(txs)})
}

// HandleReconcile runs one reconciliation sweep over PAYMENT_PENDING tasks
// @Summary Retry outstanding payouts
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/reconcile [post]
func (h *SettlementHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := smw.ReconcileOnce(r.Context(), h.store, h.pipeline); err != nil {
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.sendSuccess(w, map[string]interface{}{"reconciled": true})
}

func (h *SettlementHandler) taskError(w http.ResponseWriter, err error) {
	if errors.Is(err, smw.ErrTaskNotFound) {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	h.sendError(w, http.StatusInternalServerError, err.Error())
}
