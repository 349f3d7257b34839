package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

// MCPServer wraps the mcp-go server with the settlement pipeline, exposing
// it to AI-agent operator tooling. Every write tool routes through the same
// conditional-update pipeline as the timers and sweeps, so redundant agent
// calls are harmless.
type MCPServer struct {
	mcpServer *server.MCPServer
	store     smw.Store
	pipeline  *smw.Pipeline
	service   *smw.TaskService
	escrow    *core.EscrowEngine
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(store smw.Store, pipeline *smw.Pipeline, service *smw.TaskService, escrow *core.EscrowEngine) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Starboard Settlement Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		store:     store,
		pipeline:  pipeline,
		service:   service,
		escrow:    escrow,
	}

	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	s.registerListTasksTool()
	s.registerGetTaskTool()
	s.registerTaskStatusTool()
	s.registerCompleteTaskTool()
	s.registerCancelTaskTool()
	s.registerReconcileTool()
	s.registerVerifyDepositTool()
}

// registerListTasksTool creates a tool for listing tasks
func (s *MCPServer) registerListTasksTool() {
	tool := mcp.NewTool("list_tasks",
		mcp.WithDescription("List settlement tasks with optional status filtering"),
		mcp.WithString("status", mcp.Description("Filter by task status (OPEN, JUDGING, PAYMENT_PENDING, COMPLETED, CANCELLED)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks to return")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		filter := smw.TaskFilter{}
		if status, ok := args["status"].(string); ok {
			filter.Status = core.TaskStatus(status)
		}
		if limit, ok := args["limit"].(float64); ok {
			filter.Limit = int(limit)
		}

		tasks, err := s.store.ListTasks(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
		}

		return jsonResult(map[string]interface{}{"tasks": tasks, "total_count": len(tasks)})
	})
}

// registerGetTaskTool creates a tool for getting a specific task
func (s *MCPServer) registerGetTaskTool() {
	tool := mcp.NewTool("get_task",
		mcp.WithDescription("Get details of a specific task including its submissions"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}
		subs, err := s.store.ListSubmissions(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list submissions: %v", err)), nil
		}

		return jsonResult(map[string]interface{}{"task": task, "submissions": subs})
	})
}

// registerTaskStatusTool creates a tool for the settlement status of a task
func (s *MCPServer) registerTaskStatusTool() {
	tool := mcp.NewTool("task_status",
		mcp.WithDescription("Get settlement status of a task including escrow history"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}
		escrows, err := s.store.ListEscrowTransactions(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list escrow transactions: %v", err)), nil
		}

		paid := false
		for _, tx := range escrows {
			if tx.Type == core.EscrowRelease && tx.Status == core.EscrowConfirmed {
				paid = true
			}
		}

		return jsonResult(map[string]interface{}{
			"task_id":  task.ID,
			"status":   task.Status,
			"deadline": task.Deadline,
			"reward":   task.Reward,
			"paid":     paid,
			"escrow":   escrows,
		})
	})
}

// registerCompleteTaskTool creates a tool that triggers the settlement pass
func (s *MCPServer) registerCompleteTaskTool() {
	tool := mcp.NewTool("complete_task",
		mcp.WithDescription("Run the settlement pass for a task (judge submissions and pay the winner). Idempotent; concurrent triggers report a conflict."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to settle")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := s.pipeline.CompleteTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Settlement failed: %v", err)), nil
		}

		return jsonResult(result)
	})
}

// registerCancelTaskTool creates a tool for out-of-band task cancellation
func (s *MCPServer) registerCancelTaskTool() {
	tool := mcp.NewTool("cancel_task",
		mcp.WithDescription("Cancel an OPEN task before its deadline and remove its settlement timer"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to cancel")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		cancelled, err := s.service.CancelTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Cancellation failed: %v", err)), nil
		}
		if !cancelled {
			return mcp.NewToolResultError("Task is no longer open"), nil
		}

		return jsonResult(map[string]interface{}{"task_id": taskID, "status": core.TaskCancelled})
	})
}

// registerReconcileTool creates a tool that retries outstanding payouts
func (s *MCPServer) registerReconcileTool() {
	tool := mcp.NewTool("reconcile_payments",
		mcp.WithDescription("Retry the outstanding payout of every PAYMENT_PENDING task"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := smw.ReconcileOnce(ctx, s.store, s.pipeline); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Reconciliation failed: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"reconciled": true})
	})
}

// registerVerifyDepositTool creates a tool for checking a deposit proof
func (s *MCPServer) registerVerifyDepositTool() {
	tool := mcp.NewTool("verify_deposit",
		mcp.WithDescription("Verify that a ledger transaction deposits the expected amount into the treasury"),
		mcp.WithString("signature", mcp.Required(), mcp.Description("Ledger transaction signature")),
		mcp.WithString("expected_amount", mcp.Required(), mcp.Description("Expected deposit amount in smallest units")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		signature, err := request.RequireString("signature")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rawAmount, err := request.RequireString("expected_amount")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		expected, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid amount: %v", err)), nil
		}

		if err := s.escrow.VerifyDeposit(ctx, signature, expected); err != nil {
			return jsonResult(map[string]interface{}{"verified": false, "reason": err.Error()})
		}
		return jsonResult(map[string]interface{}{"verified": true})
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
