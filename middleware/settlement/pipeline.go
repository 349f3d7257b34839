package settlement

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	core "starboard-backend/core/settlement"
)

// CompletionResult is what a trigger observes after CompleteTask returns.
// Conflict means the call was a redundant trigger that lost the judging race
// and had no side effects.
type CompletionResult struct {
	TaskID   string          `json:"task_id"`
	Status   core.TaskStatus `json:"status"`
	WinnerID string          `json:"winner_id,omitempty"`
	Paid     bool            `json:"paid"`
	Conflict bool            `json:"conflict"`
}

// Pipeline runs the settlement pass for a task: the exclusive OPEN->JUDGING
// transition, judging, payout, and the terminal status write. It is safe to
// trigger redundantly from timers, sweeps, HTTP, and MCP; exclusivity comes
// from the store's conditional status update, never from in-memory state.
type Pipeline struct {
	store  Store
	judge  *core.JudgingEngine
	escrow *core.EscrowEngine
}

// NewPipeline creates a settlement pipeline.
func NewPipeline(store Store, judge *core.JudgingEngine, escrow *core.EscrowEngine) *Pipeline {
	return &Pipeline{store: store, judge: judge, escrow: escrow}
}

// CompleteTask runs the full settlement pass for a task. Redundant calls are
// no-ops: terminal tasks report their current state, and concurrent callers
// that lose the OPEN->JUDGING race report Conflict.
func (p *Pipeline) CompleteTask(ctx context.Context, taskID string) (CompletionResult, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}

	switch task.Status {
	case core.TaskCompleted, core.TaskCancelled:
		return p.describeTerminal(ctx, task)
	case core.TaskJudging:
		// A pass is already in flight somewhere.
		judgingConflicts.Inc()
		return CompletionResult{TaskID: task.ID, Status: task.Status, Conflict: true}, nil
	case core.TaskPaymentPending:
		return p.settlePending(ctx, task)
	}

	if time.Now().Before(task.Deadline) {
		return CompletionResult{}, ErrDeadlineNotReached
	}

	subs, err := p.store.ListSubmissions(ctx, task.ID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("list submissions: %w", err)
	}

	// No entries by the deadline: the task is cancelled, never judged.
	if len(subs) == 0 {
		rows, err := p.store.UpdateTaskStatusIf(ctx, task.ID, core.TaskOpen, core.TaskCancelled)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("cancel task: %w", err)
		}
		if rows == 0 {
			judgingConflicts.Inc()
			return CompletionResult{TaskID: task.ID, Status: task.Status, Conflict: true}, nil
		}
		judgingPasses.WithLabelValues("cancelled").Inc()
		log.Printf("task %s cancelled: deadline passed with no submissions", task.ID)
		return CompletionResult{TaskID: task.ID, Status: core.TaskCancelled}, nil
	}

	rows, err := p.store.UpdateTaskStatusIf(ctx, task.ID, core.TaskOpen, core.TaskJudging)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("begin judging: %w", err)
	}
	if rows == 0 {
		judgingConflicts.Inc()
		return CompletionResult{TaskID: task.ID, Status: task.Status, Conflict: true}, nil
	}

	started := time.Now()
	result, err := p.runJudgingPass(ctx, task, subs)
	if err != nil {
		// Revert so the sweep can retry. The payout idempotence guard in
		// the escrow engine keeps a re-run from paying twice.
		if rerr := p.store.SetTaskStatus(context.WithoutCancel(ctx), task.ID, core.TaskOpen); rerr != nil {
			log.Printf("failed to revert task %s to OPEN after error: %v", task.ID, rerr)
		}
		return CompletionResult{}, err
	}
	judgingDuration.Observe(time.Since(started).Seconds())
	judgingPasses.WithLabelValues(strings.ToLower(string(result.Status))).Inc()
	return result, nil
}

// runJudgingPass executes judging and payout after the CAS has been won.
// Only store failures surface as errors; judging and payout degrade locally.
func (p *Pipeline) runJudgingPass(ctx context.Context, task core.Task, subs []core.Submission) (CompletionResult, error) {
	verdict := p.judge.Judge(ctx, task, subs)
	if verdict.WinnerID == "" {
		return CompletionResult{}, fmt.Errorf("judging yielded no winner for task %s", task.ID)
	}
	if verdict.Fallback {
		judgingFallbacks.Inc()
	}

	if err := p.store.ApplyVerdict(ctx, task.ID, verdict); err != nil {
		return CompletionResult{}, fmt.Errorf("persist verdict: %w", err)
	}

	var winner core.Submission
	for _, sub := range subs {
		if sub.ID == verdict.WinnerID {
			winner = sub
			break
		}
	}
	log.Printf("task %s judged: winner %s (submitter %s)", task.ID, winner.ID, winner.SubmitterID)

	payout, err := p.escrow.Payout(ctx, task, winner.SubmitterWallet)
	if err != nil {
		return CompletionResult{}, err
	}
	payoutOutcomes.WithLabelValues(strings.ToLower(string(payout.Outcome))).Inc()

	status := core.TaskPaymentPending
	if payout.Settled() {
		status = core.TaskCompleted
	}
	if err := p.store.SetTaskStatus(ctx, task.ID, status); err != nil {
		return CompletionResult{}, fmt.Errorf("record terminal status: %w", err)
	}
	return CompletionResult{
		TaskID:   task.ID,
		Status:   status,
		WinnerID: winner.ID,
		Paid:     payout.Settled(),
	}, nil
}

// settlePending retries the outstanding payout of a PAYMENT_PENDING task and
// promotes it to COMPLETED on success. The RELEASE row is updated in place,
// so retries never duplicate ledger transfers.
func (p *Pipeline) settlePending(ctx context.Context, task core.Task) (CompletionResult, error) {
	winner, err := p.winnerOf(ctx, task.ID)
	if err != nil {
		return CompletionResult{}, err
	}

	payout, err := p.escrow.Payout(ctx, task, winner.SubmitterWallet)
	if err != nil {
		return CompletionResult{}, err
	}
	payoutOutcomes.WithLabelValues(strings.ToLower(string(payout.Outcome))).Inc()

	if !payout.Settled() {
		return CompletionResult{TaskID: task.ID, Status: core.TaskPaymentPending, WinnerID: winner.ID}, nil
	}
	if err := p.store.SetTaskStatus(ctx, task.ID, core.TaskCompleted); err != nil {
		return CompletionResult{}, fmt.Errorf("record completed status: %w", err)
	}
	log.Printf("task %s promoted to COMPLETED after payout retry", task.ID)
	return CompletionResult{TaskID: task.ID, Status: core.TaskCompleted, WinnerID: winner.ID, Paid: true}, nil
}

// describeTerminal reports an already-settled task without side effects.
func (p *Pipeline) describeTerminal(ctx context.Context, task core.Task) (CompletionResult, error) {
	result := CompletionResult{TaskID: task.ID, Status: task.Status}
	if task.Status == core.TaskCancelled {
		return result, nil
	}
	if winner, err := p.winnerOf(ctx, task.ID); err == nil {
		result.WinnerID = winner.ID
	}
	release, found, err := p.store.ReleaseTransaction(ctx, task.ID)
	if err == nil && found && release.Status == core.EscrowConfirmed {
		result.Paid = true
	}
	return result, nil
}

func (p *Pipeline) winnerOf(ctx context.Context, taskID string) (core.Submission, error) {
	subs, err := p.store.ListSubmissions(ctx, taskID)
	if err != nil {
		return core.Submission{}, fmt.Errorf("list submissions: %w", err)
	}
	for _, sub := range subs {
		if sub.IsWinner {
			return sub, nil
		}
	}
	return core.Submission{}, ErrSubmissionNotFound
}
