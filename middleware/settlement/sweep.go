package settlement

import (
	"context"
	"log"
	"time"

	core "starboard-backend/core/settlement"
)

// StartDeadlineSweep launches the periodic safety net: every interval it
// re-triggers settlement for OPEN tasks whose deadline has passed. Zero
// submission tasks get cancelled inside the pipeline; duplicate triggers are
// absorbed by the status CAS, so overlap with the exact-time timers is safe.
func StartDeadlineSweep(ctx context.Context, store Store, pipeline *Pipeline, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweepRuns.WithLabelValues("deadline").Inc()
				if err := sweepDeadlines(ctx, store, pipeline); err != nil {
					log.Printf("deadline sweep error: %v", err)
				}
			}
		}
	}()
}

func sweepDeadlines(ctx context.Context, store Store, pipeline *Pipeline) error {
	tasks, err := store.ListTasks(ctx, TaskFilter{Status: core.TaskOpen, DueBefore: time.Now()})
	if err != nil {
		return err
	}
	for _, task := range tasks {
		result, err := pipeline.CompleteTask(ctx, task.ID)
		if err != nil {
			log.Printf("sweep settlement failed for task %s: %v", task.ID, err)
			continue
		}
		if !result.Conflict {
			log.Printf("sweep settled task %s: status=%s paid=%t", task.ID, result.Status, result.Paid)
		}
	}
	return nil
}

// StartPayoutReconciler launches the reconciliation sweep: every interval it
// retries the outstanding RELEASE of each PAYMENT_PENDING task and promotes
// the task to COMPLETED once the transfer goes through. This is what lets
// the system recover after the treasury is topped up or congestion clears.
func StartPayoutReconciler(ctx context.Context, store Store, pipeline *Pipeline, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweepRuns.WithLabelValues("reconcile").Inc()
				if err := reconcilePayouts(ctx, store, pipeline); err != nil {
					log.Printf("payout reconciler error: %v", err)
				}
			}
		}
	}()
}

func reconcilePayouts(ctx context.Context, store Store, pipeline *Pipeline) error {
	tasks, err := store.ListTasks(ctx, TaskFilter{Status: core.TaskPaymentPending})
	if err != nil {
		return err
	}
	for _, task := range tasks {
		result, err := pipeline.CompleteTask(ctx, task.ID)
		if err != nil {
			log.Printf("payout retry failed for task %s: %v", task.ID, err)
			continue
		}
		if result.Paid {
			log.Printf("reconciler completed payout for task %s", task.ID)
		}
	}
	return nil
}

// ReconcileOnce runs a single reconciliation pass outside the ticker, for
// the admin trigger surfaces.
func ReconcileOnce(ctx context.Context, store Store, pipeline *Pipeline) error {
	sweepRuns.WithLabelValues("reconcile").Inc()
	return reconcilePayouts(ctx, store, pipeline)
}
