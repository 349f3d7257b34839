package settlement

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	core "starboard-backend/core/settlement"
)

// DeadlineScheduler owns one-shot in-memory timers that trigger the pipeline
// at each task's deadline. Timers do not survive restarts; Restore re-reads
// OPEN tasks on startup, and the periodic sweep covers anything the timers
// miss. The scheduler optimizes for timeliness only; exclusivity lives in
// the pipeline's conditional status update.
type DeadlineScheduler struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	store    Store
	pipeline *Pipeline
}

// NewDeadlineScheduler creates a scheduler with no timers registered.
func NewDeadlineScheduler(store Store, pipeline *Pipeline) *DeadlineScheduler {
	return &DeadlineScheduler{
		timers:   make(map[string]*time.Timer),
		store:    store,
		pipeline: pipeline,
	}
}

// Schedule registers a one-shot timer for the task. A deadline already in
// the past fires immediately; the dispatch always happens off the caller's
// goroutine so callers are never blocked on a judging pass.
func (s *DeadlineScheduler) Schedule(taskID string, deadline time.Time) {
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[taskID]; ok {
		prev.Stop()
	}
	s.timers[taskID] = time.AfterFunc(delay, func() { s.fire(taskID) })
	log.Printf("scheduled task %s for settlement in %s", taskID, delay.Round(time.Second))
}

// Cancel removes a pending timer, e.g. when a task is cancelled out-of-band
// before its deadline.
func (s *DeadlineScheduler) Cancel(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[taskID]; ok {
		timer.Stop()
		delete(s.timers, taskID)
		log.Printf("cancelled settlement timer for task %s", taskID)
	}
}

// Pending returns the number of registered timers.
func (s *DeadlineScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Restore re-registers timers for every OPEN task. Mandatory on startup:
// in-memory timers are lost with the process.
func (s *DeadlineScheduler) Restore(ctx context.Context) error {
	tasks, err := s.store.ListTasks(ctx, TaskFilter{Status: core.TaskOpen})
	if err != nil {
		return err
	}
	for _, task := range tasks {
		s.Schedule(task.ID, task.Deadline)
	}
	log.Printf("restored %d settlement timers", len(tasks))
	return nil
}

func (s *DeadlineScheduler) fire(taskID string) {
	s.mu.Lock()
	delete(s.timers, taskID)
	s.mu.Unlock()

	result, err := s.pipeline.CompleteTask(context.Background(), taskID)
	if err != nil {
		if errors.Is(err, ErrDeadlineNotReached) {
			return
		}
		log.Printf("timer-triggered settlement failed for task %s: %v", taskID, err)
		return
	}
	if result.Conflict {
		log.Printf("timer for task %s lost the judging race, no-op", taskID)
		return
	}
	log.Printf("timer settled task %s: status=%s paid=%t", taskID, result.Status, result.Paid)
}
