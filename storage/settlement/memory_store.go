package settlement

import (
	"context"
	"sort"
	"sync"

	core "starboard-backend/core/settlement"
	smw "starboard-backend/middleware/settlement"
)

// MemoryStore holds settlement state in memory with a single mutex so the
// conditional status update is atomic relative to readers. It backs the
// default driver and the test suite.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]core.Task
	submissions map[string]core.Submission
	escrows     map[string]core.EscrowTransaction
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]core.Task),
		submissions: make(map[string]core.Submission),
		escrows:     make(map[string]core.EscrowTransaction),
	}
}

// Close is a no-op for the in-memory driver.
func (s *MemoryStore) Close() {}

// CreateTask inserts a task.
func (s *MemoryStore) CreateTask(_ context.Context, task core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// GetTask returns a task by ID.
func (s *MemoryStore) GetTask(_ context.Context, id string) (core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return core.Task{}, smw.ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, oldest deadline first.
func (s *MemoryStore) ListTasks(_ context.Context, filter smw.TaskFilter) ([]core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Task
	for _, task := range s.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if !filter.DueBefore.IsZero() && !task.Deadline.Before(filter.DueBefore) {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateTaskStatusIf performs the compare-and-set status transition.
func (s *MemoryStore) UpdateTaskStatusIf(_ context.Context, id string, from, to core.TaskStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != from {
		return 0, nil
	}
	task.Status = to
	s.tasks[id] = task
	return 1, nil
}

// SetTaskStatus writes the status unconditionally.
func (s *MemoryStore) SetTaskStatus(_ context.Context, id string, status core.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return smw.ErrTaskNotFound
	}
	task.Status = status
	s.tasks[id] = task
	return nil
}

// CreateSubmission inserts a submission.
func (s *MemoryStore) CreateSubmission(_ context.Context, sub core.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
	return nil
}

// ListSubmissions returns a task's submissions, oldest first.
func (s *MemoryStore) ListSubmissions(_ context.Context, taskID string) ([]core.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Submission
	for _, sub := range s.submissions {
		if sub.TaskID == taskID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ApplyVerdict writes scores, reasoning, and the winner flag onto every
// submission of the task in one locked pass.
func (s *MemoryStore) ApplyVerdict(_ context.Context, taskID string, verdict core.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.submissions {
		if sub.TaskID != taskID {
			continue
		}
		entry, ok := verdict.Scores[sub.ID]
		if ok {
			score := entry.Score
			sub.Score = &score
			sub.AIReasoning = entry.Reasoning
		}
		sub.IsWinner = sub.ID == verdict.WinnerID
		s.submissions[id] = sub
	}
	return nil
}

// CreateEscrowTransaction inserts an escrow record.
func (s *MemoryStore) CreateEscrowTransaction(_ context.Context, tx core.EscrowTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrows[tx.ID] = tx
	return nil
}

// ListEscrowTransactions returns a task's escrow records, oldest first.
func (s *MemoryStore) ListEscrowTransactions(_ context.Context, taskID string) ([]core.EscrowTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.EscrowTransaction
	for _, tx := range s.escrows {
		if tx.TaskID == taskID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ReleaseTransaction returns the task's current RELEASE row, if any.
func (s *MemoryStore) ReleaseTransaction(_ context.Context, taskID string) (core.EscrowTransaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.escrows {
		if tx.TaskID == taskID && tx.Type == core.EscrowRelease {
			return tx, true, nil
		}
	}
	return core.EscrowTransaction{}, false, nil
}

// UpsertRelease inserts or replaces the task's single RELEASE row.
func (s *MemoryStore) UpsertRelease(_ context.Context, tx core.EscrowTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.escrows {
		if existing.TaskID == tx.TaskID && existing.Type == core.EscrowRelease {
			tx.ID = existing.ID
			s.escrows[id] = tx
			return nil
		}
	}
	s.escrows[tx.ID] = tx
	return nil
}
