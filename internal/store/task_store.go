package store

import (
	"sort"
	"sync"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
)

// TaskStore holds the task graph for a run.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

// NewTaskStore returns an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*domain.Task)}
}

// Save inserts or replaces a task record.
func (s *TaskStore) Save(t *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
}

// Get returns a copy of the task with the given id.
func (s *TaskStore) Get(id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, orcherrors.NotFound("TaskStore.Get", "task "+id)
	}
	return t.Clone(), nil
}

// UpdateStatus transitions a task's status, optionally recording a
// verification verdict, and touches UpdatedAt.
func (s *TaskStore) UpdateStatus(id string, status domain.TaskStatus, verdict domain.VerificationVerdict) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, orcherrors.NotFound("TaskStore.UpdateStatus", "task "+id)
	}
	t.Status = status
	if verdict != "" {
		t.VerificationVerdict = verdict
	}
	t.UpdatedAt = time.Now()
	return t.Clone(), nil
}

// ListByWorkspace returns every task in workspaceID, oldest first.
func (s *TaskStore) ListByWorkspace(workspaceID string) []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			out = append(out, t.Clone())
		}
	}
	sortTasksByCreatedAt(out)
	return out
}

// ListByStatus returns every task currently in the given status.
func (s *TaskStore) ListByStatus(status domain.TaskStatus) []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	sortTasksByCreatedAt(out)
	return out
}

// ListByAssignee returns every task assigned to agentID.
func (s *TaskStore) ListByAssignee(agentID string) []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.AssignedTo == agentID {
			out = append(out, t.Clone())
		}
	}
	sortTasksByCreatedAt(out)
	return out
}

// FindReady returns every Pending task in workspaceID whose dependencies are
// all Completed, ready for dispatch in the next wave.
func (s *TaskStore) FindReady(workspaceID string) []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statusOf := func(id string) (domain.TaskStatus, bool) {
		t, ok := s.tasks[id]
		if !ok {
			return "", false
		}
		return t.Status, true
	}

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID && t.IsReady(statusOf) {
			out = append(out, t.Clone())
		}
	}
	sortTasksByCreatedAt(out)
	return out
}

// ListAll returns every task known to the store, oldest first.
func (s *TaskStore) ListAll() []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sortTasksByCreatedAt(out)
	return out
}

func sortTasksByCreatedAt(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
