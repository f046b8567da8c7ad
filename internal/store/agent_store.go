// Package store provides in-memory, mutex-guarded repositories for agents,
// tasks, and per-agent conversations.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
)

// AgentStore holds the set of agents participating in a run.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

// NewAgentStore returns an empty agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]*domain.Agent)}
}

// Save inserts or replaces an agent record.
func (s *AgentStore) Save(a *domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a.Clone()
}

// Get returns a copy of the agent with the given id.
func (s *AgentStore) Get(id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, orcherrors.NotFound("AgentStore.Get", "agent "+id)
	}
	return a.Clone(), nil
}

// UpdateStatus transitions an agent's status and touches UpdatedAt.
func (s *AgentStore) UpdateStatus(id string, status domain.AgentStatus) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, orcherrors.NotFound("AgentStore.UpdateStatus", "agent "+id)
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return a.Clone(), nil
}

// ListByWorkspace returns every agent in workspaceID, oldest first.
func (s *AgentStore) ListByWorkspace(workspaceID string) []*domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Agent
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID {
			out = append(out, a.Clone())
		}
	}
	sortAgentsByCreatedAt(out)
	return out
}

// ListChildren returns every agent whose ParentID is parentID.
func (s *AgentStore) ListChildren(parentID string) []*domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Agent
	for _, a := range s.agents {
		if a.ParentID == parentID {
			out = append(out, a.Clone())
		}
	}
	sortAgentsByCreatedAt(out)
	return out
}

// ListAll returns every agent known to the store, oldest first.
func (s *AgentStore) ListAll() []*domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.Clone())
	}
	sortAgentsByCreatedAt(out)
	return out
}

func sortAgentsByCreatedAt(agents []*domain.Agent) {
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
}
