package store

import (
	"sync"

	"github.com/arcway-dev/orchestra/internal/domain"
)

// ConversationStore holds each agent's message history in append order.
type ConversationStore struct {
	mu       sync.RWMutex
	messages map[string][]domain.Message
}

// NewConversationStore returns an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{messages: make(map[string][]domain.Message)}
}

// Append adds msg to agentID's conversation, stamping its Turn index.
func (s *ConversationStore) Append(agentID string, msg domain.Message) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.AgentID = agentID
	msg.Turn = len(s.messages[agentID])
	s.messages[agentID] = append(s.messages[agentID], msg.Clone())
	return msg
}

// Read returns a copy of agentID's full conversation, oldest first.
func (s *ConversationStore) Read(agentID string) []domain.Message {
	return s.Range(agentID, 0, -1)
}

// Range returns a copy of agentID's conversation between turn indices
// [from, to). A negative to means "through the end".
func (s *ConversationStore) Range(agentID string, from, to int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[agentID]
	if from < 0 {
		from = 0
	}
	if to < 0 || to > len(all) {
		to = len(all)
	}
	if from >= to {
		return nil
	}

	out := make([]domain.Message, 0, to-from)
	for _, m := range all[from:to] {
		out = append(out, m.Clone())
	}
	return out
}

// Len returns the number of messages recorded for agentID.
func (s *ConversationStore) Len(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[agentID])
}
