package memory

import (
	"context"
	"sync"

	"github.com/voyagerhq/concierge/core"
)

// InMemoryStore is a volatile Store keeping per-user message logs and
// summaries in process-local maps. Safe for concurrent access; best suited
// for tests and single-node demo deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	messages  map[string][]core.Message
	summaries map[string]string
}

// NewInMemoryStore constructs an empty in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages:  make(map[string][]core.Message),
		summaries: make(map[string]string),
	}
}

// LoadRecent returns a copy of the last n messages for the user, oldest
// first.
func (s *InMemoryStore) LoadRecent(_ context.Context, userID string, n int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[userID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Summarize returns the stored summary for the user, if any.
func (s *InMemoryStore) Summarize(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[userID], nil
}

// Append records messages at the end of the user's log.
func (s *InMemoryStore) Append(_ context.Context, userID string, msgs ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[userID] = append(s.messages[userID], msgs...)
	return nil
}

// SetSummary stores a long-term summary for the user. Exposed so tests and
// demo wiring can seed memory state.
func (s *InMemoryStore) SetSummary(userID, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[userID] = summary
}
