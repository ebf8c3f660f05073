package store

import (
	"context"
	"sync"

	"github.com/voyagerhq/concierge/core"
)

// InMemoryStore implements TurnStore and ExpenseStore with in-process maps.
// Intended for tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	turns    map[string][]core.ConversationTurn
	expenses map[string][]Expense
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:    make(map[string][]core.ConversationTurn),
		expenses: make(map[string][]Expense),
	}
}

// SaveTurn implements TurnStore.
func (s *InMemoryStore) SaveTurn(_ context.Context, turn *core.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.UserID] = append(s.turns[turn.UserID], *turn)
	return nil
}

// RecentTurns implements TurnStore, newest first.
func (s *InMemoryStore) RecentTurns(_ context.Context, userID string, limit int) ([]core.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.turns[userID]
	out := make([]core.ConversationTurn, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CreateExpense implements ExpenseStore.
func (s *InMemoryStore) CreateExpense(_ context.Context, expense *Expense) error {
	if expense.ID == "" {
		expense.ID = core.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[expense.UserID] = append(s.expenses[expense.UserID], *expense)
	return nil
}

// ListExpenses implements ExpenseStore in insertion order.
func (s *InMemoryStore) ListExpenses(_ context.Context, userID string) ([]Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Expense, len(s.expenses[userID]))
	copy(out, s.expenses[userID])
	return out, nil
}
