// Package store persists completed conversation turns and the travel data
// backing the built-in tool operations.
package store

import (
	"context"

	"github.com/voyagerhq/concierge/core"
)

// TurnStore records completed conversation turns for audit and analytics.
type TurnStore interface {
	// SaveTurn persists one completed turn.
	SaveTurn(ctx context.Context, turn *core.ConversationTurn) error
	// RecentTurns returns the latest turns for a user, newest first.
	RecentTurns(ctx context.Context, userID string, limit int) ([]core.ConversationTurn, error)
}

// Expense is one recorded travel expense.
type Expense struct {
	ID       string  `json:"expense_id"`
	UserID   string  `json:"-"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Category string  `json:"category"`
	Note     string  `json:"note,omitempty"`
}

// ExpenseStore backs the expense-related tool operations.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *Expense) error
	ListExpenses(ctx context.Context, userID string) ([]Expense, error)
}
