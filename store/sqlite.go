package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voyagerhq/concierge/core"
)

// SQLiteStore implements TurnStore and ExpenseStore on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			user_message TEXT NOT NULL,
			assistant_message TEXT NOT NULL,
			tool_results TEXT,
			context_snapshot TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			expense_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			category TEXT NOT NULL,
			note TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTurn persists one completed conversation turn.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn *core.ConversationTurn) error {
	toolResults, _ := json.Marshal(turn.ToolCallsExecuted)
	snapshot, _ := json.Marshal(turn.ContextSnapshot)
	metadata, _ := json.Marshal(turn.Metadata)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, user_id, session_id, user_message, assistant_message, tool_results, context_snapshot, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.SessionID, turn.UserMessage, turn.FinalAssistantMessage,
		string(toolResults), string(snapshot), string(metadata), turn.CreatedAt)
	return err
}

// RecentTurns returns the latest turns for a user, newest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, userID string, limit int) ([]core.ConversationTurn, error) {
	query := `SELECT turn_id, user_id, session_id, user_message, assistant_message, tool_results, context_snapshot, metadata, created_at
		FROM turns WHERE user_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []core.ConversationTurn
	for rows.Next() {
		var turn core.ConversationTurn
		var toolResults, snapshot, metadata sql.NullString
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.SessionID, &turn.UserMessage,
			&turn.FinalAssistantMessage, &toolResults, &snapshot, &metadata, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if toolResults.Valid && toolResults.String != "" {
			_ = json.Unmarshal([]byte(toolResults.String), &turn.ToolCallsExecuted)
		}
		if snapshot.Valid && snapshot.String != "" {
			_ = json.Unmarshal([]byte(snapshot.String), &turn.ContextSnapshot)
		}
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &turn.Metadata)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// CreateExpense records a new expense. The ID is assigned when empty.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *Expense) error {
	if expense.ID == "" {
		expense.ID = core.NewID()
	}
	var note sql.NullString
	if expense.Note != "" {
		note = sql.NullString{String: expense.Note, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (expense_id, user_id, amount, currency, category, note) VALUES (?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.UserID, expense.Amount, expense.Currency, expense.Category, note)
	return err
}

// ListExpenses returns a user's expenses in insertion order.
func (s *SQLiteStore) ListExpenses(ctx context.Context, userID string) ([]Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT expense_id, user_id, amount, currency, category, note FROM expenses WHERE user_id = ? ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		var note sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Currency, &e.Category, &note); err != nil {
			return nil, err
		}
		if note.Valid {
			e.Note = note.String
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}
