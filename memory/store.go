package memory

import (
	"context"

	"github.com/voyagerhq/concierge/core"
)

// Store is the long-term conversation memory collaborator. Implementations
// live outside the engine (a service, a database); the assembler only relies
// on this contract and tolerates failures by omitting the enrichment.
type Store interface {
	// LoadRecent returns up to n most recent messages for the user, oldest
	// first.
	LoadRecent(ctx context.Context, userID string, n int) ([]core.Message, error)

	// Summarize returns a short long-term-memory summary for the user, or
	// "" when none exists.
	Summarize(ctx context.Context, userID string) (string, error)

	// Append records messages from a completed round so future sessions see
	// them.
	Append(ctx context.Context, userID string, msgs ...core.Message) error
}
