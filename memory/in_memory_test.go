package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagerhq/concierge/core"
)

func TestAppendAndLoadRecent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "user-1", core.NewUserMessage(fmt.Sprintf("msg %d", i))))
	}

	msgs, err := s.LoadRecent(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 2", msgs[0].Text, "oldest first within the window")
	assert.Equal(t, "msg 4", msgs[2].Text)

	all, err := s.LoadRecent(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5, "non-positive n returns everything")
}

func TestLoadRecentIsolatesUsers(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "user-1", core.NewUserMessage("mine")))

	msgs, err := s.LoadRecent(ctx, "user-2", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestLoadRecentReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "user-1", core.NewUserMessage("original")))

	msgs, _ := s.LoadRecent(ctx, "user-1", 10)
	msgs[0].Text = "mutated"

	again, _ := s.LoadRecent(ctx, "user-1", 10)
	assert.Equal(t, "original", again[0].Text)
}

func TestSummarize(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	summary, err := s.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, summary)

	s.SetSummary("user-1", "prefers window seats")
	summary, err = s.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "prefers window seats", summary)
}
