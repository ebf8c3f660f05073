package assemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagerhq/concierge/core"
	"github.com/voyagerhq/concierge/memory"
)

type flakyStore struct {
	history    []core.Message
	historyErr error
	summary    string
	summaryErr error
	delay      time.Duration
}

func (s *flakyStore) LoadRecent(ctx context.Context, userID string, n int) ([]core.Message, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.history, s.historyErr
}

func (s *flakyStore) Summarize(ctx context.Context, userID string) (string, error) {
	return s.summary, s.summaryErr
}

func (s *flakyStore) Append(ctx context.Context, userID string, msgs ...core.Message) error {
	return nil
}

func TestAssembleAllSourcesHealthy(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Append(context.Background(), "user-1",
		core.NewUserMessage("hi"), core.NewAssistantMessage("hello")))
	store.SetSummary("user-1", "prefers window seats")

	loc := &core.Location{Lat: 38.72, Lng: -9.14}
	a := New(store, func(o *Options) {
		o.Locator = LocatorFunc(func(ctx context.Context, userID string) (*core.Location, error) {
			return loc, nil
		})
	})

	bundle, err := a.Assemble(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, bundle.History, 2)
	assert.Equal(t, "prefers window seats", bundle.MemorySummary)
	assert.Equal(t, loc, bundle.LocationHint)
}

func TestAssembleDegradesFailedSource(t *testing.T) {
	store := &flakyStore{
		history:    []core.Message{core.NewUserMessage("hi")},
		summaryErr: errors.New("summary backend down"),
	}
	a := New(store)

	bundle, err := a.Assemble(context.Background(), "user-1")
	require.NoError(t, err, "a failed source must not fail the round")
	assert.Len(t, bundle.History, 1)
	assert.Empty(t, bundle.MemorySummary)
}

func TestAssembleTimesOutSlowSource(t *testing.T) {
	store := &flakyStore{
		history: []core.Message{core.NewUserMessage("hi")},
		summary: "never seen",
		delay:   200 * time.Millisecond,
	}
	a := New(store, func(o *Options) {
		o.SourceTimeout = 20 * time.Millisecond
	})

	start := time.Now()
	bundle, err := a.Assemble(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, bundle.History, "slow history source degrades to empty")
	assert.Equal(t, "never seen", bundle.MemorySummary, "healthy source still contributes")
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestAssembleNoLocator(t *testing.T) {
	a := New(memory.NewInMemoryStore())
	bundle, err := a.Assemble(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, bundle.LocationHint)
}

func TestAssembleCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New(memory.NewInMemoryStore())
	_, err := a.Assemble(ctx, "user-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBundleSnapshot(t *testing.T) {
	loc := &core.Location{Lat: 1, Lng: 2}
	b := Bundle{LocationHint: loc, MemorySummary: "likes trains"}
	snap := b.Snapshot()
	assert.Equal(t, loc, snap.LocationHint)
	assert.Equal(t, "likes trains", snap.MemorySummary)
}
