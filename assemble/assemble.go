// Package assemble gathers the per-round context bundle: recent history,
// a location hint and a memory summary. Enrichment sources are queried
// concurrently with independent timeouts; a failed or slow source degrades
// that part of the bundle instead of failing the round.
package assemble

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voyagerhq/concierge/core"
	"github.com/voyagerhq/concierge/logging"
	"github.com/voyagerhq/concierge/memory"
)

// DefaultSourceTimeout bounds each individual enrichment call.
const DefaultSourceTimeout = 500 * time.Millisecond

// Locator resolves a coarse location hint for a user. Implementations may
// back onto a device report, an IP lookup or a stored preference.
type Locator interface {
	Locate(ctx context.Context, userID string) (*core.Location, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, userID string) (*core.Location, error)

// Locate implements Locator.
func (f LocatorFunc) Locate(ctx context.Context, userID string) (*core.Location, error) {
	return f(ctx, userID)
}

// Bundle is the assembled per-round context handed to the orchestrator.
// Any field may be zero when its source degraded.
type Bundle struct {
	History       []core.Message
	LocationHint  *core.Location
	MemorySummary string
}

// Snapshot projects the bundle into the persisted turn snapshot.
func (b Bundle) Snapshot() core.ContextSnapshot {
	return core.ContextSnapshot{
		LocationHint:  b.LocationHint,
		MemorySummary: b.MemorySummary,
	}
}

// Options configure the assembler.
type Options struct {
	Logger        logging.Logger
	Locator       Locator
	HistoryLimit  int
	SourceTimeout time.Duration
}

// Assembler fans out to the enrichment sources for one round.
type Assembler struct {
	store  memory.Store
	opts   Options
	logger logging.Logger
}

// New constructs an Assembler over the given memory store.
func New(store memory.Store, optFns ...func(o *Options)) *Assembler {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		HistoryLimit:  core.DefaultHistoryCap,
		SourceTimeout: DefaultSourceTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Assembler{store: store, opts: opts, logger: opts.Logger}
}

// Assemble gathers the bundle for one user. Sources run concurrently, each
// under its own timeout; errors are logged and degrade the corresponding
// field to its zero value. Assemble itself never returns an error unless
// the parent context is already done.
func (a *Assembler) Assemble(ctx context.Context, userID string) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, err
	}

	var bundle Bundle
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		history, err := a.withTimeout(gctx, func(sctx context.Context) (any, error) {
			return a.store.LoadRecent(sctx, userID, a.opts.HistoryLimit)
		})
		if err != nil {
			a.logger.Warn("assemble.history_degraded", "user_id", userID, "error", err.Error())
			return nil
		}
		bundle.History = history.([]core.Message)
		return nil
	})

	g.Go(func() error {
		summary, err := a.withTimeout(gctx, func(sctx context.Context) (any, error) {
			return a.store.Summarize(sctx, userID)
		})
		if err != nil {
			a.logger.Warn("assemble.summary_degraded", "user_id", userID, "error", err.Error())
			return nil
		}
		bundle.MemorySummary = summary.(string)
		return nil
	})

	if a.opts.Locator != nil {
		g.Go(func() error {
			loc, err := a.withTimeout(gctx, func(sctx context.Context) (any, error) {
				return a.opts.Locator.Locate(sctx, userID)
			})
			if err != nil {
				a.logger.Warn("assemble.location_degraded", "user_id", userID, "error", err.Error())
				return nil
			}
			bundle.LocationHint = loc.(*core.Location)
			return nil
		})
	}

	// Goroutines only return nil; Wait is for synchronization, not errors.
	_ = g.Wait()
	return bundle, ctx.Err()
}

func (a *Assembler) withTimeout(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	sctx, cancel := context.WithTimeout(ctx, a.opts.SourceTimeout)
	defer cancel()

	type outcome struct {
		v   any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(sctx)
		ch <- outcome{v, err}
	}()

	select {
	case out := <-ch:
		return out.v, out.err
	case <-sctx.Done():
		return nil, sctx.Err()
	}
}
