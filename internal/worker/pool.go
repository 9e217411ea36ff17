// Package worker runs sweeps on a schedule and fans their per-ticket work
// out over a bounded pool.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every item with at most limit calls in flight. The
// first error cancels the context handed to the remaining calls and is
// returned; callers that isolate per-item failures return nil from fn.
func ForEach[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) error {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
