package render

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// All renders every expression concurrently, at most limit at a time, and
// returns one URL per input. Failed, skipped or sentinel inputs yield Sentinel.
// It never returns an error.
func All(ctx context.Context, r Renderer, exprs []string, credential string, limit int, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 1
	}

	urls := make([]string, len(exprs))
	sem := semaphore.NewWeighted(int64(limit))
	var g errgroup.Group

	for i, expr := range exprs {
		urls[i] = Sentinel
		if expr == "" || expr == Sentinel {
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("render panic", "expression", expr, "panic", r)
				}
			}()
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			url, err := r.RenderToImageURL(ctx, expr, credential)
			if err != nil {
				logger.Warn("render failed", "expression", expr, "error", err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()
	return urls
}
