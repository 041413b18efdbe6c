package adapter

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/thushara2679/trading-alert/model/candle"
)

// DefaultBatchLimit is how many fetches FetchBatch runs at once by default.
const DefaultBatchLimit = 5

// FetchBatch runs every request through f, at most limit concurrently, and
// returns the bars keyed by Request.Key. A failed request leaves its key with
// no bars and never cancels the others; f is expected to log its own failures.
func FetchBatch(ctx context.Context, f Fetcher, reqs []Request, limit int) map[string][]candle.Bar {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	var (
		mu  sync.Mutex
		out = make(map[string][]candle.Bar, len(reqs))
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, req := range reqs {
		g.Go(func() error {
			bars, err := f.GetHistory(ctx, req)
			if err != nil {
				bars = nil
			}
			mu.Lock()
			out[req.Key()] = bars
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
