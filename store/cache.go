package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/metrics"
	"github.com/thushara2679/trading-alert/model/candle"
)

const (
	// DefaultValidity is how long a snapshot is served without refetching.
	DefaultValidity = 15 * time.Minute
	// DefaultFetchAttempts and DefaultFetchBackoff bound a refetch: the pause
	// starts at the backoff and doubles, so 3 attempts wait 1s then 2s.
	DefaultFetchAttempts = 3
	DefaultFetchBackoff  = time.Second
)

var errNoData = errors.New("store: fetch returned no bars")

// CachedFetcher serves history from snapshots, refetching through next once a
// snapshot is older than the validity window. When a refetch fails, the old
// snapshot is served instead. Requests whose refetch fails are remembered
// for RetryFailed.
type CachedFetcher struct {
	next     adapter.Fetcher
	store    Store
	validity time.Duration
	attempts int
	backoff  time.Duration
	now      func() time.Time
	log      *zap.Logger

	sf singleflight.Group

	mu     sync.Mutex
	failed map[string]adapter.Request
}

type CacheOption func(*CachedFetcher)

func WithValidity(d time.Duration) CacheOption { return func(c *CachedFetcher) { c.validity = d } }

// WithFetchRetry sets how many times a refetch is tried before the request
// is marked failed, and the first pause between tries.
func WithFetchRetry(attempts int, initial time.Duration) CacheOption {
	return func(c *CachedFetcher) { c.attempts, c.backoff = attempts, initial }
}

func WithClock(now func() time.Time) CacheOption { return func(c *CachedFetcher) { c.now = now } }

func WithLogger(l *zap.Logger) CacheOption { return func(c *CachedFetcher) { c.log = l } }

func NewCachedFetcher(next adapter.Fetcher, store Store, opts ...CacheOption) *CachedFetcher {
	c := &CachedFetcher{
		next:     next,
		store:    store,
		validity: DefaultValidity,
		attempts: DefaultFetchAttempts,
		backoff:  DefaultFetchBackoff,
		now:      time.Now,
		failed:   make(map[string]adapter.Request),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("store")
	}
	return c
}

var _ adapter.Fetcher = (*CachedFetcher)(nil)

func (c *CachedFetcher) GetHistory(ctx context.Context, req adapter.Request) ([]candle.Bar, error) {
	key := req.Key()

	cached, at, loadErr := c.store.Load(key)
	if loadErr != nil && !errors.Is(loadErr, ErrNotFound) {
		c.log.Warn("snapshot unreadable", zap.String("key", key), zap.Error(loadErr))
	}
	if loadErr == nil && c.now().Sub(at) < c.validity {
		metrics.CacheTotal.WithLabelValues("fresh").Inc()
		return cached, nil
	}

	bars, err := c.refresh(ctx, req)
	if err == nil && len(bars) > 0 {
		metrics.CacheTotal.WithLabelValues("miss").Inc()
		return bars, nil
	}

	if loadErr == nil {
		metrics.CacheTotal.WithLabelValues("stale").Inc()
		c.log.Info("serving stale snapshot",
			zap.String("key", key), zap.Time("written", at), zap.Error(err))
		return cached, nil
	}
	return bars, err
}

// refresh fetches through next, collapsing concurrent identical requests,
// and records the outcome.
func (c *CachedFetcher) refresh(ctx context.Context, req adapter.Request) ([]candle.Bar, error) {
	key := req.Key()
	v, err, _ := c.sf.Do(key, func() (any, error) {
		bars, err := c.fetch(ctx, req)
		if err != nil || len(bars) == 0 {
			c.markFailed(req)
			return bars, err
		}
		if serr := c.store.Save(key, bars); serr != nil {
			c.log.Warn("snapshot save failed", zap.String("key", key), zap.Error(serr))
		}
		c.clearFailed(key)
		return bars, nil
	})
	bars, _ := v.([]candle.Bar)
	return bars, err
}

// fetch calls next until it yields bars or the attempts run out. An empty
// result counts as a failed attempt.
func (c *CachedFetcher) fetch(ctx context.Context, req adapter.Request) ([]candle.Bar, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval: c.backoff,
		Multiplier:      2,
		MaxInterval:     time.Minute,
	}
	tries := 0
	bars, err := backoff.Retry(ctx, func() ([]candle.Bar, error) {
		tries++
		bars, err := c.next.GetHistory(ctx, req)
		if err == nil && len(bars) == 0 {
			err = errNoData
		}
		if err != nil {
			c.log.Debug("history fetch attempt failed",
				zap.String("key", req.Key()), zap.Int("attempt", tries), zap.Error(err))
		}
		return bars, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(max(c.attempts, 1))))
	if errors.Is(err, errNoData) {
		return nil, nil
	}
	return bars, err
}

// Failed returns the requests whose last refresh produced no data, ordered by key.
func (c *CachedFetcher) Failed() []adapter.Request {
	c.mu.Lock()
	out := make([]adapter.Request, 0, len(c.failed))
	for _, r := range c.failed {
		out = append(out, r)
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b adapter.Request) int { return strings.Compare(a.Key(), b.Key()) })
	return out
}

// RetryFailed refetches every failed request, at most limit at a time, and
// returns what each produced. Successes leave the failed set.
func (c *CachedFetcher) RetryFailed(ctx context.Context, limit int) map[string][]candle.Bar {
	reqs := c.Failed()
	if len(reqs) == 0 {
		return map[string][]candle.Bar{}
	}
	c.log.Info("retrying failed requests", zap.Int("count", len(reqs)))
	return adapter.FetchBatch(ctx, adapter.FetcherFunc(c.refresh), reqs, limit)
}

func (c *CachedFetcher) markFailed(req adapter.Request) {
	c.mu.Lock()
	c.failed[req.Key()] = req
	c.mu.Unlock()
}

func (c *CachedFetcher) clearFailed(key string) {
	c.mu.Lock()
	delete(c.failed, key)
	c.mu.Unlock()
}
