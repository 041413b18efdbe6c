package livefeed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/metrics"
	"github.com/thushara2679/trading-alert/model/candle"
)

const (
	DefaultTick       = time.Second
	DefaultRetryLimit = 50
	DefaultRetryDelay = 100 * time.Millisecond
)

var (
	// ErrSymbolNotFound is returned by Subscribe when symbol search has no hits.
	ErrSymbolNotFound = errors.New("livefeed: symbol not found")
	// ErrClosed is returned by calls on a closed Manager.
	ErrClosed = errors.New("livefeed: manager closed")
	// ErrUnknownSubscription is returned by Attach for a removed subscription.
	ErrUnknownSubscription = errors.New("livefeed: unknown subscription")
)

// Manager owns the live subscription registry and the shared poll loop.
//
// One mutex guards the registry and every Subscription's scheduling fields.
// It is held for map reads and writes only; fetches and callbacks run outside
// it, so polls of different subscriptions proceed concurrently.
type Manager struct {
	fetcher  adapter.Fetcher
	searcher adapter.Searcher
	tick     time.Duration
	queue    int
	log      *zap.Logger

	root   context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
	polls  sync.WaitGroup

	mu         sync.Mutex
	subs       map[Key]*Subscription
	retryLimit int
	retryDelay time.Duration
	stopLoop   context.CancelFunc // nil while no loop runs
	closed     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithTick sets the poll loop period.
func WithTick(d time.Duration) Option { return func(m *Manager) { m.tick = d } }

// WithRetry sets how many times a due subscription is re-polled within one
// cycle, and the fixed pause between attempts.
func WithRetry(limit int, delay time.Duration) Option {
	return func(m *Manager) { m.retryLimit, m.retryDelay = limit, delay }
}

// WithQueueSize sets each consumer's delivery buffer.
func WithQueueSize(n int) Option { return func(m *Manager) { m.queue = n } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

// New creates a Manager. searcher may be nil, which skips the existence check
// in Subscribe.
func New(fetcher adapter.Fetcher, searcher adapter.Searcher, opts ...Option) *Manager {
	m := &Manager{
		fetcher:    fetcher,
		searcher:   searcher,
		tick:       DefaultTick,
		queue:      DefaultQueueSize,
		subs:       make(map[Key]*Subscription),
		retryLimit: DefaultRetryLimit,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Named("livefeed")
	}
	m.root, m.cancel = context.WithCancel(context.Background())
	return m
}

// SetRetry changes the retry policy for polls started after the call.
func (m *Manager) SetRetry(limit int, delay time.Duration) {
	m.mu.Lock()
	m.retryLimit, m.retryDelay = limit, delay
	m.mu.Unlock()
}

// Subscribe registers symbol/exchange/interval for polling, or returns the
// existing Subscription for the same triple.
//
// A symbol search with zero results rejects the call with ErrSymbolNotFound.
// Any other search outcome, including a failed search, lets it proceed. The
// starting point is seeded from a two-bar fetch.
func (m *Manager) Subscribe(ctx context.Context, symbol, exchange string, interval candle.Interval) (*Subscription, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("livefeed: unknown interval %q", interval)
	}
	key := Key{Symbol: symbol, Exchange: exchange, Interval: interval}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := m.subs[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	if err := m.checkExists(ctx, symbol, exchange); err != nil {
		return nil, err
	}

	var seed int64
	seedSub := &Subscription{key: key}
	if bars, err := m.fetcher.GetHistory(ctx, seedSub.request(2)); err == nil {
		if b, ok := closedBar(bars); ok {
			seed = b.Timestamp
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.subs[key]; ok {
		return s, nil
	}

	s := newSubscription(key, seed, firstDue(seed, interval.Duration(), time.Now()))
	m.subs[key] = s
	metrics.Subscriptions.Inc()
	if m.stopLoop == nil {
		m.startLoop()
	}

	m.log.Info("subscribed",
		zap.String("subscription", key.String()),
		zap.Int64("last_updated", seed),
		zap.Time("next_due", s.nextDue))
	return s, nil
}

func (m *Manager) checkExists(ctx context.Context, symbol, exchange string) error {
	if m.searcher == nil {
		return nil
	}
	hits, err := m.searcher.SearchSymbol(ctx, symbol, exchange)
	if err != nil {
		m.log.Warn("symbol search failed, subscribing anyway",
			zap.String("symbol", symbol), zap.String("exchange", exchange), zap.Error(err))
		return nil
	}
	if len(hits) == 0 {
		return fmt.Errorf("%w: %s:%s", ErrSymbolNotFound, exchange, symbol)
	}
	return nil
}

// Unsubscribe removes sub and stops its consumers. The poll loop stops when
// the registry becomes empty. An unknown or already removed sub is a no-op.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	if cur, ok := m.subs[sub.key]; !ok || cur != sub {
		m.mu.Unlock()
		return
	}
	delete(m.subs, sub.key)
	sub.active = false
	consumers := m.takeConsumers(sub)
	if len(m.subs) == 0 && m.stopLoop != nil {
		m.stopLoop()
		m.stopLoop = nil
	}
	m.mu.Unlock()

	metrics.Subscriptions.Dec()
	for _, c := range consumers {
		c.stop()
	}
	m.log.Info("unsubscribed", zap.String("subscription", sub.key.String()))
}

// Attach adds cb as a consumer of sub.
func (m *Manager) Attach(sub *Subscription, cb Callback) (*Consumer, error) {
	if sub == nil || cb == nil {
		return nil, errors.New("livefeed: attach needs a subscription and a callback")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if !sub.active {
		return nil, ErrUnknownSubscription
	}
	c := newConsumer(sub, cb, m.queue, m.log)
	sub.consumers[c] = struct{}{}
	metrics.Consumers.Inc()
	return c, nil
}

// Detach stops c. No callback runs for c after Detach returns, other than one
// already executing.
func (m *Manager) Detach(c *Consumer) {
	if c == nil {
		return
	}
	m.mu.Lock()
	if _, ok := c.sub.consumers[c]; ok {
		delete(c.sub.consumers, c)
		metrics.Consumers.Dec()
	}
	m.mu.Unlock()
	c.stop()
}

// Subscriptions returns the active subscriptions ordered by key.
func (m *Manager) Subscriptions() []*Subscription {
	m.mu.Lock()
	out := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b *Subscription) int {
		return strings.Compare(a.key.String(), b.key.String())
	})
	return out
}

// Close stops the poll loop, waits for in-flight polls and stops every
// consumer. Later calls return ErrClosed from Subscribe and Attach.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	m.stopLoop = nil

	var consumers []*Consumer
	for k, s := range m.subs {
		s.active = false
		consumers = append(consumers, m.takeConsumers(s)...)
		delete(m.subs, k)
		metrics.Subscriptions.Dec()
	}
	m.mu.Unlock()

	m.loops.Wait()
	m.polls.Wait()
	for _, c := range consumers {
		c.stop()
	}
}

// ── internal ─────────────────────────────────────────────────────────────────

// takeConsumers detaches every consumer of s. Called under m.mu.
func (m *Manager) takeConsumers(s *Subscription) []*Consumer {
	out := make([]*Consumer, 0, len(s.consumers))
	for c := range s.consumers {
		out = append(out, c)
	}
	metrics.Consumers.Sub(float64(len(out)))
	clear(s.consumers)
	return out
}

// startLoop launches the shared poll loop. Called under m.mu.
func (m *Manager) startLoop() {
	ctx, cancel := context.WithCancel(m.root)
	m.stopLoop = cancel
	m.loops.Add(1)
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer m.loops.Done()
	t := time.NewTicker(m.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.scan(ctx)
		}
	}
}

// scan starts a poll for every due subscription that has none in flight.
func (m *Manager) scan(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var due []*Subscription
	for _, s := range m.subs {
		if s.inFlight || now.Before(s.nextDue) {
			continue
		}
		s.inFlight = true
		due = append(due, s)
	}
	limit, delay := m.retryLimit, m.retryDelay
	m.mu.Unlock()

	for _, s := range due {
		m.polls.Add(1)
		go func() {
			defer m.polls.Done()
			m.poll(ctx, s, limit, delay)
		}()
	}
}

// poll fetches the latest bars for s until a newer closed bar appears or the
// attempts run out. Either way s is rescheduled one interval from now.
func (m *Manager) poll(ctx context.Context, s *Subscription, limit int, delay time.Duration) {
	defer func() {
		m.mu.Lock()
		s.inFlight = false
		m.mu.Unlock()
	}()

	attempts := max(limit, 1)
	for i := range attempts {
		if i > 0 && !sleep(ctx, delay) {
			return
		}
		if !m.isActive(s) {
			metrics.PollTotal.WithLabelValues("dropped").Inc()
			return
		}

		bars, err := m.fetcher.GetHistory(ctx, s.request(2))
		if err != nil {
			metrics.PollTotal.WithLabelValues("error").Inc()
			continue
		}
		bar, ok := closedBar(bars)
		if !ok || bar.Timestamp <= s.LastUpdated() {
			metrics.PollTotal.WithLabelValues("stale").Inc()
			continue
		}
		m.deliver(s, bar)
		return
	}

	m.mu.Lock()
	s.nextDue = time.Now().Add(s.key.Interval.Duration())
	m.mu.Unlock()
	metrics.PollTotal.WithLabelValues("gave_up").Inc()
	m.log.Debug("no new bar this cycle",
		zap.String("subscription", s.key.String()),
		zap.Int("attempts", attempts))
}

// deliver advances s to bar and fans it out. A subscription removed while the
// fetch was in flight gets nothing.
func (m *Manager) deliver(s *Subscription, bar candle.Bar) {
	m.mu.Lock()
	if !s.active {
		m.mu.Unlock()
		metrics.PollTotal.WithLabelValues("dropped").Inc()
		return
	}
	if !s.advance(bar.Timestamp) {
		m.mu.Unlock()
		return
	}
	s.nextDue = time.Now().Add(s.key.Interval.Duration())
	consumers := make([]*Consumer, 0, len(s.consumers))
	for c := range s.consumers {
		consumers = append(consumers, c)
	}
	m.mu.Unlock()

	metrics.PollTotal.WithLabelValues("delivered").Inc()
	for _, c := range consumers {
		c.enqueue(bar)
	}
}

func (m *Manager) isActive(s *Subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.active
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
