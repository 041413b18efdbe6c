package livefeed

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/model/candle"
)

// Key identifies a subscription. Subscribing twice with an equal Key returns
// the same Subscription.
type Key struct {
	Symbol   string
	Exchange string
	Interval candle.Interval
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s@%s", k.Exchange, k.Symbol, k.Interval)
}

// Subscription is one polled instrument. Its scheduling fields are guarded by
// the owning Manager's mutex.
type Subscription struct {
	key Key

	// lastUpdated is the newest delivered bar timestamp (ms). It only grows.
	lastUpdated atomic.Int64

	nextDue   time.Time
	inFlight  bool
	active    bool
	consumers map[*Consumer]struct{}
}

func newSubscription(key Key, lastUpdated int64, nextDue time.Time) *Subscription {
	s := &Subscription{
		key:       key,
		nextDue:   nextDue,
		active:    true,
		consumers: make(map[*Consumer]struct{}),
	}
	s.lastUpdated.Store(lastUpdated)
	return s
}

func (s *Subscription) Key() Key                  { return s.key }
func (s *Subscription) Symbol() string            { return s.key.Symbol }
func (s *Subscription) Exchange() string          { return s.key.Exchange }
func (s *Subscription) Interval() candle.Interval { return s.key.Interval }

// LastUpdated returns the timestamp (Unix ms) of the newest delivered bar, or
// of the seed bar before the first delivery.
func (s *Subscription) LastUpdated() int64 { return s.lastUpdated.Load() }

func (s *Subscription) String() string { return s.key.String() }

func (s *Subscription) request(bars int) adapter.Request {
	return adapter.Request{
		Symbol:   s.key.Symbol,
		Exchange: s.key.Exchange,
		Interval: s.key.Interval,
		Bars:     bars,
	}
}

// advance records bar as delivered if it is newer than lastUpdated.
func (s *Subscription) advance(ts int64) bool {
	for {
		cur := s.lastUpdated.Load()
		if ts <= cur {
			return false
		}
		if s.lastUpdated.CompareAndSwap(cur, ts) {
			return true
		}
	}
}

// closedBar picks the newest completed bar from a two-bar fetch. The last bar
// of the series is still forming, so the one before it is the closed one.
func closedBar(bars []candle.Bar) (candle.Bar, bool) {
	if len(bars) < 2 {
		return candle.Bar{}, false
	}
	return bars[len(bars)-2], true
}

// firstDue is when the bar after the seed bar should have closed: the seed
// bar is followed by one forming bar, so two intervals on. Never before now.
func firstDue(lastUpdated int64, iv time.Duration, now time.Time) time.Time {
	if lastUpdated <= 0 {
		return now
	}
	due := time.UnixMilli(lastUpdated).Add(2 * iv)
	if due.Before(now) {
		return now
	}
	return due
}
