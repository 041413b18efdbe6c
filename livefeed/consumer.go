package livefeed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/metrics"
	"github.com/thushara2679/trading-alert/model/candle"
)

// DefaultQueueSize is the per-consumer delivery buffer.
const DefaultQueueSize = 64

// Callback receives each newly closed bar of a subscription.
type Callback func(sub *Subscription, bar candle.Bar)

// Consumer is one fan-out recipient of a Subscription. Callbacks run on the
// consumer's own goroutine in delivery order.
type Consumer struct {
	sub *Subscription
	cb  Callback
	log *zap.Logger

	mu      sync.Mutex
	queue   chan candle.Bar
	stopped atomic.Bool
	done    chan struct{}
}

func newConsumer(sub *Subscription, cb Callback, size int, log *zap.Logger) *Consumer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	c := &Consumer{
		sub:   sub,
		cb:    cb,
		log:   log,
		queue: make(chan candle.Bar, size),
		done:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Subscription returns the subscription the consumer is attached to.
func (c *Consumer) Subscription() *Subscription { return c.sub }

// Detached reports whether the consumer has stopped receiving bars.
func (c *Consumer) Detached() bool { return c.stopped.Load() }

// Done is closed once the delivery goroutine has exited.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// enqueue hands bar to the delivery goroutine without blocking. A full queue
// drops the bar.
func (c *Consumer) enqueue(bar candle.Bar) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		metrics.ConsumerDroppedTotal.WithLabelValues("detached").Inc()
		return false
	}
	select {
	case c.queue <- bar:
		return true
	default:
		metrics.ConsumerDroppedTotal.WithLabelValues("full").Inc()
		c.log.Warn("consumer queue full, dropping bar",
			zap.String("subscription", c.sub.String()),
			zap.Int64("t", bar.Timestamp))
		return false
	}
}

// stop prevents further callbacks. Bars still queued are discarded.
func (c *Consumer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Swap(true) {
		return
	}
	close(c.queue)
}

func (c *Consumer) run() {
	defer close(c.done)
	for bar := range c.queue {
		if c.stopped.Load() {
			metrics.ConsumerDroppedTotal.WithLabelValues("detached").Inc()
			continue
		}
		c.invoke(bar)
	}
}

func (c *Consumer) invoke(bar candle.Bar) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ConsumerPanicsTotal.Inc()
			c.log.Error("consumer callback panicked",
				zap.String("subscription", c.sub.String()),
				zap.Int64("t", bar.Timestamp),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	c.cb(c.sub, bar)
	metrics.DeliveredTotal.Inc()
}
