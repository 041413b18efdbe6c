package livefeed

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/model/candle"
)

func testSub() *Subscription {
	return newSubscription(Key{Symbol: "AAPL", Exchange: "NASDAQ", Interval: candle.In1Minute}, 0, time.Now())
}

func TestConsumer_FullQueueDrops(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	c := newConsumer(testSub(), func(*Subscription, candle.Bar) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	}, 1, zap.NewNop())

	require.True(t, c.enqueue(bar(0)))
	<-started
	assert.True(t, c.enqueue(bar(1)))
	assert.False(t, c.enqueue(bar(2)))

	close(release)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	c.stop()
	<-c.Done()
	assert.Equal(t, int32(2), calls.Load())
}

func TestConsumer_RecoversPanic(t *testing.T) {
	var got []int64
	done := make(chan struct{})
	c := newConsumer(testSub(), func(_ *Subscription, b candle.Bar) {
		if b.Timestamp == bar(0).Timestamp {
			panic("bad bar")
		}
		got = append(got, b.Timestamp)
		close(done)
	}, 4, zap.NewNop())

	c.enqueue(bar(0))
	c.enqueue(bar(1))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second delivery never arrived")
	}
	assert.Equal(t, []int64{bar(1).Timestamp}, got)
	c.stop()
}

func TestConsumer_StopIsFinal(t *testing.T) {
	var calls atomic.Int32
	c := newConsumer(testSub(), func(*Subscription, candle.Bar) { calls.Add(1) }, 4, zap.NewNop())

	c.stop()
	c.stop()
	<-c.Done()

	assert.True(t, c.Detached())
	assert.False(t, c.enqueue(bar(0)))
	assert.Zero(t, calls.Load())
}

func TestClosedBar(t *testing.T) {
	_, ok := closedBar(nil)
	assert.False(t, ok)
	_, ok = closedBar([]candle.Bar{bar(0)})
	assert.False(t, ok)

	b, ok := closedBar([]candle.Bar{bar(0), bar(1)})
	require.True(t, ok)
	assert.Equal(t, bar(0), b)
}

func TestSubscriptionAdvance(t *testing.T) {
	s := testSub()
	assert.True(t, s.advance(10))
	assert.False(t, s.advance(10))
	assert.False(t, s.advance(5))
	assert.Equal(t, int64(10), s.LastUpdated())
}
