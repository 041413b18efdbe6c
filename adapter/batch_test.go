package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushara2679/trading-alert/model/candle"
)

func TestFetchBatch_FailureLeavesKeyEmpty(t *testing.T) {
	f := FetcherFunc(func(_ context.Context, r Request) ([]candle.Bar, error) {
		if r.Symbol == "BAD" {
			return nil, errors.New("boom")
		}
		return []candle.Bar{{Symbol: r.Symbol, Timestamp: 1, Close: 1}}, nil
	})

	reqs := []Request{
		{Symbol: "AAPL", Exchange: "NASDAQ", Interval: candle.In1Hour, Bars: 1},
		{Symbol: "BAD", Exchange: "NASDAQ", Interval: candle.In1Hour, Bars: 1},
		{Symbol: "MSFT", Exchange: "NASDAQ", Interval: candle.In1Hour, Bars: 1},
	}
	got := FetchBatch(context.Background(), f, reqs, 2)

	require.Len(t, got, 3)
	assert.Len(t, got[reqs[0].Key()], 1)
	assert.Empty(t, got[reqs[1].Key()])
	assert.Len(t, got[reqs[2].Key()], 1)
}

func TestFetchBatch_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := FetcherFunc(func(_ context.Context, r Request) ([]candle.Bar, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	var reqs []Request
	for i := range 12 {
		reqs = append(reqs, Request{Symbol: string(rune('A' + i)), Interval: candle.In1Minute, Bars: 2})
	}
	FetchBatch(context.Background(), f, reqs, 3)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestRequestKey(t *testing.T) {
	a := Request{Symbol: "AAPL", Exchange: "NASDAQ", Interval: candle.In1Hour, Bars: 3}
	b := a
	b.Extended = true
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, "NASDAQ:AAPL:1H:3:false", a.Key())
}
