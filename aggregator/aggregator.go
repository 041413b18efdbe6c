package aggregator

import (
	"time"

	"github.com/thushara2679/trading-alert/model/candle"
)

// Resample folds an ordered base-interval series into interval-wide buckets.
//
// Buckets are epoch aligned: a bar belongs to BucketStart(bar.Timestamp, ms),
// not to a window anchored at the first bar. Consecutive bars of the same
// bucket merge as follows:
//   - Timestamp : bucket start
//   - Open      : first bar's open
//   - High      : max
//   - Low       : min
//   - Close     : last bar's close
//   - Volume    : sum
//
// Empty input yields an empty series. A non-positive interval returns a copy
// of the input.
func Resample(bars []candle.Bar, interval time.Duration) []candle.Bar {
	if len(bars) == 0 {
		return []candle.Bar{}
	}
	ms := interval.Milliseconds()
	if ms <= 0 {
		return append([]candle.Bar(nil), bars...)
	}

	out := make([]candle.Bar, 0, len(bars))
	cur := open(bars[0], ms)
	for _, b := range bars[1:] {
		if start := BucketStart(b.Timestamp, ms); start != cur.Timestamp {
			out = append(out, cur)
			cur = open(b, ms)
			continue
		}
		merge(&cur, b)
	}
	return append(out, cur)
}

// BucketStart returns floor(ts/intervalMs)*intervalMs. Division floors toward
// negative infinity so pre-epoch timestamps land in the bucket below them.
func BucketStart(ts, intervalMs int64) int64 {
	q := ts / intervalMs
	if ts%intervalMs != 0 && ts < 0 {
		q--
	}
	return q * intervalMs
}

// ── internal ─────────────────────────────────────────────────────────────────

// open starts a bucket from its first bar.
func open(b candle.Bar, ms int64) candle.Bar {
	b.Timestamp = BucketStart(b.Timestamp, ms)
	return b
}

// merge folds b into the open bucket agg.
func merge(agg *candle.Bar, b candle.Bar) {
	agg.High = max(agg.High, b.High)
	agg.Low = min(agg.Low, b.Low)
	agg.Close = b.Close
	agg.Volume += b.Volume
}
