package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want Interval
		dur  time.Duration
	}{
		{"1H", In1Hour, time.Hour},
		{"1h", In1Hour, time.Hour},
		{"4h", In4Hour, 4 * time.Hour},
		{"daily", InDaily, 24 * time.Hour},
		{"1m", In1Minute, time.Minute},
		{"1M", InMonthly, 30 * 24 * time.Hour},
		{" 15 ", In15Minute, 15 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.dur, got.Duration())
		})
	}

	_, err := ParseInterval("7x")
	assert.Error(t, err)
	assert.Zero(t, Interval("7x").Duration())
}

func TestLatest(t *testing.T) {
	_, ok := Latest(nil)
	assert.False(t, ok)

	b, ok := Latest([]Bar{{Timestamp: 1}, {Timestamp: 2}})
	require.True(t, ok)
	assert.Equal(t, int64(2), b.Timestamp)
	assert.Equal(t, time.UnixMilli(2).UTC(), b.Time())
}
