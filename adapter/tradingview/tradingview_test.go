package tradingview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSymbol(t *testing.T) {
	assert.Equal(t, "NASDAQ:AAPL", FormatSymbol("AAPL", "NASDAQ"))
	assert.Equal(t, "BINANCE:BTCUSDT", FormatSymbol("BINANCE:BTCUSDT", "NASDAQ"))
	assert.Equal(t, "AAPL", FormatSymbol("AAPL", ""))
}

func TestSessionID(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		id := sessionID("qs")
		assert.Regexp(t, `^qs_[a-z]{12}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestNewSession(t *testing.T) {
	s := newSession("tok")
	assert.Equal(t, "tok", s.AuthToken)
	assert.Regexp(t, `^qs_`, s.QuoteSession)
	assert.Regexp(t, `^cs_`, s.ChartSession)
}
