package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tvfeed.yaml"), []byte(body), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("tvfeed", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.TradingView.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.TradingView.SettleDelay)
	assert.Equal(t, 5, cfg.TradingView.BatchLimit)
	assert.Equal(t, time.Second, cfg.Feed.Tick)
	assert.Equal(t, 50, cfg.Feed.RetryLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.Feed.RetryDelay)
	assert.Equal(t, 15*time.Minute, cfg.Cache.Validity)
	assert.Equal(t, 3, cfg.Cache.FetchAttempts)
	assert.Equal(t, time.Second, cfg.Cache.FetchBackoff)
	assert.Equal(t, time.UTC, cfg.Features.TimeLocation())
	assert.False(t, cfg.Influx.Enabled)
	assert.Equal(t, ":50051", cfg.GRPC.Addr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
feed:
  retry_limit: 10
  retry_delay: 250ms
  watchlist:
    - { symbol: AAPL, exchange: NASDAQ, interval: 1h }
tradingview:
  username: trader
`)
	t.Setenv("TVFEED_FEED_RETRY_LIMIT", "7")
	t.Setenv("TVFEED_TRADINGVIEW_PASSWORD", "from-env")

	cfg, err := Load("tvfeed", dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Feed.RetryLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.RetryDelay)
	assert.Equal(t, "trader", cfg.TradingView.Username)
	assert.Equal(t, "from-env", cfg.TradingView.Password)
	require.Len(t, cfg.Feed.Watchlist, 1)
	assert.Equal(t, Watch{Symbol: "AAPL", Exchange: "NASDAQ", Interval: "1h"}, cfg.Feed.Watchlist[0])
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
feed:
  retry_limit: 0
  watchlist:
    - { symbol: AAPL, exchange: NASDAQ, interval: 2d }
`)
	_, err := Load("tvfeed", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.retry_limit")
	assert.Contains(t, err.Error(), "watchlist[0]")
}

func TestLoad_FeaturesLocation(t *testing.T) {
	t.Setenv("TVFEED_FEATURES_LOCATION", "Asia/Tokyo")
	cfg, err := Load("tvfeed", t.TempDir())
	require.NoError(t, err)

	loc := cfg.Features.TimeLocation()
	assert.Equal(t, "Asia/Tokyo", loc.String())
	// 2024-01-02 22:00 UTC is Wednesday 07:00 in Tokyo.
	assert.Equal(t, 7, time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC).In(loc).Hour())

	t.Setenv("TVFEED_FEATURES_LOCATION", "Mars/Olympus")
	_, err = Load("tvfeed", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "features.location")
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "feed: [unterminated")
	_, err := Load("tvfeed", dir)
	assert.Error(t, err)
}

func TestLoadAndWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "feed:\n  retry_limit: 10\n")

	changed := make(chan int, 16)
	cfg, err := LoadAndWatch("tvfeed", func(c *Config) {
		select {
		case changed <- c.Feed.RetryLimit:
		default:
		}
	}, dir)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Feed.RetryLimit)

	writeConfig(t, dir, "feed:\n  retry_limit: 20\n")

	// The writer may surface an intermediate truncated file first.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-changed:
			if n == 20 {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
