package sink

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushara2679/trading-alert/model/candle"
)

type writeRecorder struct {
	mu     sync.Mutex
	bodies []string
	query  string
}

func (r *writeRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/api/v2/write" {
		http.NotFound(w, req)
		return
	}
	b, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, string(b))
	r.query = req.URL.RawQuery
	r.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (r *writeRecorder) all() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.bodies, "\n"), r.query
}

func TestInflux_WritesLineProtocol(t *testing.T) {
	rec := &writeRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewInflux(Config{
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "alerts",
		Bucket:        "bars",
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
	})

	s.WriteBar("NASDAQ", candle.In1Hour, candle.Bar{
		Symbol: "NASDAQ:AAPL", Timestamp: 1700000000000,
		Open: 100, High: 105, Low: 98, Close: 103, Volume: 5000,
	})
	s.Flush()
	s.Close()

	require.Eventually(t, func() bool {
		body, _ := rec.all()
		return body != ""
	}, 2*time.Second, 10*time.Millisecond)

	body, query := rec.all()
	assert.Contains(t, body, "bar,exchange=NASDAQ,interval=1H,symbol=NASDAQ:AAPL ")
	assert.Contains(t, body, "c=103")
	assert.Contains(t, body, "v=5000")
	assert.Contains(t, body, " 1700000000000000000")
	assert.Contains(t, query, "org=alerts")
	assert.Contains(t, query, "bucket=bars")
}

func TestInflux_WriteAfterCloseIsDropped(t *testing.T) {
	rec := &writeRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewInflux(Config{URL: srv.URL, Org: "alerts", Bucket: "bars", FlushInterval: 10 * time.Millisecond})
	s.Close()
	s.Close()

	assert.NotPanics(t, func() {
		s.WriteBar("NASDAQ", candle.In1Hour, candle.Bar{Symbol: "NASDAQ:AAPL", Timestamp: 1700000000000, Close: 1})
		s.Flush()
	})
	time.Sleep(50 * time.Millisecond)
	body, _ := rec.all()
	assert.Empty(t, body)
}

func TestConfigString(t *testing.T) {
	cfg := Config{URL: "http://influx:8086", Org: "o", Bucket: "b", BatchSize: 5, FlushInterval: time.Second}
	assert.Equal(t, "url=http://influx:8086 org=o bucket=b batch=5 flush=1s gzip=false", cfg.String())
	assert.NotContains(t, cfg.String(), "token")
}
