package tradingview

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/metrics"
	"github.com/thushara2679/trading-alert/model/candle"
)

// quoteFields are requested on the quote session; the fetch only needs the
// session to exist but the backend expects the field list before symbols.
var quoteFields = []any{
	"ch", "chp", "current_session", "description", "local_description",
	"language", "exchange", "fractional", "is_tradable", "lp", "lp_time",
	"minmov", "minmove2", "original_name", "pricescale", "pro_name",
	"short_name", "type", "update_mode", "volume", "currency_code", "rchp", "rtc",
}

const (
	seriesID    = "s1"
	symbolAlias = "symbol_1"
)

// GetHistory retrieves req.Bars bars for one instrument, oldest first.
// Each call opens a dedicated connection that is closed on return. Malformed
// data, socket errors, backend errors and the timeout all yield no bars and
// an error; the failure is logged here so callers may ignore it.
func (c *Client) GetHistory(ctx context.Context, req adapter.Request) ([]candle.Bar, error) {
	start := time.Now()
	bars, err := c.fetch(ctx, req)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case len(bars) == 0:
		outcome = "empty"
	}
	metrics.ObserveFetch(outcome, time.Since(start).Seconds())

	if err != nil {
		c.log.Warn("history fetch failed",
			zap.String("symbol", FormatSymbol(req.Symbol, req.Exchange)),
			zap.String("interval", req.Interval.String()),
			zap.Int("bars", req.Bars),
			zap.Error(err))
		return nil, err
	}
	c.log.Debug("history fetched",
		zap.String("symbol", FormatSymbol(req.Symbol, req.Exchange)),
		zap.String("interval", req.Interval.String()),
		zap.Int("bars", len(bars)))
	return bars, nil
}

// GetHistoryBatch fetches reqs concurrently, at most limit at a time.
func (c *Client) GetHistoryBatch(ctx context.Context, reqs []adapter.Request, limit int) map[string][]candle.Bar {
	return adapter.FetchBatch(ctx, c, reqs, limit)
}

func (c *Client) fetch(ctx context.Context, req adapter.Request) ([]candle.Bar, error) {
	if req.Bars <= 0 {
		return nil, fmt.Errorf("tradingview: bar count must be positive, got %d", req.Bars)
	}
	if !req.Interval.Valid() {
		return nil, fmt.Errorf("tradingview: unknown interval %q", req.Interval)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cn, err := c.dial(ctx)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	defer cn.Close()

	// Unblock a pending read once the deadline passes or the caller cancels.
	stop := context.AfterFunc(ctx, func() { cn.Close() })
	defer stop()

	symbol := FormatSymbol(req.Symbol, req.Exchange)
	if err := cn.requestSeries(symbol, req); err != nil {
		return nil, ctxErr(ctx, err)
	}

	bars, err := cn.readSeries(symbol)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	return bars, nil
}

// ctxErr reports the deadline as ErrTimeout and caller cancellation as-is;
// otherwise err is returned unchanged.
func ctxErr(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ErrTimeout
	case context.Canceled:
		return fmt.Errorf("tradingview: %w", context.Canceled)
	}
	return err
}

type resolveParams struct {
	Symbol     string `json:"symbol"`
	Adjustment string `json:"adjustment"`
	Session    string `json:"session"`
}

// requestSeries sends the fixed message choreography for one series.
func (cn *conn) requestSeries(symbol string, req adapter.Request) error {
	s := cn.session

	session := "regular"
	if req.Extended {
		session = "extended"
	}
	resolve, err := json.Marshal(resolveParams{Symbol: symbol, Adjustment: "splits", Session: session})
	if err != nil {
		return fmt.Errorf("tradingview: encode resolve params: %w", err)
	}

	steps := []struct {
		method string
		params []any
	}{
		{"set_auth_token", []any{s.AuthToken}},
		{"chart_create_session", []any{s.ChartSession, ""}},
		{"quote_create_session", []any{s.QuoteSession}},
		{"quote_set_fields", append([]any{s.QuoteSession}, quoteFields...)},
		{"quote_add_symbols", []any{s.QuoteSession, symbol, map[string]any{"flags": []string{"force_permission"}}}},
		{"quote_fast_symbols", []any{s.QuoteSession, symbol}},
		{"resolve_symbol", []any{s.ChartSession, symbolAlias, "=" + string(resolve)}},
		{"create_series", []any{s.ChartSession, seriesID, seriesID, symbolAlias, req.Interval.String(), req.Bars}},
		{"switch_timezone", []any{s.ChartSession, "exchange"}},
	}
	for _, st := range steps {
		if err := cn.send(st.method, st.params...); err != nil {
			return err
		}
	}
	return nil
}

// readSeries consumes frames until series_completed, echoing heartbeats.
func (cn *conn) readSeries(symbol string) ([]candle.Bar, error) {
	var dec frameDecoder
	col := newSeriesCollector(symbol)

	for {
		msg, err := cn.read()
		if err != nil {
			return nil, fmt.Errorf("tradingview: read: %w", err)
		}

		payloads, decErr := dec.Feed(msg)
		for _, p := range payloads {
			if isHeartbeat(p) {
				metrics.FramesInTotal.WithLabelValues("heartbeat").Inc()
				if err := cn.writeFrame(p); err != nil {
					return nil, fmt.Errorf("tradingview: heartbeat: %w", err)
				}
				continue
			}

			done, err := col.consume(p)
			if err != nil {
				return nil, err
			}
			if done {
				return col.bars(), nil
			}
		}
		if decErr != nil {
			return nil, decErr
		}
	}
}

// seriesCollector accumulates bars from series payloads. Later points for
// the same timestamp replace earlier ones.
type seriesCollector struct {
	symbol string
	points map[int64]candle.Bar
}

func newSeriesCollector(symbol string) *seriesCollector {
	return &seriesCollector{symbol: symbol, points: make(map[int64]candle.Bar)}
}

// consume handles one decoded payload and reports whether the series is complete.
func (s *seriesCollector) consume(payload []byte) (bool, error) {
	if !gjson.ValidBytes(payload) {
		metrics.FramesInTotal.WithLabelValues("other").Inc()
		return false, nil
	}
	metrics.FramesInTotal.WithLabelValues("message").Inc()

	method := gjson.GetBytes(payload, "m").String()
	switch method {
	case "timescale_update", "du":
		return false, s.collect(payload)
	case "series_completed":
		return true, nil
	case "symbol_error":
		return false, fmt.Errorf("%w: %s", ErrSymbolError, gjson.GetBytes(payload, "p").Raw)
	case "series_error", "critical_error", "protocol_error":
		return false, fmt.Errorf("%w: %s %s", ErrProtocol, method, gjson.GetBytes(payload, "p").Raw)
	}
	return false, nil
}

type seriesPoint struct {
	Index int       `json:"i"`
	V     []float64 `json:"v"`
}

// collect decodes every "s" array under p[1]. Each point's "v" is
// [epoch_seconds, open, high, low, close, volume, ...].
func (s *seriesCollector) collect(payload []byte) error {
	var err error
	gjson.GetBytes(payload, "p.1").ForEach(func(key, series gjson.Result) bool {
		arr := series.Get("s")
		if !arr.Exists() {
			return true
		}
		if !arr.IsArray() {
			err = fmt.Errorf("%w: series %s data is not an array", ErrProtocol, key.String())
			return false
		}

		var points []seriesPoint
		if e := json.Unmarshal([]byte(arr.Raw), &points); e != nil {
			err = fmt.Errorf("%w: decode series %s: %v", ErrProtocol, key.String(), e)
			return false
		}
		for i, p := range points {
			if len(p.V) < 5 {
				err = fmt.Errorf("%w: series %s point[%d] has %d values, want ≥5", ErrProtocol, key.String(), i, len(p.V))
				return false
			}
			b := candle.Bar{
				Symbol:    s.symbol,
				Timestamp: int64(math.Round(p.V[0] * 1000)),
				Open:      p.V[1],
				High:      p.V[2],
				Low:       p.V[3],
				Close:     p.V[4],
			}
			if len(p.V) > 5 {
				b.Volume = p.V[5]
			}
			s.points[b.Timestamp] = b
		}
		return true
	})
	return err
}

// bars returns the collected bars in ascending timestamp order.
func (s *seriesCollector) bars() []candle.Bar {
	out := make([]candle.Bar, 0, len(s.points))
	for _, ts := range slices.Sorted(maps.Keys(s.points)) {
		out = append(out, s.points[ts])
	}
	return out
}
