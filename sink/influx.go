package sink

import (
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/livefeed"
	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/model/candle"
)

const measurement = "bar"

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	BatchSize     uint
	FlushInterval time.Duration
	UseGzip       bool
}

func (cfg Config) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}

// Influx writes delivered bars to InfluxDB through the batching write API.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPI
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewInflux(cfg Config) *Influx {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}

	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	s := &Influx{
		client: c,
		write:  c.WriteAPI(cfg.Org, cfg.Bucket),
		log:    logger.Named("influx"),
	}

	// Errors must be drained or the async writer blocks. The channel is
	// created on first call, so take it before Close can run.
	errs := s.write.Errors()
	go func() {
		for err := range errs {
			s.log.Warn("write failed", zap.Error(err))
		}
	}()

	s.log.Info("influx sink ready", zap.Stringer("config", cfg))
	return s
}

// WriteBar queues one bar. Tags carry the subscription identity; the symbol
// tag is the qualified EXCHANGE:SYMBOL id the bar was fetched with.
func (s *Influx) WriteBar(exchange string, interval candle.Interval, b candle.Bar) {
	tags := map[string]string{
		"symbol":   b.Symbol,
		"exchange": exchange,
		"interval": interval.String(),
	}
	fields := map[string]any{
		"o": b.Open,
		"h": b.High,
		"l": b.Low,
		"c": b.Close,
		"v": b.Volume,
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Debug("sink closed, dropping bar", zap.String("symbol", b.Symbol), zap.Int64("t", b.Timestamp))
		return
	}
	s.write.WritePoint(write.NewPoint(measurement, tags, fields, b.Time()))
}

// Callback adapts the sink to a live feed consumer.
func (s *Influx) Callback() livefeed.Callback {
	return func(sub *livefeed.Subscription, b candle.Bar) {
		s.WriteBar(sub.Exchange(), sub.Interval(), b)
	}
}

// Flush pushes queued points without waiting for the batch to fill.
func (s *Influx) Flush() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed {
		s.write.Flush()
	}
}

// Close flushes and releases the client. Bars written afterwards are dropped.
func (s *Influx) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.client.Close()
}
