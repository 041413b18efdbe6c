package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	grpc_prom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/adapter/tradingview"
	"github.com/thushara2679/trading-alert/config"
	"github.com/thushara2679/trading-alert/livefeed"
	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/model/candle"
	"github.com/thushara2679/trading-alert/rpc"
	"github.com/thushara2679/trading-alert/sink"
	"github.com/thushara2679/trading-alert/store"
)

const service = "tvfeed"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init(service, "info")

	// Hot reload only touches the retry policy; everything else needs a restart.
	var live atomic.Pointer[livefeed.Manager]
	cfg, err := config.LoadAndWatch(service, func(c *config.Config) {
		if feed := live.Load(); feed != nil {
			feed.SetRetry(c.Feed.RetryLimit, c.Feed.RetryDelay)
		}
	})
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	logger.Init(service, cfg.Log.Level)
	defer logger.Sync()
	log := logger.Log

	tv := tradingview.New(ctx,
		tradingview.WithEndpoints(tradingview.Endpoints{
			Data:    cfg.TradingView.DataURL,
			Origin:  cfg.TradingView.Origin,
			SignIn:  cfg.TradingView.SignInURL,
			Search:  cfg.TradingView.SearchURL,
			Referer: tradingview.DefaultEndpoints().Referer,
		}),
		tradingview.WithCredentials(cfg.TradingView.Username, cfg.TradingView.Password),
		tradingview.WithTimeout(cfg.TradingView.Timeout),
		tradingview.WithSettleDelay(cfg.TradingView.SettleDelay),
		tradingview.WithConnectRate(cfg.TradingView.ConnectRate, cfg.TradingView.ConnectBurst),
	)
	log.Info("tradingview client ready", zap.Bool("anonymous", tv.Anonymous()))

	var fetcher adapter.Fetcher = tv
	var cache *store.CachedFetcher
	if cfg.Cache.Enabled {
		ps, err := store.NewParquetStore(cfg.Cache.Dir)
		if err != nil {
			log.Fatal("open history cache", zap.Error(err))
		}
		cache = store.NewCachedFetcher(tv, ps,
			store.WithValidity(cfg.Cache.Validity),
			store.WithFetchRetry(cfg.Cache.FetchAttempts, cfg.Cache.FetchBackoff),
		)
		fetcher = cache
	}

	// Created before the feed so its deferred Close runs after feed.Close.
	var influx *sink.Influx
	if cfg.Influx.Enabled {
		influx = sink.NewInflux(sink.Config{
			URL:           cfg.Influx.URL,
			Token:         cfg.Influx.Token,
			Org:           cfg.Influx.Org,
			Bucket:        cfg.Influx.Bucket,
			BatchSize:     cfg.Influx.BatchSize,
			FlushInterval: cfg.Influx.FlushInterval,
		})
		defer influx.Close()
	}

	// Polls go straight to the backend; only on-demand history is cached.
	feed := livefeed.New(tv, tv,
		livefeed.WithTick(cfg.Feed.Tick),
		livefeed.WithRetry(cfg.Feed.RetryLimit, cfg.Feed.RetryDelay),
		livefeed.WithQueueSize(cfg.Feed.QueueSize),
	)
	defer feed.Close()
	live.Store(feed)

	srv := rpc.NewServer(fetcher, feed, cfg.Features.TimeLocation())

	for _, w := range cfg.Feed.Watchlist {
		iv, _ := candle.ParseInterval(w.Interval) // validated by config
		sub, err := feed.Subscribe(ctx, w.Symbol, w.Exchange, iv)
		if err != nil {
			log.Warn("watchlist subscribe failed",
				zap.String("symbol", w.Symbol), zap.String("exchange", w.Exchange), zap.Error(err))
			continue
		}
		srv.Pin(sub)
		if influx != nil {
			if _, err := feed.Attach(sub, influx.Callback()); err != nil {
				log.Warn("attach influx sink", zap.String("subscription", sub.String()), zap.Error(err))
			}
		}
	}

	if cache != nil {
		go retryFailed(ctx, cache, cfg.TradingView.BatchLimit, log)
	}

	gs := rpc.NewGRPCServer()
	rpc.RegisterFeedServer(gs, srv)
	grpc_prom.EnableHandlingTimeHistogram()
	grpc_prom.Register(gs)

	errCh := make(chan error, 2)
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		log.Info("gRPC listening", zap.String("addr", cfg.GRPC.Addr))
		errCh <- gs.Serve(lis)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	gs.GracefulStop()
	log.Info("service stopped")
}

// retryFailed periodically refetches history requests that came back empty.
func retryFailed(ctx context.Context, cache *store.CachedFetcher, limit int, log *zap.Logger) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := len(cache.Failed()); n > 0 {
				got := cache.RetryFailed(ctx, limit)
				log.Info("retried failed history", zap.Int("failed", n), zap.Int("attempted", len(got)))
			}
		}
	}
}
