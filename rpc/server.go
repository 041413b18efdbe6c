package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/adapter/tradingview"
	"github.com/thushara2679/trading-alert/features"
	"github.com/thushara2679/trading-alert/livefeed"
	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/model/candle"
)

// streamBuffer is how many bars a slow stream may fall behind before new
// ones are dropped for it.
const streamBuffer = 16

// Server implements FeedServer on top of a history fetcher and a live feed.
type Server struct {
	fetcher  adapter.Fetcher
	feed     *livefeed.Manager
	location *time.Location
	log      *zap.Logger

	// streams counts open Subscribe calls per subscription. A subscription is
	// removed from the feed when its last stream ends, unless pinned.
	mu      sync.Mutex
	streams map[*livefeed.Subscription]int
	pinned  map[*livefeed.Subscription]struct{}
}

// NewServer builds a Server. loc is used for temporal features; nil means UTC.
func NewServer(fetcher adapter.Fetcher, feed *livefeed.Manager, loc *time.Location) *Server {
	return &Server{
		fetcher:  fetcher,
		feed:     feed,
		location: loc,
		log:      logger.Named("rpc"),
		streams:  make(map[*livefeed.Subscription]int),
		pinned:   make(map[*livefeed.Subscription]struct{}),
	}
}

// Pin keeps sub registered after its streams end, e.g. for a configured
// watchlist that other consumers depend on.
func (s *Server) Pin(sub *livefeed.Subscription) {
	s.mu.Lock()
	s.pinned[sub] = struct{}{}
	s.mu.Unlock()
}

var _ FeedServer = (*Server)(nil)

func (s *Server) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := parseHistoryQuery(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	bars, err := s.fetcher.GetHistory(ctx, q.Request)
	if err != nil {
		return nil, historyStatus(err)
	}

	var set features.Set
	if q.Features {
		set = features.Compute(bars, features.Options{Location: s.location})
	}
	logger.Debug(ctx, "history served",
		zap.String("key", q.Request.Key()), zap.Int("bars", len(bars)))
	return historyResponse(bars, set), nil
}

func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	q, err := parseSubscribeQuery(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	bars := make(chan candle.Bar, streamBuffer)
	sub, consumer, err := s.acquire(ctx, q, func(sub *livefeed.Subscription, b candle.Bar) {
		select {
		case bars <- b:
		default:
			s.log.Warn("stream behind, dropping bar", zap.String("subscription", sub.String()))
		}
	})
	switch {
	case errors.Is(err, livefeed.ErrSymbolNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, livefeed.ErrClosed), errors.Is(err, livefeed.ErrUnknownSubscription):
		return status.Error(codes.Unavailable, err.Error())
	case err != nil:
		return status.Error(codes.Internal, err.Error())
	}
	defer s.release(sub, consumer)

	logger.Info(ctx, "stream attached", zap.String("subscription", sub.String()))
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "stream closed by client", zap.String("subscription", sub.String()))
			return nil
		case <-consumer.Done():
			return status.Error(codes.Unavailable, "subscription ended")
		case b := <-bars:
			if err := stream.SendMsg(updateMessage(sub.String(), b)); err != nil {
				return err
			}
		}
	}
}

// acquire subscribes and attaches cb as one step against release. A
// subscription removed between the two calls is subscribed again.
func (s *Server) acquire(ctx context.Context, q SubscribeQuery, cb livefeed.Callback) (*livefeed.Subscription, *livefeed.Consumer, error) {
	for attempt := 0; ; attempt++ {
		sub, err := s.feed.Subscribe(ctx, q.Symbol, q.Exchange, q.Interval)
		if err != nil {
			return nil, nil, err
		}

		s.mu.Lock()
		c, err := s.feed.Attach(sub, cb)
		if err == nil {
			s.streams[sub]++
		}
		s.mu.Unlock()

		if errors.Is(err, livefeed.ErrUnknownSubscription) && attempt < 2 {
			continue
		}
		return sub, c, err
	}
}

// release detaches c and unsubscribes sub once no stream uses it.
func (s *Server) release(sub *livefeed.Subscription, c *livefeed.Consumer) {
	s.feed.Detach(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[sub]--; s.streams[sub] > 0 {
		return
	}
	delete(s.streams, sub)
	if _, ok := s.pinned[sub]; ok {
		return
	}
	s.feed.Unsubscribe(sub)
	s.log.Info("last stream ended, unsubscribed", zap.String("subscription", sub.String()))
}

func historyStatus(err error) error {
	switch {
	case errors.Is(err, tradingview.ErrTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, tradingview.ErrSymbolError):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}
