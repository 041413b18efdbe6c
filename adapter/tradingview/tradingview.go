package tradingview

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/logger"
)

const (
	// DefaultTimeout bounds one historical fetch end to end.
	DefaultTimeout = 30 * time.Second
	// DefaultSettleDelay is the pause between connect and the first send.
	DefaultSettleDelay = 500 * time.Millisecond
	// DefaultConnectRate limits how many data connections a Client opens per second.
	DefaultConnectRate  = 5
	defaultConnectBurst = 5
)

var (
	// ErrTimeout is returned when no series completion arrives in time.
	ErrTimeout = errors.New("tradingview: timed out waiting for series")
	// ErrProtocol marks malformed frames or backend protocol errors.
	ErrProtocol = errors.New("tradingview: protocol error")
	// ErrSymbolError is returned when the backend cannot resolve the symbol.
	ErrSymbolError = errors.New("tradingview: symbol error")
)

// Endpoints are the fixed backend addresses. Tests point them at local servers.
type Endpoints struct {
	Data    string // websocket data endpoint
	Origin  string // Origin header required by the data endpoint
	SignIn  string // form sign-in endpoint
	Search  string // symbol search endpoint
	Referer string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Data:    "wss://data.tradingview.com/socket.io/websocket",
		Origin:  "https://data.tradingview.com",
		SignIn:  "https://www.tradingview.com/accounts/signin/",
		Search:  "https://symbol-search.tradingview.com/symbol_search/",
		Referer: "https://www.tradingview.com",
	}
}

// Credentials are the optional account login.
type Credentials struct {
	Username string
	Password string
}

// Client fetches history and searches symbols. It holds the auth token for
// its lifetime; every fetch opens its own short-lived connection, so a Client
// is safe for concurrent use.
type Client struct {
	endpoints Endpoints
	creds     *Credentials
	token     string

	httpClient *http.Client
	dialer     *websocket.Dialer
	limiter    *rate.Limiter

	timeout time.Duration
	settle  time.Duration

	log *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithEndpoints(e Endpoints) Option { return func(c *Client) { c.endpoints = e } }

func WithCredentials(username, password string) Option {
	return func(c *Client) {
		if username != "" {
			c.creds = &Credentials{Username: username, Password: password}
		}
	}
}

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithTimeout overrides the per-fetch timeout.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithSettleDelay overrides the connect-to-first-send pause. Zero disables it.
func WithSettleDelay(d time.Duration) Option { return func(c *Client) { c.settle = d } }

// WithConnectRate limits data connections to r per second with the given burst.
// A non-positive r removes the limit.
func WithConnectRate(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// New builds a Client and resolves its auth token. With credentials it signs
// in; without, or when sign-in fails for any reason, it uses the anonymous
// token. New never fails: reduced data access is the degraded mode.
func New(ctx context.Context, opts ...Option) *Client {
	c := &Client{
		endpoints:  DefaultEndpoints(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     websocket.DefaultDialer,
		limiter:    rate.NewLimiter(DefaultConnectRate, defaultConnectBurst),
		timeout:    DefaultTimeout,
		settle:     DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("tradingview")
	}
	c.token = c.authenticate(ctx, c.creds)
	return c
}

// Token returns the auth token sent with every session.
func (c *Client) Token() string { return c.token }

// Anonymous reports whether the client runs with the anonymous token.
func (c *Client) Anonymous() bool { return c.token == AnonymousToken }

// FormatSymbol returns the backend instrument id EXCHANGE:SYMBOL. Symbols
// that are already qualified pass through unchanged.
func FormatSymbol(symbol, exchange string) string {
	if strings.Contains(symbol, ":") || exchange == "" {
		return symbol
	}
	return exchange + ":" + symbol
}

var (
	_ adapter.Fetcher  = (*Client)(nil)
	_ adapter.Searcher = (*Client)(nil)
)
