package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // features.location must resolve on hosts without zoneinfo

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/model/candle"
)

type Config struct {
	Log         Log         `mapstructure:"log"`
	TradingView TradingView `mapstructure:"tradingview"`
	Feed        Feed        `mapstructure:"feed"`
	Features    Features    `mapstructure:"features"`
	Cache       Cache       `mapstructure:"cache"`
	Influx      Influx      `mapstructure:"influx"`
	GRPC        Listen      `mapstructure:"grpc"`
	Metrics     Listen      `mapstructure:"metrics"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// TradingView configures the data client. Username empty means anonymous.
type TradingView struct {
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DataURL      string        `mapstructure:"data_url"`
	Origin       string        `mapstructure:"origin"`
	SignInURL    string        `mapstructure:"signin_url"`
	SearchURL    string        `mapstructure:"search_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ConnectRate  float64       `mapstructure:"connect_rate"`
	ConnectBurst int           `mapstructure:"connect_burst"`
	BatchLimit   int           `mapstructure:"batch_limit"`
}

type Feed struct {
	Tick       time.Duration `mapstructure:"tick"`
	RetryLimit int           `mapstructure:"retry_limit"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	QueueSize  int           `mapstructure:"queue_size"`
	Watchlist  []Watch       `mapstructure:"watchlist"`
}

// Watch is one instrument subscribed at startup.
type Watch struct {
	Symbol   string `mapstructure:"symbol"`
	Exchange string `mapstructure:"exchange"`
	Interval string `mapstructure:"interval"`
}

// Features configures derived values. Location is an IANA zone name used for
// day_of_week and hour_of_day.
type Features struct {
	Location string `mapstructure:"location"`
}

// TimeLocation resolves Location, falling back to UTC when it cannot be loaded.
func (f Features) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(f.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Cache struct {
	Enabled  bool          `mapstructure:"enabled"`
	Dir      string        `mapstructure:"dir"`
	Validity time.Duration `mapstructure:"validity"`
	// FetchAttempts tries per refetch; the pause starts at FetchBackoff and doubles.
	FetchAttempts int           `mapstructure:"fetch_attempts"`
	FetchBackoff  time.Duration `mapstructure:"fetch_backoff"`
}

type Influx struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type Listen struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("tradingview.username", "")
	v.SetDefault("tradingview.password", "")
	v.SetDefault("tradingview.data_url", "wss://data.tradingview.com/socket.io/websocket")
	v.SetDefault("tradingview.origin", "https://data.tradingview.com")
	v.SetDefault("tradingview.signin_url", "https://www.tradingview.com/accounts/signin/")
	v.SetDefault("tradingview.search_url", "https://symbol-search.tradingview.com/symbol_search/")
	v.SetDefault("tradingview.timeout", "30s")
	v.SetDefault("tradingview.settle_delay", "500ms")
	v.SetDefault("tradingview.connect_rate", 5)
	v.SetDefault("tradingview.connect_burst", 5)
	v.SetDefault("tradingview.batch_limit", 5)

	v.SetDefault("feed.tick", "1s")
	v.SetDefault("feed.retry_limit", 50)
	v.SetDefault("feed.retry_delay", "100ms")
	v.SetDefault("feed.queue_size", 64)

	v.SetDefault("features.location", "UTC")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "./data/history")
	v.SetDefault("cache.validity", "15m")
	v.SetDefault("cache.fetch_attempts", 3)
	v.SetDefault("cache.fetch_backoff", "1s")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "bars")
	v.SetDefault("influx.batch_size", 500)
	v.SetDefault("influx.flush_interval", "1s")

	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("metrics.addr", ":9090")
}

// Load reads <service>.yaml from paths (default ./config then .), overlaid by
// <SERVICE>_* environment variables, e.g. TVFEED_FEED_RETRY_LIMIT for
// feed.retry_limit. A .env file in the working directory is loaded first. A
// missing config file is not an error.
func Load(service string, paths ...string) (*Config, error) {
	cfg, _, err := load(service, paths)
	return cfg, err
}

// LoadAndWatch is Load plus hot reload: each valid edit of the config file is
// passed to onChange. Edits that fail to decode or validate are logged and
// skipped. Without a config file there is nothing to watch.
func LoadAndWatch(service string, onChange func(*Config), paths ...string) (*Config, error) {
	cfg, v, err := load(service, paths)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	log := logger.Named("config")
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			log.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("file", e.Name))
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return cfg, nil
}

func load(service string, paths []string) (*Config, *viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	logger.Named("config").Info("config loaded",
		zap.String("service", service), zap.String("file", v.ConfigFileUsed()))
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the feed cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.TradingView.Timeout <= 0 {
		errs = append(errs, errors.New("tradingview.timeout must be positive"))
	}
	if c.TradingView.SettleDelay < 0 {
		errs = append(errs, errors.New("tradingview.settle_delay must not be negative"))
	}
	if c.TradingView.BatchLimit < 1 {
		errs = append(errs, errors.New("tradingview.batch_limit must be at least 1"))
	}
	if c.Feed.Tick <= 0 {
		errs = append(errs, errors.New("feed.tick must be positive"))
	}
	if c.Feed.RetryLimit < 1 {
		errs = append(errs, errors.New("feed.retry_limit must be at least 1"))
	}
	if c.Feed.RetryDelay < 0 {
		errs = append(errs, errors.New("feed.retry_delay must not be negative"))
	}
	for i, w := range c.Feed.Watchlist {
		if w.Symbol == "" {
			errs = append(errs, fmt.Errorf("feed.watchlist[%d]: symbol is required", i))
		}
		if _, err := candle.ParseInterval(w.Interval); err != nil {
			errs = append(errs, fmt.Errorf("feed.watchlist[%d]: %w", i, err))
		}
	}
	if _, err := time.LoadLocation(c.Features.Location); err != nil {
		errs = append(errs, fmt.Errorf("features.location: %w", err))
	}
	if c.Cache.FetchAttempts < 1 {
		errs = append(errs, errors.New("cache.fetch_attempts must be at least 1"))
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required when the cache is enabled"))
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx.url and influx.bucket are required when influx is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
