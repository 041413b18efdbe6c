package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/logger"
	"github.com/thushara2679/trading-alert/model/candle"
	"github.com/thushara2679/trading-alert/rpc"
)

func main() {
	app := &cli.App{
		Name:   "tvfeed",
		Usage:  "query history and watch closed bars from a feed service",
		Flags:  []cli.Flag{addrFlag, debugFlag},
		Before: before,
		After:  func(*cli.Context) error { logger.Sync(); return nil },
		Commands: []*cli.Command{
			{
				Name:   "history",
				Usage:  "print the last N bars of an instrument",
				Flags:  []cli.Flag{symbolFlag, exchangeFlag, intervalFlag, barsFlag, extendedFlag, featuresFlag},
				Action: history,
			},
			{
				Name:   "watch",
				Usage:  "chart an instrument and append each bar as it closes",
				Flags:  []cli.Flag{symbolFlag, exchangeFlag, intervalFlag, barsFlag},
				Action: watch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	level := "warn"
	if c.Bool("debug") {
		level = "debug"
	}
	logger.Init("tvfeed-client", level)
	return nil
}

func request(c *cli.Context) (adapter.Request, error) {
	iv, err := candle.ParseInterval(c.String("interval"))
	if err != nil {
		return adapter.Request{}, err
	}
	return adapter.Request{
		Symbol:   c.String("symbol"),
		Exchange: c.String("exchange"),
		Interval: iv,
		Bars:     c.Int("bars"),
		Extended: c.Bool("extended"),
	}, nil
}

func history(c *cli.Context) error {
	req, err := request(c)
	if err != nil {
		return err
	}
	client, err := rpc.Dial(c.String("addr"))
	if err != nil {
		return err
	}
	defer client.Close()

	h, err := client.GetHistory(c.Context, rpc.HistoryQuery{Request: req, Features: c.Bool("features")})
	if err != nil {
		return err
	}

	for _, b := range h.Bars {
		fmt.Printf("%s  O:%.2f  H:%.2f  L:%.2f  C:%.2f  V:%.0f\n",
			b.Time().Format(time.DateTime),
			b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if h.Features != nil {
		keys := make([]string, 0, len(h.Features))
		for k := range h.Features {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println()
		for _, k := range keys {
			fmt.Printf("%-12s %.4f\n", k, h.Features[k])
		}
	}
	return nil
}

func watch(c *cli.Context) error {
	req, err := request(c)
	if err != nil {
		return err
	}
	client, err := rpc.Dial(c.String("addr"))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	h, err := client.GetHistory(ctx, rpc.HistoryQuery{Request: req})
	if err != nil {
		return err
	}

	ch := make(chan candle.Bar, 128)
	go stream(ctx, client, req, ch)

	p := tea.NewProgram(newChart(req, h.Bars, ch), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chart: %w", err)
	}
	return nil
}

// stream forwards closed bars to ch, reconnecting after a short pause until
// ctx is done.
func stream(ctx context.Context, client *rpc.Client, req adapter.Request, ch chan<- candle.Bar) {
	q := rpc.SubscribeQuery{Symbol: req.Symbol, Exchange: req.Exchange, Interval: req.Interval}
	for {
		err := recvAll(ctx, client, q, ch)
		if ctx.Err() != nil {
			return
		}
		logger.Log.Warn("stream ended, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func recvAll(ctx context.Context, client *rpc.Client, q rpc.SubscribeQuery, ch chan<- candle.Bar) error {
	s, err := client.Subscribe(ctx, q)
	if err != nil {
		return err
	}
	for {
		u, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case ch <- u.Bar:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
