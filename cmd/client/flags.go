package main

import (
	"github.com/urfave/cli/v2"
)

var (
	addrFlag = &cli.StringFlag{
		Name:    "addr",
		Usage:   "feed service address",
		Value:   "localhost:50051",
		EnvVars: []string{"TVFEED_ADDR"},
	}
	symbolFlag = &cli.StringFlag{
		Name:     "symbol",
		Aliases:  []string{"s"},
		Usage:    "ticker, e.g. AAPL",
		Required: true,
	}
	exchangeFlag = &cli.StringFlag{
		Name:     "exchange",
		Aliases:  []string{"e"},
		Usage:    "exchange code, e.g. NASDAQ",
		Required: true,
	}
	intervalFlag = &cli.StringFlag{
		Name:    "interval",
		Aliases: []string{"i"},
		Usage:   "bar interval: 1, 3, 5, 15, 30, 45, 1H, 2H, 3H, 4H, 1D, 1W, 1M",
		Value:   "1H",
	}
	barsFlag = &cli.IntFlag{
		Name:    "bars",
		Aliases: []string{"n"},
		Usage:   "number of bars",
		Value:   100,
	}
	extendedFlag = &cli.BoolFlag{
		Name:  "extended",
		Usage: "include extended-hours session",
	}
	featuresFlag = &cli.BoolFlag{
		Name:  "features",
		Usage: "also print the derived features of the series",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "debug logging",
	}
)
