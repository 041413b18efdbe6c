package candle

import (
	"fmt"
	"time"
)

// Bar is one OHLCV candle for a symbol. Timestamp is the bar open time in
// Unix milliseconds. Bars are values; a series is ordered by strictly
// increasing Timestamp.
type Bar struct {
	Symbol    string  `json:"symbol" parquet:"symbol"`
	Timestamp int64   `json:"t" parquet:"t"`
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	Volume    float64 `json:"v" parquet:"v"`
}

// Time returns the bar open time in UTC.
func (b Bar) Time() time.Time { return time.UnixMilli(b.Timestamp).UTC() }

func (b Bar) String() string {
	return fmt.Sprintf("%s %s O=%g H=%g L=%g C=%g V=%g",
		b.Symbol, b.Time().Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// Latest returns the newest bar of an ordered series.
func Latest(bars []Bar) (Bar, bool) {
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
