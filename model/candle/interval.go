package candle

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a bar resolution in the charting backend's notation.
type Interval string

const (
	In1Minute  Interval = "1"
	In3Minute  Interval = "3"
	In5Minute  Interval = "5"
	In15Minute Interval = "15"
	In30Minute Interval = "30"
	In45Minute Interval = "45"
	In1Hour    Interval = "1H"
	In2Hour    Interval = "2H"
	In3Hour    Interval = "3H"
	In4Hour    Interval = "4H"
	InDaily    Interval = "1D"
	InWeekly   Interval = "1W"
	InMonthly  Interval = "1M"
)

var durations = map[Interval]time.Duration{
	In1Minute:  time.Minute,
	In3Minute:  3 * time.Minute,
	In5Minute:  5 * time.Minute,
	In15Minute: 15 * time.Minute,
	In30Minute: 30 * time.Minute,
	In45Minute: 45 * time.Minute,
	In1Hour:    time.Hour,
	In2Hour:    2 * time.Hour,
	In3Hour:    3 * time.Hour,
	In4Hour:    4 * time.Hour,
	InDaily:    24 * time.Hour,
	InWeekly:   7 * 24 * time.Hour,
	InMonthly:  30 * 24 * time.Hour, // approximate
}

// aliases are the application-facing names used in watchlists and configs.
var aliases = map[string]Interval{
	"1m":      In1Minute,
	"3m":      In3Minute,
	"5m":      In5Minute,
	"15m":     In15Minute,
	"30m":     In30Minute,
	"45m":     In45Minute,
	"1h":      In1Hour,
	"2h":      In2Hour,
	"3h":      In3Hour,
	"4h":      In4Hour,
	"1d":      InDaily,
	"daily":   InDaily,
	"1w":      InWeekly,
	"weekly":  InWeekly,
	"monthly": InMonthly,
}

// Duration returns the span of one bar, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration { return durations[i] }

// Valid reports whether i is a known backend interval.
func (i Interval) Valid() bool {
	_, ok := durations[i]
	return ok
}

func (i Interval) String() string { return string(i) }

// ParseInterval accepts either a backend code ("1H", "1D") or an alias
// ("1h", "daily"). "1M" is the backend monthly code; "1m" is one minute.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if iv := Interval(s); iv.Valid() {
		return iv, nil
	}
	if iv, ok := aliases[strings.ToLower(s)]; ok {
		return iv, nil
	}
	return "", fmt.Errorf("candle: unknown interval %q", s)
}
