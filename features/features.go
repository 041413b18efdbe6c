// Package features derives the flat feature set fed to the alert model from
// an ordered bar series.
package features

import (
	"math"
	"time"

	"github.com/thushara2679/trading-alert/aggregator"
	"github.com/thushara2679/trading-alert/model/candle"
)

// DefaultWindow is the Z-score look-back in bars.
const DefaultWindow = 60

// Feature names.
const (
	VolZ1H       = "Vol_Z_1H"
	VolZ4H       = "Vol_Z_4H"
	VolZ1D       = "Vol_Z_1D"
	Elasticity1H = "Elasticity_1H"
	DayOfWeek    = "day_of_week"
	HourOfDay    = "hour_of_day"

	// Legacy aliases still read by older model builds.
	VolZ          = "Vol_Z"
	ElasticityKey = "Elasticity"

	Open   = "Open"
	High   = "High"
	Low    = "Low"
	Close  = "Close"
	Volume = "Volume"
)

// Set is a flat name→value feature mapping.
type Set map[string]float64

// Options tune Compute. The zero value uses DefaultWindow and UTC.
type Options struct {
	Window   int
	Location *time.Location
}

func (o Options) window() int {
	if o.Window <= 0 {
		return DefaultWindow
	}
	return o.Window
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Compute builds the full feature set for the newest bar of an hourly series.
// It recomputes everything from bars on each call. Empty input yields every
// key set to 0.
func Compute(bars []candle.Bar, opts Options) Set {
	s := Set{
		VolZ1H: 0, VolZ4H: 0, VolZ1D: 0,
		Elasticity1H: 0, DayOfWeek: 0, HourOfDay: 0,
		VolZ: 0, ElasticityKey: 0,
		Open: 0, High: 0, Low: 0, Close: 0, Volume: 0,
	}
	last, ok := candle.Latest(bars)
	if !ok {
		return s
	}

	w := opts.window()
	s[VolZ1H] = VolumeZScore(volumes(bars), w)
	s[VolZ4H] = VolumeZScore(volumes(aggregator.Resample(bars, 4*time.Hour)), w)
	s[VolZ1D] = VolumeZScore(volumes(aggregator.Resample(bars, 24*time.Hour)), w)
	s[Elasticity1H] = Elasticity(last)

	day, hour := Temporal(last.Timestamp, opts.location())
	s[DayOfWeek] = float64(day)
	s[HourOfDay] = float64(hour)

	s[VolZ] = s[VolZ1H]
	s[ElasticityKey] = s[Elasticity1H]

	s[Open] = last.Open
	s[High] = last.High
	s[Low] = last.Low
	s[Close] = last.Close
	s[Volume] = last.Volume
	return s
}

// VolumeZScore returns (latest − mean) / std over the last min(window, len)
// volumes, using the sample standard deviation. With fewer than two samples
// or zero spread the std is taken as 1.
func VolumeZScore(vols []float64, window int) float64 {
	if len(vols) == 0 {
		return 0
	}
	if window > 0 && len(vols) > window {
		vols = vols[len(vols)-window:]
	}

	n := float64(len(vols))
	var sum float64
	for _, v := range vols {
		sum += v
	}
	mean := sum / n

	std := 1.0
	if len(vols) > 1 {
		var ss float64
		for _, v := range vols {
			d := v - mean
			ss += d * d
		}
		if sd := math.Sqrt(ss / (n - 1)); sd > 0 {
			std = sd
		}
	}

	z := (vols[len(vols)-1] - mean) / std
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return z
}

// Elasticity is the bar's range relative to its close: (high − low) / close.
// A zero close yields 0.
func Elasticity(b candle.Bar) float64 {
	if b.Close == 0 {
		return 0
	}
	return (b.High - b.Low) / b.Close
}

// Temporal returns the weekday index (Monday=0 … Sunday=6) and hour of day of
// ts (Unix ms) in loc.
func Temporal(ts int64, loc *time.Location) (weekday, hour int) {
	if loc == nil {
		loc = time.UTC
	}
	t := time.UnixMilli(ts).In(loc)
	return (int(t.Weekday()) + 6) % 7, t.Hour()
}

func volumes(bars []candle.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
