package rpc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/features"
	"github.com/thushara2679/trading-alert/model/candle"
)

// DefaultHistoryBars is used when a history request leaves "bars" unset.
const DefaultHistoryBars = 100

// HistoryQuery is a GetHistory request:
//
//	{"symbol": "AAPL", "exchange": "NASDAQ", "interval": "1h", "bars": 100,
//	 "extended": false, "features": true}
type HistoryQuery struct {
	Request  adapter.Request
	Features bool
}

// SubscribeQuery is a Subscribe request:
//
//	{"symbol": "AAPL", "exchange": "NASDAQ", "interval": "1h"}
type SubscribeQuery struct {
	Symbol   string
	Exchange string
	Interval candle.Interval
}

func (q HistoryQuery) toStruct() (*structpb.Struct, error) {
	r := q.Request
	return structpb.NewStruct(map[string]any{
		"symbol":   r.Symbol,
		"exchange": r.Exchange,
		"interval": r.Interval.String(),
		"bars":     r.Bars,
		"extended": r.Extended,
		"features": q.Features,
	})
}

func parseHistoryQuery(s *structpb.Struct) (HistoryQuery, error) {
	f := s.GetFields()
	symbol := f["symbol"].GetStringValue()
	if symbol == "" {
		return HistoryQuery{}, fmt.Errorf("symbol is required")
	}
	iv, err := candle.ParseInterval(f["interval"].GetStringValue())
	if err != nil {
		return HistoryQuery{}, err
	}
	bars := int(f["bars"].GetNumberValue())
	if bars == 0 {
		bars = DefaultHistoryBars
	}
	if bars < 0 {
		return HistoryQuery{}, fmt.Errorf("bars must be positive, got %d", bars)
	}
	return HistoryQuery{
		Request: adapter.Request{
			Symbol:   symbol,
			Exchange: f["exchange"].GetStringValue(),
			Interval: iv,
			Bars:     bars,
			Extended: f["extended"].GetBoolValue(),
		},
		Features: f["features"].GetBoolValue(),
	}, nil
}

func (q SubscribeQuery) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"symbol":   q.Symbol,
		"exchange": q.Exchange,
		"interval": q.Interval.String(),
	})
}

func parseSubscribeQuery(s *structpb.Struct) (SubscribeQuery, error) {
	f := s.GetFields()
	symbol := f["symbol"].GetStringValue()
	if symbol == "" {
		return SubscribeQuery{}, fmt.Errorf("symbol is required")
	}
	iv, err := candle.ParseInterval(f["interval"].GetStringValue())
	if err != nil {
		return SubscribeQuery{}, err
	}
	return SubscribeQuery{Symbol: symbol, Exchange: f["exchange"].GetStringValue(), Interval: iv}, nil
}

func barValue(b candle.Bar) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"symbol": structpb.NewStringValue(b.Symbol),
		"t":      structpb.NewNumberValue(float64(b.Timestamp)),
		"o":      structpb.NewNumberValue(b.Open),
		"h":      structpb.NewNumberValue(b.High),
		"l":      structpb.NewNumberValue(b.Low),
		"c":      structpb.NewNumberValue(b.Close),
		"v":      structpb.NewNumberValue(b.Volume),
	}})
}

func barFromValue(v *structpb.Value) candle.Bar {
	f := v.GetStructValue().GetFields()
	return candle.Bar{
		Symbol:    f["symbol"].GetStringValue(),
		Timestamp: int64(f["t"].GetNumberValue()),
		Open:      f["o"].GetNumberValue(),
		High:      f["h"].GetNumberValue(),
		Low:       f["l"].GetNumberValue(),
		Close:     f["c"].GetNumberValue(),
		Volume:    f["v"].GetNumberValue(),
	}
}

// historyResponse is {"bars": [bar...], "features": {name: value}}; features
// is present only when requested.
func historyResponse(bars []candle.Bar, set features.Set) *structpb.Struct {
	list := make([]*structpb.Value, len(bars))
	for i, b := range bars {
		list[i] = barValue(b)
	}
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"bars": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
	if set != nil {
		fs := make(map[string]*structpb.Value, len(set))
		for k, v := range set {
			fs[k] = structpb.NewNumberValue(v)
		}
		out.Fields["features"] = structpb.NewStructValue(&structpb.Struct{Fields: fs})
	}
	return out
}

// History is a decoded GetHistory response.
type History struct {
	Bars     []candle.Bar
	Features features.Set
}

func parseHistory(s *structpb.Struct) History {
	var h History
	for _, v := range s.GetFields()["bars"].GetListValue().GetValues() {
		h.Bars = append(h.Bars, barFromValue(v))
	}
	if fs := s.GetFields()["features"].GetStructValue(); fs != nil {
		h.Features = make(features.Set, len(fs.GetFields()))
		for k, v := range fs.GetFields() {
			h.Features[k] = v.GetNumberValue()
		}
	}
	return h
}

// Update is one streamed bar: {"subscription": "NASDAQ:AAPL@1H", "bar": {...}}.
type Update struct {
	Subscription string
	Bar          candle.Bar
}

func updateMessage(sub string, b candle.Bar) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"subscription": structpb.NewStringValue(sub),
		"bar":          barValue(b),
	}}
}

func parseUpdate(s *structpb.Struct) Update {
	f := s.GetFields()
	return Update{Subscription: f["subscription"].GetStringValue(), Bar: barFromValue(f["bar"])}
}
