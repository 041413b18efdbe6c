package adapter

import (
	"context"
	"fmt"

	"github.com/thushara2679/trading-alert/model/candle"
)

// Request identifies one historical query.
type Request struct {
	Symbol   string
	Exchange string
	Interval candle.Interval
	Bars     int

	// Extended asks for extended-hours session data instead of the regular session.
	Extended bool
}

// Key is the cache/dedup identity of a request.
func (r Request) Key() string {
	return fmt.Sprintf("%s:%s:%s:%d:%t", r.Exchange, r.Symbol, r.Interval, r.Bars, r.Extended)
}

// SymbolInfo is one symbol-search hit.
type SymbolInfo struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Exchange    string `json:"exchange"`
}

// Fetcher defines the contract for historical bar sources.
type Fetcher interface {
	// GetHistory returns up to req.Bars bars, oldest first. On any failure it
	// returns no bars together with the cause; it never panics.
	GetHistory(ctx context.Context, req Request) ([]candle.Bar, error)
}

// Searcher looks up instruments by free text.
type Searcher interface {
	SearchSymbol(ctx context.Context, text, exchange string) ([]SymbolInfo, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) ([]candle.Bar, error)

func (f FetcherFunc) GetHistory(ctx context.Context, req Request) ([]candle.Bar, error) {
	return f(ctx, req)
}
