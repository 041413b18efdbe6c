package tradingview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushara2679/trading-alert/adapter"
)

func searchClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "AAPL", q.Get("text"))
		assert.Equal(t, "NASDAQ", q.Get("exchange"))
		assert.Equal(t, "en", q.Get("lang"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	e := DefaultEndpoints()
	e.Search = srv.URL + "/symbol_search/"
	return New(context.Background(), WithEndpoints(e))
}

func TestSearchSymbol(t *testing.T) {
	want := []adapter.SymbolInfo{
		{Symbol: "AAPL", Description: "Apple Inc.", Type: "stock", Exchange: "NASDAQ"},
	}

	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"symbol":"<em>AAPL</em>","description":"Apple Inc.","type":"stock","exchange":"NASDAQ"}]`},
		{"wrapped", `{"symbols_remaining":0,"symbols":[{"symbol":"<em>AAPL</em>","description":"Apple Inc.","type":"stock","exchange":"NASDAQ"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := searchClient(t, http.StatusOK, tt.body)
			got, err := c.SearchSymbol(context.Background(), "AAPL", "NASDAQ")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSearchSymbol_Empty(t *testing.T) {
	c := searchClient(t, http.StatusOK, `[]`)
	got, err := c.SearchSymbol(context.Background(), "AAPL", "NASDAQ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchSymbol_Errors(t *testing.T) {
	c := searchClient(t, http.StatusBadGateway, `upstream down`)
	_, err := c.SearchSymbol(context.Background(), "AAPL", "NASDAQ")
	assert.Error(t, err)

	c = searchClient(t, http.StatusOK, `{"symbols":`)
	_, err = c.SearchSymbol(context.Background(), "AAPL", "NASDAQ")
	assert.Error(t, err)
}
