package tradingview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"

	"github.com/thushara2679/trading-alert/adapter"
)

// SearchSymbol queries the symbol-search endpoint for text on exchange.
// The endpoint has answered both with a bare array and with an object holding
// a "symbols" array; either is accepted.
func (c *Client) SearchSymbol(ctx context.Context, text, exchange string) ([]adapter.SymbolInfo, error) {
	u, err := url.Parse(c.endpoints.Search)
	if err != nil {
		return nil, fmt.Errorf("tradingview: parse search url: %w", err)
	}

	q := u.Query()
	q.Set("text", text)
	q.Set("exchange", exchange)
	q.Set("hl", "1")
	q.Set("lang", "en")
	q.Set("domain", "production")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("tradingview: build search request: %w", err)
	}
	req.Header.Set("Origin", c.endpoints.Referer)
	req.Header.Set("Referer", c.endpoints.Referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tradingview: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tradingview: search: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("tradingview: read search response: %w", err)
	}

	raw := body
	if list := gjson.GetBytes(body, "symbols"); list.IsArray() {
		raw = []byte(list.Raw)
	}

	var out []adapter.SymbolInfo
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("tradingview: decode search response: %w", err)
	}
	for i := range out {
		out[i].Symbol = stripHighlight(out[i].Symbol)
		out[i].Description = stripHighlight(out[i].Description)
	}
	return out, nil
}

var highlight = strings.NewReplacer("<em>", "", "</em>", "")

func stripHighlight(s string) string { return highlight.Replace(s) }
