package tradingview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/thushara2679/trading-alert/metrics"
)

// AnonymousToken is the sentinel token for unauthenticated sessions.
const AnonymousToken = "unauthorized_user_token"

// authenticate resolves the token for creds. Any sign-in failure is logged
// and degrades to AnonymousToken.
func (c *Client) authenticate(ctx context.Context, creds *Credentials) string {
	if creds == nil {
		metrics.AuthTotal.WithLabelValues("anonymous").Inc()
		return AnonymousToken
	}

	token, err := c.signIn(ctx, *creds)
	if err != nil {
		c.log.Warn("sign-in failed, continuing with anonymous token",
			zap.String("username", creds.Username), zap.Error(err))
		metrics.AuthTotal.WithLabelValues("anonymous").Inc()
		return AnonymousToken
	}

	metrics.AuthTotal.WithLabelValues("token").Inc()
	return token
}

// signIn posts the form-encoded login and extracts user.auth_token.
func (c *Client) signIn(ctx context.Context, creds Credentials) (string, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	form.Set("remember", "on")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.SignIn, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("tradingview: build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.endpoints.Referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tradingview: sign-in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tradingview: sign-in: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("tradingview: read sign-in response: %w", err)
	}

	tok := gjson.GetBytes(body, "user.auth_token")
	if tok.Type != gjson.String || tok.String() == "" {
		return "", errors.New("tradingview: sign-in response has no user.auth_token")
	}
	return tok.String(), nil
}
