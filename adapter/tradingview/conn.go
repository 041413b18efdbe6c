package tradingview

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session holds the identifiers of one protocol session. It belongs to exactly
// one connection and is discarded with it.
type Session struct {
	AuthToken    string
	QuoteSession string
	ChartSession string
}

func newSession(token string) Session {
	return Session{
		AuthToken:    token,
		QuoteSession: sessionID("qs"),
		ChartSession: sessionID("cs"),
	}
}

// sessionID returns prefix_ followed by 12 random lowercase letters.
func sessionID(prefix string) string {
	u := uuid.New()
	b := make([]byte, 12)
	for i := range b {
		b[i] = 'a' + u[i]%26
	}
	return prefix + "_" + string(b)
}

// conn is one dedicated data connection. It is created per fetch and closed
// by the fetch on every exit path; Close is idempotent.
type conn struct {
	ws      *websocket.Conn
	session Session

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// dial opens a data connection with the required Origin header and waits the
// settle delay before returning.
func (c *Client) dial(ctx context.Context) (*conn, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tradingview: connect rate: %w", err)
	}

	header := http.Header{}
	header.Set("Origin", c.endpoints.Origin)

	ws, _, err := c.dialer.DialContext(ctx, c.endpoints.Data, header)
	if err != nil {
		return nil, fmt.Errorf("tradingview: dial: %w", err)
	}
	cn := &conn{ws: ws, session: newSession(c.token)}

	if c.settle > 0 {
		t := time.NewTimer(c.settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			cn.Close()
			return nil, ctx.Err()
		}
	}
	return cn, nil
}

// send writes one framed {"m": method, "p": params} message.
func (cn *conn) send(method string, params ...any) error {
	payload, err := encodeMessage(method, params...)
	if err != nil {
		return err
	}
	if err := cn.writeFrame(payload); err != nil {
		return fmt.Errorf("tradingview: send %s: %w", method, err)
	}
	return nil
}

func (cn *conn) writeFrame(payload []byte) error {
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	return cn.ws.WriteMessage(websocket.TextMessage, encodeFrame(payload))
}

func (cn *conn) read() ([]byte, error) {
	_, msg, err := cn.ws.ReadMessage()
	return msg, err
}

// Close sends a close frame (best effort) and releases the socket.
func (cn *conn) Close() error {
	cn.closeOnce.Do(func() {
		_ = cn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		cn.closeErr = cn.ws.Close()
	})
	return cn.closeErr
}
