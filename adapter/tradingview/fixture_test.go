package tradingview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

const testOrigin = "https://data.tradingview.com"

// wsFixture is a scripted data endpoint. It records every inbound message and
// calls reply once the client has finished its handshake.
type wsFixture struct {
	srv *httptest.Server

	mu         sync.Mutex
	origin     string
	payloads   []string
	heartbeats []string
}

func newWSFixture(t *testing.T, reply func(ws *websocket.Conn)) *wsFixture {
	t.Helper()
	f := &wsFixture{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.origin = r.Header.Get("Origin")
		f.mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var dec frameDecoder
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			payloads, _ := dec.Feed(msg)
			for _, p := range payloads {
				f.mu.Lock()
				if isHeartbeat(p) {
					f.heartbeats = append(f.heartbeats, string(p))
					f.mu.Unlock()
					continue
				}
				f.payloads = append(f.payloads, string(p))
				f.mu.Unlock()

				if gjson.GetBytes(p, "m").String() == "switch_timezone" && reply != nil {
					reply(ws)
				}
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *wsFixture) endpoints() Endpoints {
	e := DefaultEndpoints()
	e.Data = "ws" + strings.TrimPrefix(f.srv.URL, "http")
	e.Origin = testOrigin
	return e
}

func (f *wsFixture) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.payloads))
	for _, p := range f.payloads {
		out = append(out, gjson.Get(p, "m").String())
	}
	return out
}

// message returns the first recorded payload for method.
func (f *wsFixture) message(method string) gjson.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payloads {
		if gjson.Get(p, "m").String() == method {
			return gjson.Parse(p)
		}
	}
	return gjson.Result{}
}

func (f *wsFixture) gotHeartbeats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.heartbeats...)
}

func (f *wsFixture) gotOrigin() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.origin
}

func (f *wsFixture) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithEndpoints(f.endpoints()),
		WithSettleDelay(0),
		WithConnectRate(0, 0),
		WithTimeout(5 * time.Second),
	}
	return New(context.Background(), append(base, opts...)...)
}

// sendFrames writes all payloads framed into a single websocket message.
func sendFrames(t *testing.T, ws *websocket.Conn, payloads ...string) {
	var msg []byte
	for _, p := range payloads {
		msg = append(msg, encodeFrame([]byte(p))...)
	}
	assert.NoError(t, ws.WriteMessage(websocket.TextMessage, msg))
}

const (
	scenarioUpdate = `{"m":"timescale_update","p":["cs_fixture",{"s1":{"node":"fixture","s":[` +
		`{"i":0,"v":[1700000000,100,105,98,103,5000]},` +
		`{"i":1,"v":[1700003600,103,108,101,107,6200]},` +
		`{"i":2,"v":[1700007200,107,110,104,109,4800]}],"ns":{"d":"","indexes":[]},"t":"s1","lbs":{}}}]}`
	seriesCompleted = `{"m":"series_completed","p":["cs_fixture","s1","streaming","s1_1"]}`
)
