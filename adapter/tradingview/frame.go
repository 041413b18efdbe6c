package tradingview

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/segmentio/encoding/json"
)

var (
	framePrefix     = []byte("~m~")
	heartbeatPrefix = []byte("~h~")
)

// maxFrameLen bounds a single declared payload so a corrupt length prefix
// cannot make the decoder buffer without limit.
const maxFrameLen = 16 << 20

// envelope is the JSON body of every outbound protocol message.
type envelope struct {
	Method string `json:"m"`
	Params []any  `json:"p"`
}

// encodeMessage serializes {"m": method, "p": params} without the frame header.
func encodeMessage(method string, params ...any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	b, err := json.Marshal(envelope{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("tradingview: encode %s: %w", method, err)
	}
	return b, nil
}

// encodeFrame wraps payload as ~m~<byte length>~m~<payload>.
func encodeFrame(payload []byte) []byte {
	n := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2*len(framePrefix)+len(n)+len(payload))
	out = append(out, framePrefix...)
	out = append(out, n...)
	out = append(out, framePrefix...)
	return append(out, payload...)
}

// isHeartbeat reports whether a decoded payload is a ~h~<n> keep-alive.
func isHeartbeat(payload []byte) bool { return bytes.HasPrefix(payload, heartbeatPrefix) }

// frameDecoder splits an inbound text stream into frame payloads. A single
// websocket message may carry several frames, and a frame may in principle
// span messages, so undecoded bytes are kept between calls.
type frameDecoder struct {
	buf []byte
}

// Feed appends p and returns every payload completed by it, in order.
// An error means the stream is no longer framed; the buffer is discarded.
func (d *frameDecoder) Feed(p []byte) ([][]byte, error) {
	d.buf = append(d.buf, p...)

	var out [][]byte
	for len(d.buf) > 0 {
		if !bytes.HasPrefix(d.buf, framePrefix) {
			if len(d.buf) < len(framePrefix) && bytes.HasPrefix(framePrefix, d.buf) {
				break // partial header
			}
			return out, d.fail("unframed data %q", clip(d.buf))
		}

		rest := d.buf[len(framePrefix):]
		end := bytes.Index(rest, framePrefix)
		if end < 0 {
			// The closing marker itself may be cut short.
			head := bytes.TrimRight(rest, "~m")
			if !digitsOnly(head) || len(head) > 10 {
				return out, d.fail("bad frame header %q", clip(d.buf))
			}
			break // length not complete yet
		}

		n, err := strconv.Atoi(string(rest[:end]))
		if err != nil || n < 0 || n > maxFrameLen {
			return out, d.fail("bad frame length %q", rest[:end])
		}

		body := rest[end+len(framePrefix):]
		if len(body) < n {
			break // payload not complete yet
		}

		frame := make([]byte, n)
		copy(frame, body[:n])
		out = append(out, frame)
		d.buf = body[n:]
	}
	return out, nil
}

// Pending returns the number of buffered, not yet decoded bytes.
func (d *frameDecoder) Pending() int { return len(d.buf) }

func (d *frameDecoder) fail(format string, args ...any) error {
	d.buf = nil
	return fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
}

func digitsOnly(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func clip(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}
