package tradingview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	b, err := encodeMessage("create_series", "cs_abc", "s1", "s1", "symbol_1", "1H", 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"create_series","p":["cs_abc","s1","s1","symbol_1","1H",3]}`, string(b))

	b, err = encodeMessage("ping")
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"ping","p":[]}`, string(b))
}

func TestEncodeFrame_ByteLength(t *testing.T) {
	assert.Equal(t, "~m~7~m~{\"a\":1}", string(encodeFrame([]byte(`{"a":1}`))))
	// Length counts bytes, not characters.
	assert.Equal(t, "~m~4~m~\"é\"", string(encodeFrame([]byte(`"é"`))))
}

func TestFrameDecoder(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single frame",
			chunks: []string{`~m~7~m~{"a":1}`},
			want:   []string{`{"a":1}`},
		},
		{
			name:   "several frames in one message",
			chunks: []string{`~m~7~m~{"a":1}~m~4~m~~h~3~m~2~m~[]`},
			want:   []string{`{"a":1}`, `~h~3`, `[]`},
		},
		{
			name:   "payload split across messages",
			chunks: []string{`~m~7~m~{"a`, `":1}`},
			want:   []string{`{"a":1}`},
		},
		{
			name:   "header split across messages",
			chunks: []string{`~m`, `~1`, `0~m~{"m":"xy"}`, `~m~2~m~{}`},
			want:   []string{`{"m":"xy"}`, `{}`},
		},
		{
			name:   "closing marker split across messages",
			chunks: []string{`~m~2~`, `m~[]`},
			want:   []string{`[]`},
		},
		{
			name:   "payload containing frame marker",
			chunks: []string{`~m~9~m~"~m~1~m~"`},
			want:   []string{`"~m~1~m~"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dec frameDecoder
			var got []string
			for _, c := range tt.chunks {
				out, err := dec.Feed([]byte(c))
				require.NoError(t, err)
				for _, p := range out {
					got = append(got, string(p))
				}
			}
			assert.Equal(t, tt.want, got)
			assert.Zero(t, dec.Pending())
		})
	}
}

func TestFrameDecoder_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unframed text", `hello`},
		{"non numeric length", `~m~ab~m~{}`},
		{"negative length", `~m~-1~m~{}`},
		{"oversized length", `~m~99999999999~m~`},
		{"runaway header", `~m~12345678901234`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dec frameDecoder
			_, err := dec.Feed([]byte(tt.input))
			assert.ErrorIs(t, err, ErrProtocol)
			assert.Zero(t, dec.Pending())
		})
	}
}

func TestFrameDecoder_KeepsFramesBeforeError(t *testing.T) {
	var dec frameDecoder
	out, err := dec.Feed([]byte(`~m~2~m~{}garbage`))
	assert.ErrorIs(t, err, ErrProtocol)
	require.Len(t, out, 1)
	assert.Equal(t, "{}", string(out[0]))
}

func TestIsHeartbeat(t *testing.T) {
	assert.True(t, isHeartbeat([]byte("~h~12")))
	assert.False(t, isHeartbeat([]byte(`{"m":"~h~"}`)))
}
