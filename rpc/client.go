package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls FeedService.
type Client struct {
	cc    grpc.ClientConnInterface
	close func() error
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(OutgoingTrace()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{cc: conn, close: conn.Close}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc, close: func() error { return nil }}
}

func (c *Client) Close() error { return c.close() }

func (c *Client) GetHistory(ctx context.Context, q HistoryQuery) (History, error) {
	in, err := q.toStruct()
	if err != nil {
		return History{}, fmt.Errorf("rpc: encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getHistoryMethod, in, out); err != nil {
		return History{}, err
	}
	return parseHistory(out), nil
}

// Subscribe opens a bar stream. Cancel ctx to end it.
func (c *Client) Subscribe(ctx context.Context, q SubscribeQuery) (*Stream, error) {
	in, err := q.toStruct()
	if err != nil {
		return nil, fmt.Errorf("rpc: encode request: %w", err)
	}
	cs, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(in); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{cs: cs}, nil
}

// Stream is the client end of a Subscribe call.
type Stream struct {
	cs grpc.ClientStream
}

// Recv blocks for the next update. It returns io.EOF when the server ends
// the stream cleanly.
func (s *Stream) Recv() (Update, error) {
	m := new(structpb.Struct)
	if err := s.cs.RecvMsg(m); err != nil {
		return Update{}, err
	}
	return parseUpdate(m), nil
}
