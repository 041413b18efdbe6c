// Package rpc exposes the feed over gRPC as tvfeed.v1.FeedService.
//
// Messages are google.protobuf.Struct values, so the service needs no
// generated code: both ends share the descriptor below and the field layout
// documented on each message helper.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "tvfeed.v1.FeedService"

	getHistoryMethod = "/" + serviceName + "/GetHistory"
	subscribeMethod  = "/" + serviceName + "/Subscribe"
)

// FeedServer is the server side of FeedService.
type FeedServer interface {
	// GetHistory answers a history request message with a history response.
	GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Subscribe streams one bar message per newly closed bar until the client
	// goes away.
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetHistory", Handler: getHistoryHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "tvfeed/v1/feed.proto",
}

// RegisterFeedServer attaches srv to s.
func RegisterFeedServer(s grpc.ServiceRegistrar, srv FeedServer) {
	s.RegisterService(&serviceDesc, srv)
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getHistoryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).GetHistory(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FeedServer).Subscribe(in, stream)
}
