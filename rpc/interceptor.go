package rpc

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/thushara2679/trading-alert/logger"
)

// traceHeader is the metadata key carrying the caller's trace id.
const traceHeader = "x-trace-id"

// TraceUnary puts the incoming trace id, or a new one, into the context under
// logger.TraceIDKey.
func TraceUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(withTrace(ctx), req)
	}
}

// TraceStream is TraceUnary for streams.
func TraceStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &tracedStream{ServerStream: ss, ctx: withTrace(ss.Context())})
	}
}

// RecoverUnary turns a handler panic into codes.Internal.
func RecoverUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, info.FullMethod, r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// RecoverStream turns a stream handler panic into codes.Internal.
func RecoverStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ss.Context(), info.FullMethod, r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}

// OutgoingTrace forwards the context trace id to the server.
func OutgoingTrace() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id, ok := ctx.Value(logger.TraceIDKey).(string); ok && id != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, traceHeader, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func logPanic(ctx context.Context, method string, r any) {
	logger.Error(ctx, "grpc panic",
		zap.String("grpc_method", method),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
}

func withTrace(ctx context.Context) context.Context {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(traceHeader); len(vals) > 0 {
			id = vals[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, logger.TraceIDKey, id)
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }
