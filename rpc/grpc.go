package rpc

import (
	"time"

	grpc_prom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// NewGRPCServer returns a server with the feed's interceptor chain
// (prometheus, panic recovery, trace ids) and keepalive policy installed.
func NewGRPCServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(grpc_prom.UnaryServerInterceptor, RecoverUnary(), TraceUnary()),
		grpc.ChainStreamInterceptor(grpc_prom.StreamServerInterceptor, RecoverStream(), TraceStream()),
	}
	return grpc.NewServer(append(opts, extra...)...)
}
