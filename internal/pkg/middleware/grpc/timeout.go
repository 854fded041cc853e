package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// DefaultStreamTimeout caps a server stream whose caller sent no deadline.
const DefaultStreamTimeout = 5 * time.Minute

// StreamTimeoutInterceptor bounds every server stream by d unless the caller
// already set a deadline. A non-positive d uses DefaultStreamTimeout.
func StreamTimeoutInterceptor(d time.Duration) grpc.StreamServerInterceptor {
	if d <= 0 {
		d = DefaultStreamTimeout
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, ok := ss.Context().Deadline(); ok {
			return handler(srv, ss)
		}
		ctx, cancel := context.WithTimeout(ss.Context(), d)
		defer cancel()
		return handler(srv, &boundedStream{ServerStream: ss, ctx: ctx})
	}
}

type boundedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *boundedStream) Context() context.Context {
	return s.ctx
}
