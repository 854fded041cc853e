package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
)

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

func TestStreamTimeoutInterceptor(t *testing.T) {
	tests := []struct {
		name         string
		ctx          func() (context.Context, context.CancelFunc)
		limit        time.Duration
		wantBoundLTE time.Duration
	}{
		{
			name:         "no deadline gets the limit",
			ctx:          func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			limit:        time.Second,
			wantBoundLTE: time.Second,
		},
		{
			name: "caller deadline kept",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 50*time.Millisecond)
			},
			limit:        time.Hour,
			wantBoundLTE: 50 * time.Millisecond,
		},
		{
			name:         "zero limit falls back to default",
			ctx:          func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			limit:        0,
			wantBoundLTE: DefaultStreamTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			var seen context.Context
			handler := func(_ any, ss grpc.ServerStream) error {
				seen = ss.Context()
				return nil
			}
			err := StreamTimeoutInterceptor(tt.limit)(nil, &stubStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler)
			if err != nil {
				t.Fatalf("interceptor returned %v", err)
			}
			deadline, ok := seen.Deadline()
			if !ok {
				t.Fatal("handler context has no deadline")
			}
			if remaining := time.Until(deadline); remaining > tt.wantBoundLTE {
				t.Errorf("deadline in %v, want at most %v", remaining, tt.wantBoundLTE)
			}
		})
	}
}

func TestStreamTimeoutInterceptorCancelsAfterHandler(t *testing.T) {
	var seen context.Context
	handler := func(_ any, ss grpc.ServerStream) error {
		seen = ss.Context()
		return nil
	}
	_ = StreamTimeoutInterceptor(time.Hour)(nil, &stubStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, handler)
	if seen.Err() == nil {
		t.Error("bounded context still live after the handler returned")
	}
}
