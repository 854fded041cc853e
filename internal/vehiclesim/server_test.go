package vehiclesim

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/aman-2709/vehicle-sovd-sub000/api/vehicle/v1"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/tlsutil"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

func newClient(t *testing.T, s *Server) pb.VehicleServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx, lis)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return pb.NewVehicleServiceClient(conn)
}

func newSim(t *testing.T) *Server {
	t.Helper()
	opts := options.NewGrpcOptions()
	opts.ChunkInterval = 0
	s, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// run executes one command and returns the decoded chunks and the stream error.
func run(ctx context.Context, t *testing.T, c pb.VehicleServiceClient, name string, params map[string]any) ([]*pb.Chunk, error) {
	t.Helper()
	req, err := (&pb.CommandRequest{CommandID: "c-1", VehicleID: "veh-1", CommandName: name, Params: params}).ToStruct()
	if err != nil {
		t.Fatal(err)
	}
	stream, err := c.ExecuteCommand(ctx, req)
	if err != nil {
		return nil, err
	}
	var chunks []*pb.Chunk
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunk, err := pb.ChunkFromStruct(msg)
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func TestExecuteCommand(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		params     map[string]any
		wantChunks int
		wantFinal  bool
		wantCode   codes.Code
		wantErr    error
	}{
		{name: "read dtc", command: "read_dtc", wantChunks: 3, wantFinal: true},
		{name: "clear dtc", command: "clear_dtc", wantChunks: 1, wantFinal: true},
		{name: "read data", command: "read_data", params: map[string]any{"did": "F190"}, wantChunks: 1, wantFinal: true},
		{name: "ecu reset", command: "ecu_reset", wantChunks: 2, wantFinal: true},
		{name: "read data without did", command: "read_data", wantCode: codes.InvalidArgument},
		{name: "unknown command", command: "flash_ecu", wantCode: codes.Unimplemented},
		{name: "vehicle offline", command: "read_dtc", params: map[string]any{ParamSimulate: FaultUnavailable}, wantCode: codes.Unavailable},
		{name: "unknown fault", command: "read_dtc", params: map[string]any{ParamSimulate: "meteor"}, wantCode: codes.InvalidArgument},
		{name: "truncated stream", command: "read_dtc", params: map[string]any{ParamSimulate: FaultTruncated}, wantChunks: 2},
		{name: "malformed chunk", command: "read_dtc", params: map[string]any{ParamSimulate: FaultMalformed}, wantErr: pb.ErrMalformed},
	}

	c := newClient(t, newSim(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			chunks, err := run(ctx, t, c, tt.command, tt.params)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.wantCode != codes.OK:
				if got := status.Code(err); got != tt.wantCode {
					t.Fatalf("code = %v, want %v (err %v)", got, tt.wantCode, err)
				}
				return
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}

			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			for i, ch := range chunks {
				if ch.Sequence != i {
					t.Errorf("chunk %d has sequence %d", i, ch.Sequence)
				}
				if ch.IsFinal != (tt.wantFinal && i == len(chunks)-1) {
					t.Errorf("chunk %d is_final = %t", i, ch.IsFinal)
				}
			}
		})
	}
}

func TestSimulatedTimeoutHonoursDeadline(t *testing.T) {
	c := newClient(t, newSim(t))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := run(ctx, t, c, "read_dtc", map[string]any{ParamSimulate: FaultTimeout})
	if got := status.Code(err); got != codes.DeadlineExceeded {
		t.Fatalf("code = %v, want DeadlineExceeded", got)
	}
}

func TestRequestWithoutNameIsRejected(t *testing.T) {
	c := newClient(t, newSim(t))
	stream, err := c.ExecuteCommand(context.Background(), &structpb.Struct{})
	if err == nil {
		_, err = stream.Recv()
	}
	if got := status.Code(err); got != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", got)
	}
}

func TestCustomHandler(t *testing.T) {
	s := newSim(t)
	s.Handle("read_vin", func(*pb.CommandRequest) ([]map[string]any, error) {
		return []map[string]any{{"vin": "WVWZZZ1JZXW000001"}}, nil
	})
	c := newClient(t, s)

	chunks, err := run(context.Background(), t, c, "read_vin", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Payload["vin"] != "WVWZZZ1JZXW000001" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestTLSRequiresMaterial(t *testing.T) {
	opts := options.NewGrpcOptions()
	opts.TLS = true
	opts.CertDir = t.TempDir()
	if _, err := NewServer(opts); !errors.Is(err, tlsutil.ErrMaterial) {
		t.Fatalf("NewServer() error = %v, want ErrMaterial", err)
	}
}
