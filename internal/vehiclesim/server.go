// Package vehiclesim is a stand-in vehicle endpoint that streams canned
// diagnostic responses over the vehicle gRPC service.
package vehiclesim

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/aman-2709/vehicle-sovd-sub000/api/vehicle/v1"
	grpcmw "github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/middleware/grpc"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/tlsutil"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

// Clients ping at most this often.
const minClientPing = 5 * time.Second

type Server struct {
	pb.UnimplementedVehicleServiceServer

	server   *grpc.Server
	options  *options.GrpcOptions
	handlers map[string]Handler
	logger   log.Logger
}

// NewServer creates the simulator with the default command set.
func NewServer(opts *options.GrpcOptions, extra ...grpc.ServerOption) (*Server, error) {
	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             minClientPing,
			PermitWithoutStream: true,
		}),
		grpc.ChainStreamInterceptor(grpcmw.StreamTimeoutInterceptor(opts.MaxStreamDuration)),
	}
	if opts.TLS {
		tlsCfg, err := tlsutil.ServerConfig(opts.CertDir)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}
	serverOpts = append(serverOpts, extra...)

	s := &Server{
		server:   grpc.NewServer(serverOpts...),
		options:  opts,
		handlers: DefaultHandlers(),
		logger:   log.WithName("vehiclesim"),
	}
	pb.RegisterVehicleServiceServer(s.server, s)
	reflection.Register(s.server) // Enable grpc_cli support
	return s, nil
}

// Handle registers or replaces a command handler. Call before Start.
func (s *Server) Handle(name string, h Handler) {
	s.handlers[name] = h
}

// Start serves on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("Starting vehicle simulator", "addr", lis.Addr().String(), "tls", s.options.TLS)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.server.GracefulStop()
		return nil
	}
}

// ExecuteCommand implements v1.VehicleServiceServer.
func (s *Server) ExecuteCommand(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	req, err := pb.RequestFromStruct(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	logger := s.logger.WithValues("command_id", req.CommandID, "command_name", req.CommandName)
	logger.Info("Executing command")

	ctx := stream.Context()
	fault, _ := req.Params[ParamSimulate].(string)
	switch fault {
	case "":
	case FaultTimeout:
		<-ctx.Done()
		return status.FromContextError(ctx.Err()).Err()
	case FaultUnavailable:
		return status.Error(codes.Unavailable, "vehicle offline")
	case FaultMalformed:
		return stream.Send(&structpb.Struct{Fields: map[string]*structpb.Value{
			pb.FieldResponsePayload: structpb.NewStringValue("garbage"),
			pb.FieldSequenceNumber:  structpb.NewNumberValue(0),
		}})
	case FaultTruncated:
	default:
		return status.Errorf(codes.InvalidArgument, "unknown fault %q", fault)
	}

	handler, ok := s.handlers[req.CommandName]
	if !ok {
		return status.Errorf(codes.Unimplemented, "command %q is not supported", req.CommandName)
	}
	payloads, err := handler(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	for i, p := range payloads {
		last := i == len(payloads)-1
		if last && fault == FaultTruncated {
			return nil
		}
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return err
			}
		}

		msg, err := (&pb.Chunk{Payload: p, Sequence: i, IsFinal: last}).ToStruct()
		if err != nil {
			return status.Error(codes.Internal, fmt.Sprintf("encode chunk %d: %v", i, err))
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}
	logger.Info("Command finished", "chunks", len(payloads))
	return nil
}

func (s *Server) pause(ctx context.Context) error {
	if s.options.ChunkInterval <= 0 {
		return nil
	}
	t := time.NewTimer(s.options.ChunkInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
}
