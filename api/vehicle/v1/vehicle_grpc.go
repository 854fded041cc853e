// Package v1 contains the gRPC binding of sovd.vehicle.v1.VehicleService.
//
// The messages are google.protobuf.Struct values, so the service descriptor is
// maintained by hand next to vehicle.proto instead of being generated.
package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName                                  = "sovd.vehicle.v1.VehicleService"
	VehicleService_ExecuteCommand_FullMethodName = "/sovd.vehicle.v1.VehicleService/ExecuteCommand"
)

// VehicleServiceClient is the client API for VehicleService.
type VehicleServiceClient interface {
	ExecuteCommand(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type vehicleServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewVehicleServiceClient(cc grpc.ClientConnInterface) VehicleServiceClient {
	return &vehicleServiceClient{cc}
}

func (c *vehicleServiceClient) ExecuteCommand(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := c.cc.NewStream(ctx, &VehicleService_ServiceDesc.Streams[0], VehicleService_ExecuteCommand_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// VehicleServiceServer is the server API for VehicleService.
type VehicleServiceServer interface {
	ExecuteCommand(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedVehicleServiceServer can be embedded for forward compatibility.
type UnimplementedVehicleServiceServer struct{}

func (UnimplementedVehicleServiceServer) ExecuteCommand(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Errorf(codes.Unimplemented, "method ExecuteCommand not implemented")
}

func RegisterVehicleServiceServer(s grpc.ServiceRegistrar, srv VehicleServiceServer) {
	s.RegisterService(&VehicleService_ServiceDesc, srv)
}

func _VehicleService_ExecuteCommand_Handler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(VehicleServiceServer).ExecuteCommand(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// VehicleService_ServiceDesc is the grpc.ServiceDesc for VehicleService.
var VehicleService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VehicleServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ExecuteCommand",
			Handler:       _VehicleService_ExecuteCommand_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "api/vehicle/v1/vehicle.proto",
}
