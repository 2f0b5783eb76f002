package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The availability API carries google.protobuf.Struct messages, so it needs
// no generated stubs. Field names match the HTTP query parameters.
const (
	ServiceName = "bookit.availability.v1.Availability"

	MethodGetAvailableSlots = "/" + ServiceName + "/GetAvailableSlots"
	MethodIsSlotAvailable   = "/" + ServiceName + "/IsSlotAvailable"
)

type AvailabilityServer interface {
	GetAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	IsSlotAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailableSlots", Handler: getAvailableSlotsHandler},
		{MethodName: "IsSlotAvailable", Handler: isSlotAvailableHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookit/availability/v1/availability.proto",
}

func getAvailableSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetAvailableSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetAvailableSlots}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetAvailableSlots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func isSlotAvailableHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).IsSlotAvailable(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodIsSlotAvailable}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).IsSlotAvailable(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
