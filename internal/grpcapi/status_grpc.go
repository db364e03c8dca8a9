package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Hand-written service binding. Messages are well-known types, so no
// generated code is needed.

const (
	statusServiceName = "portunus.controller.v1.Status"

	getStatusMethod  = "/" + statusServiceName + "/GetStatus"
	listEventsMethod = "/" + statusServiceName + "/ListEvents"
)

// StatusServer is the read-only status service.
type StatusServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListEvents(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error)
}

type UnimplementedStatusServer struct{}

func (UnimplementedStatusServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedStatusServer) ListEvents(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ListEvents not implemented")
}

func RegisterStatusServer(s grpc.ServiceRegistrar, srv StatusServer) {
	s.RegisterService(&Status_ServiceDesc, srv)
}

type StatusClient interface {
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListEvents(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type statusClient struct {
	cc grpc.ClientConnInterface
}

func NewStatusClient(cc grpc.ClientConnInterface) StatusClient {
	return &statusClient{cc: cc}
}

func (c *statusClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusClient) ListEvents(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listEventsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Status_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Status_ListEvents_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).ListEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listEventsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServer).ListEvents(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

var Status_ServiceDesc = grpc.ServiceDesc{
	ServiceName: statusServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _Status_GetStatus_Handler},
		{MethodName: "ListEvents", Handler: _Status_ListEvents_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "status.proto",
}
