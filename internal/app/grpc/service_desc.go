package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "persistor.v1.Gateway"
	SendMethod       = "/persistor.v1.Gateway/Send"
	StreamMethod     = "/persistor.v1.Gateway/Stream"
	gatewayProtoFile = "persistor/v1/gateway.proto"
)

// GatewayServer is the server API of persistor.v1.Gateway.
type GatewayServer interface {
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stream(*structpb.Struct, GatewayStreamServer) error
}

// GatewayStreamServer is the server side of a Stream call.
type GatewayStreamServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type gatewayStreamServer struct {
	grpc.ServerStream
}

func (s *gatewayStreamServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServer).Send(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GatewayServer).Stream(in, &gatewayStreamServer{stream})
}

// GatewayServiceDesc describes persistor.v1.Gateway for grpc.Server.RegisterService.
var GatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: gatewayProtoFile,
}

func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&GatewayServiceDesc, srv)
}
