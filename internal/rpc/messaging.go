package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// MessagingServiceName is the streaming gateway's service name on the wire.
const MessagingServiceName = "sheetflow.gateway.Messaging"

// MessageSender is the server side of a message stream.
type MessageSender interface {
	Send(*MessageWire) error
	Context() context.Context
}

// MessagingServer is the streaming gateway surface.
type MessagingServer interface {
	StreamSchemaMessages(in *StreamRequest, stream MessageSender) error
	StreamValidationMessages(in *StreamRequest, stream MessageSender) error
	GetMessagingParams(ctx context.Context, in *Empty) (*MessagingParamsResponse, error)
	GetRoutingKeySchemas(ctx context.Context, in *RoutingKeyRequest) (*RoutingKeyResponse, error)
	GetRoutingKeyValidations(ctx context.Context, in *RoutingKeyRequest) (*RoutingKeyResponse, error)
}

type messageSendStream struct {
	grpc.ServerStream
}

func (s *messageSendStream) Send(m *MessageWire) error { return s.ServerStream.SendMsg(m) }

func streamHandler(call func(srv any, in *StreamRequest, stream MessageSender) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		in := new(StreamRequest)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return call(srv, in, &messageSendStream{stream})
	}
}

// MessagingServiceDesc wires the messaging surface into a grpc.Server.
var MessagingServiceDesc = grpc.ServiceDesc{
	ServiceName: MessagingServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMessagingParams", Handler: unary("/"+MessagingServiceName+"/GetMessagingParams",
			func(srv any, ctx context.Context, in *Empty) (*MessagingParamsResponse, error) {
				return srv.(MessagingServer).GetMessagingParams(ctx, in)
			})},
		{MethodName: "GetRoutingKeySchemas", Handler: unary("/"+MessagingServiceName+"/GetRoutingKeySchemas",
			func(srv any, ctx context.Context, in *RoutingKeyRequest) (*RoutingKeyResponse, error) {
				return srv.(MessagingServer).GetRoutingKeySchemas(ctx, in)
			})},
		{MethodName: "GetRoutingKeyValidations", Handler: unary("/"+MessagingServiceName+"/GetRoutingKeyValidations",
			func(srv any, ctx context.Context, in *RoutingKeyRequest) (*RoutingKeyResponse, error) {
				return srv.(MessagingServer).GetRoutingKeyValidations(ctx, in)
			})},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "StreamSchemaMessages",
			Handler: streamHandler(func(srv any, in *StreamRequest, stream MessageSender) error {
				return srv.(MessagingServer).StreamSchemaMessages(in, stream)
			}),
			ServerStreams: true,
		},
		{
			StreamName: "StreamValidationMessages",
			Handler: streamHandler(func(srv any, in *StreamRequest, stream MessageSender) error {
				return srv.(MessagingServer).StreamValidationMessages(in, stream)
			}),
			ServerStreams: true,
		},
	},
}

// RegisterMessagingServer registers the messaging surface.
func RegisterMessagingServer(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&MessagingServiceDesc, srv)
}
