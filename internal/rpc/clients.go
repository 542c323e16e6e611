package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens a client connection with the JSON content subtype selected for
// every call.
func Dial(target string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("op=rpc.dial target=%s: %w", target, err)
	}
	return conn, nil
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// KVClient calls the KV surface of the data gateway.
type KVClient struct{ cc grpc.ClientConnInterface }

// NewKVClient builds a KVClient over an existing connection.
func NewKVClient(cc grpc.ClientConnInterface) *KVClient { return &KVClient{cc: cc} }

func (c *KVClient) GetKeys(ctx context.Context, in *KeysRequest) (*KeysResponse, error) {
	return invoke[KeysRequest, KeysResponse](ctx, c.cc, "/"+KVServiceName+"/GetKeys", in)
}

func (c *KVClient) Set(ctx context.Context, in *KVSetRequest) (*Empty, error) {
	return invoke[KVSetRequest, Empty](ctx, c.cc, "/"+KVServiceName+"/Set", in)
}

func (c *KVClient) Get(ctx context.Context, in *KVGetRequest) (*KVGetResponse, error) {
	return invoke[KVGetRequest, KVGetResponse](ctx, c.cc, "/"+KVServiceName+"/Get", in)
}

func (c *KVClient) Delete(ctx context.Context, in *KVDeleteRequest) (*KVDeleteResponse, error) {
	return invoke[KVDeleteRequest, KVDeleteResponse](ctx, c.cc, "/"+KVServiceName+"/Delete", in)
}

func (c *KVClient) Ping(ctx context.Context) (*PingResponse, error) {
	return invoke[Empty, PingResponse](ctx, c.cc, "/"+KVServiceName+"/Ping", &Empty{})
}

func (c *KVClient) GetCache(ctx context.Context) (*CacheResponse, error) {
	return invoke[Empty, CacheResponse](ctx, c.cc, "/"+KVServiceName+"/GetCache", &Empty{})
}

func (c *KVClient) ClearCache(ctx context.Context) (*Empty, error) {
	return invoke[Empty, Empty](ctx, c.cc, "/"+KVServiceName+"/ClearCache", &Empty{})
}

// DocumentsClient calls the documents surface of the data gateway.
type DocumentsClient struct{ cc grpc.ClientConnInterface }

// NewDocumentsClient builds a DocumentsClient over an existing connection.
func NewDocumentsClient(cc grpc.ClientConnInterface) *DocumentsClient {
	return &DocumentsClient{cc: cc}
}

func (c *DocumentsClient) Ping(ctx context.Context) (*PingResponse, error) {
	return invoke[Empty, PingResponse](ctx, c.cc, "/"+DocumentsServiceName+"/Ping", &Empty{})
}

func (c *DocumentsClient) InsertOneSchema(ctx context.Context, in *SchemaUpsertRequest) (*SchemaMutationResponse, error) {
	return invoke[SchemaUpsertRequest, SchemaMutationResponse](ctx, c.cc, "/"+DocumentsServiceName+"/InsertOneSchema", in)
}

func (c *DocumentsClient) CountAllDocuments(ctx context.Context) (*CountResponse, error) {
	return invoke[Empty, CountResponse](ctx, c.cc, "/"+DocumentsServiceName+"/CountAllDocuments", &Empty{})
}

func (c *DocumentsClient) FindJSONSchema(ctx context.Context, in *ImportNameRequest) (*SchemaDocResponse, error) {
	return invoke[ImportNameRequest, SchemaDocResponse](ctx, c.cc, "/"+DocumentsServiceName+"/FindJSONSchema", in)
}

func (c *DocumentsClient) UpdateOneJSONSchema(ctx context.Context, in *SchemaUpsertRequest) (*SchemaMutationResponse, error) {
	return invoke[SchemaUpsertRequest, SchemaMutationResponse](ctx, c.cc, "/"+DocumentsServiceName+"/UpdateOneJSONSchema", in)
}

func (c *DocumentsClient) DeleteOneJSONSchema(ctx context.Context, in *ImportNameRequest) (*SchemaMutationResponse, error) {
	return invoke[ImportNameRequest, SchemaMutationResponse](ctx, c.cc, "/"+DocumentsServiceName+"/DeleteOneJSONSchema", in)
}

func (c *DocumentsClient) DeleteImportName(ctx context.Context, in *ImportNameRequest) (*Empty, error) {
	return invoke[ImportNameRequest, Empty](ctx, c.cc, "/"+DocumentsServiceName+"/DeleteImportName", in)
}

// TasksClient calls the tasks surface of the data gateway.
type TasksClient struct{ cc grpc.ClientConnInterface }

// NewTasksClient builds a TasksClient over an existing connection.
func NewTasksClient(cc grpc.ClientConnInterface) *TasksClient { return &TasksClient{cc: cc} }

func (c *TasksClient) SetTaskID(ctx context.Context, in *TaskSetRequest) (*Empty, error) {
	return invoke[TaskSetRequest, Empty](ctx, c.cc, "/"+TasksServiceName+"/SetTaskID", in)
}

func (c *TasksClient) UpdateTaskID(ctx context.Context, in *TaskUpdateRequest) (*Empty, error) {
	return invoke[TaskUpdateRequest, Empty](ctx, c.cc, "/"+TasksServiceName+"/UpdateTaskID", in)
}

func (c *TasksClient) GetTaskID(ctx context.Context, in *TaskGetRequest) (*TaskGetResponse, error) {
	return invoke[TaskGetRequest, TaskGetResponse](ctx, c.cc, "/"+TasksServiceName+"/GetTaskID", in)
}

func (c *TasksClient) GetTasksByImportName(ctx context.Context, in *TasksByImportRequest) (*TasksResponse, error) {
	return invoke[TasksByImportRequest, TasksResponse](ctx, c.cc, "/"+TasksServiceName+"/GetTasksByImportName", in)
}

// MessageReceiver is the client side of a message stream.
type MessageReceiver interface {
	Recv() (*MessageWire, error)
}

type messageRecvStream struct {
	grpc.ClientStream
}

func (s *messageRecvStream) Recv() (*MessageWire, error) {
	m := new(MessageWire)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MessagingClient calls the streaming gateway.
type MessagingClient struct{ cc grpc.ClientConnInterface }

// NewMessagingClient builds a MessagingClient over an existing connection.
func NewMessagingClient(cc grpc.ClientConnInterface) *MessagingClient {
	return &MessagingClient{cc: cc}
}

func (c *MessagingClient) stream(ctx context.Context, desc *grpc.StreamDesc, method string) (MessageReceiver, error) {
	s, err := c.cc.NewStream(ctx, desc, method, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := s.SendMsg(&StreamRequest{}); err != nil {
		return nil, err
	}
	if err := s.CloseSend(); err != nil {
		return nil, err
	}
	return &messageRecvStream{s}, nil
}

func (c *MessagingClient) StreamSchemaMessages(ctx context.Context) (MessageReceiver, error) {
	return c.stream(ctx, &MessagingServiceDesc.Streams[0], "/"+MessagingServiceName+"/StreamSchemaMessages")
}

func (c *MessagingClient) StreamValidationMessages(ctx context.Context) (MessageReceiver, error) {
	return c.stream(ctx, &MessagingServiceDesc.Streams[1], "/"+MessagingServiceName+"/StreamValidationMessages")
}

func (c *MessagingClient) GetMessagingParams(ctx context.Context) (*MessagingParamsResponse, error) {
	return invoke[Empty, MessagingParamsResponse](ctx, c.cc, "/"+MessagingServiceName+"/GetMessagingParams", &Empty{})
}

func (c *MessagingClient) GetRoutingKeySchemas(ctx context.Context, results bool) (*RoutingKeyResponse, error) {
	return invoke[RoutingKeyRequest, RoutingKeyResponse](ctx, c.cc, "/"+MessagingServiceName+"/GetRoutingKeySchemas", &RoutingKeyRequest{Results: results})
}

func (c *MessagingClient) GetRoutingKeyValidations(ctx context.Context, results bool) (*RoutingKeyResponse, error) {
	return invoke[RoutingKeyRequest, RoutingKeyResponse](ctx, c.cc, "/"+MessagingServiceName+"/GetRoutingKeyValidations", &RoutingKeyRequest{Results: results})
}
