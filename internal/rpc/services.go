package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Service names as they appear on the wire.
const (
	KVServiceName        = "sheetflow.gateway.KV"
	DocumentsServiceName = "sheetflow.gateway.Documents"
	TasksServiceName     = "sheetflow.gateway.Tasks"
)

// KVServer is the generic key-value surface of the data gateway.
type KVServer interface {
	GetKeys(ctx context.Context, in *KeysRequest) (*KeysResponse, error)
	Set(ctx context.Context, in *KVSetRequest) (*Empty, error)
	Get(ctx context.Context, in *KVGetRequest) (*KVGetResponse, error)
	Delete(ctx context.Context, in *KVDeleteRequest) (*KVDeleteResponse, error)
	Ping(ctx context.Context, in *Empty) (*PingResponse, error)
	GetCache(ctx context.Context, in *Empty) (*CacheResponse, error)
	ClearCache(ctx context.Context, in *Empty) (*Empty, error)
}

// DocumentsServer is the schema-document surface of the data gateway.
type DocumentsServer interface {
	Ping(ctx context.Context, in *Empty) (*PingResponse, error)
	InsertOneSchema(ctx context.Context, in *SchemaUpsertRequest) (*SchemaMutationResponse, error)
	CountAllDocuments(ctx context.Context, in *Empty) (*CountResponse, error)
	FindJSONSchema(ctx context.Context, in *ImportNameRequest) (*SchemaDocResponse, error)
	UpdateOneJSONSchema(ctx context.Context, in *SchemaUpsertRequest) (*SchemaMutationResponse, error)
	DeleteOneJSONSchema(ctx context.Context, in *ImportNameRequest) (*SchemaMutationResponse, error)
	DeleteImportName(ctx context.Context, in *ImportNameRequest) (*Empty, error)
}

// TasksServer is the dual-store task surface of the data gateway.
type TasksServer interface {
	SetTaskID(ctx context.Context, in *TaskSetRequest) (*Empty, error)
	UpdateTaskID(ctx context.Context, in *TaskUpdateRequest) (*Empty, error)
	GetTaskID(ctx context.Context, in *TaskGetRequest) (*TaskGetResponse, error)
	GetTasksByImportName(ctx context.Context, in *TasksByImportRequest) (*TasksResponse, error)
}

// unary adapts a typed method to the grpc.MethodHandler shape the service
// descriptors need. The descriptors are hand-maintained; the JSON codec
// carries the messages.
func unary[Req, Resp any](fullMethod string, call func(srv any, ctx context.Context, in *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		})
	}
}

// KVServiceDesc wires the KV surface into a grpc.Server.
var KVServiceDesc = grpc.ServiceDesc{
	ServiceName: KVServiceName,
	HandlerType: (*KVServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetKeys", Handler: unary("/"+KVServiceName+"/GetKeys",
			func(srv any, ctx context.Context, in *KeysRequest) (*KeysResponse, error) {
				return srv.(KVServer).GetKeys(ctx, in)
			})},
		{MethodName: "Set", Handler: unary("/"+KVServiceName+"/Set",
			func(srv any, ctx context.Context, in *KVSetRequest) (*Empty, error) {
				return srv.(KVServer).Set(ctx, in)
			})},
		{MethodName: "Get", Handler: unary("/"+KVServiceName+"/Get",
			func(srv any, ctx context.Context, in *KVGetRequest) (*KVGetResponse, error) {
				return srv.(KVServer).Get(ctx, in)
			})},
		{MethodName: "Delete", Handler: unary("/"+KVServiceName+"/Delete",
			func(srv any, ctx context.Context, in *KVDeleteRequest) (*KVDeleteResponse, error) {
				return srv.(KVServer).Delete(ctx, in)
			})},
		{MethodName: "Ping", Handler: unary("/"+KVServiceName+"/Ping",
			func(srv any, ctx context.Context, in *Empty) (*PingResponse, error) {
				return srv.(KVServer).Ping(ctx, in)
			})},
		{MethodName: "GetCache", Handler: unary("/"+KVServiceName+"/GetCache",
			func(srv any, ctx context.Context, in *Empty) (*CacheResponse, error) {
				return srv.(KVServer).GetCache(ctx, in)
			})},
		{MethodName: "ClearCache", Handler: unary("/"+KVServiceName+"/ClearCache",
			func(srv any, ctx context.Context, in *Empty) (*Empty, error) {
				return srv.(KVServer).ClearCache(ctx, in)
			})},
	},
}

// DocumentsServiceDesc wires the documents surface into a grpc.Server.
var DocumentsServiceDesc = grpc.ServiceDesc{
	ServiceName: DocumentsServiceName,
	HandlerType: (*DocumentsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary("/"+DocumentsServiceName+"/Ping",
			func(srv any, ctx context.Context, in *Empty) (*PingResponse, error) {
				return srv.(DocumentsServer).Ping(ctx, in)
			})},
		{MethodName: "InsertOneSchema", Handler: unary("/"+DocumentsServiceName+"/InsertOneSchema",
			func(srv any, ctx context.Context, in *SchemaUpsertRequest) (*SchemaMutationResponse, error) {
				return srv.(DocumentsServer).InsertOneSchema(ctx, in)
			})},
		{MethodName: "CountAllDocuments", Handler: unary("/"+DocumentsServiceName+"/CountAllDocuments",
			func(srv any, ctx context.Context, in *Empty) (*CountResponse, error) {
				return srv.(DocumentsServer).CountAllDocuments(ctx, in)
			})},
		{MethodName: "FindJSONSchema", Handler: unary("/"+DocumentsServiceName+"/FindJSONSchema",
			func(srv any, ctx context.Context, in *ImportNameRequest) (*SchemaDocResponse, error) {
				return srv.(DocumentsServer).FindJSONSchema(ctx, in)
			})},
		{MethodName: "UpdateOneJSONSchema", Handler: unary("/"+DocumentsServiceName+"/UpdateOneJSONSchema",
			func(srv any, ctx context.Context, in *SchemaUpsertRequest) (*SchemaMutationResponse, error) {
				return srv.(DocumentsServer).UpdateOneJSONSchema(ctx, in)
			})},
		{MethodName: "DeleteOneJSONSchema", Handler: unary("/"+DocumentsServiceName+"/DeleteOneJSONSchema",
			func(srv any, ctx context.Context, in *ImportNameRequest) (*SchemaMutationResponse, error) {
				return srv.(DocumentsServer).DeleteOneJSONSchema(ctx, in)
			})},
		{MethodName: "DeleteImportName", Handler: unary("/"+DocumentsServiceName+"/DeleteImportName",
			func(srv any, ctx context.Context, in *ImportNameRequest) (*Empty, error) {
				return srv.(DocumentsServer).DeleteImportName(ctx, in)
			})},
	},
}

// TasksServiceDesc wires the tasks surface into a grpc.Server.
var TasksServiceDesc = grpc.ServiceDesc{
	ServiceName: TasksServiceName,
	HandlerType: (*TasksServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetTaskID", Handler: unary("/"+TasksServiceName+"/SetTaskID",
			func(srv any, ctx context.Context, in *TaskSetRequest) (*Empty, error) {
				return srv.(TasksServer).SetTaskID(ctx, in)
			})},
		{MethodName: "UpdateTaskID", Handler: unary("/"+TasksServiceName+"/UpdateTaskID",
			func(srv any, ctx context.Context, in *TaskUpdateRequest) (*Empty, error) {
				return srv.(TasksServer).UpdateTaskID(ctx, in)
			})},
		{MethodName: "GetTaskID", Handler: unary("/"+TasksServiceName+"/GetTaskID",
			func(srv any, ctx context.Context, in *TaskGetRequest) (*TaskGetResponse, error) {
				return srv.(TasksServer).GetTaskID(ctx, in)
			})},
		{MethodName: "GetTasksByImportName", Handler: unary("/"+TasksServiceName+"/GetTasksByImportName",
			func(srv any, ctx context.Context, in *TasksByImportRequest) (*TasksResponse, error) {
				return srv.(TasksServer).GetTasksByImportName(ctx, in)
			})},
	},
}

// RegisterKVServer registers the KV surface.
func RegisterKVServer(s grpc.ServiceRegistrar, srv KVServer) {
	s.RegisterService(&KVServiceDesc, srv)
}

// RegisterDocumentsServer registers the documents surface.
func RegisterDocumentsServer(s grpc.ServiceRegistrar, srv DocumentsServer) {
	s.RegisterService(&DocumentsServiceDesc, srv)
}

// RegisterTasksServer registers the tasks surface.
func RegisterTasksServer(s grpc.ServiceRegistrar, srv TasksServer) {
	s.RegisterService(&TasksServiceDesc, srv)
}
