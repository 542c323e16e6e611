package datagw

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// Client gives the edge and the workers the domain-level view of the data
// gateway: it implements domain.TaskStore and domain.SchemaRepository over
// the RPC clients and maps status codes back to domain errors.
type Client struct {
	conn  *grpc.ClientConn
	kv    *rpc.KVClient
	docs  *rpc.DocumentsClient
	tasks *rpc.TasksClient
}

// NewClient dials the gateway.
func NewClient(target string) (*Client, error) {
	conn, err := rpc.Dial(target)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:  conn,
		kv:    rpc.NewKVClient(conn),
		docs:  rpc.NewDocumentsClient(conn),
		tasks: rpc.NewTasksClient(conn),
	}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// domainError maps an RPC status back to the domain sentinel the edge and
// workers branch on.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), domain.ErrNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), domain.ErrInvalidArgument)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", st.Message(), domain.ErrConflict)
	case codes.Unavailable:
		return fmt.Errorf("%s: %w", st.Message(), domain.ErrUnavailable)
	default:
		return err
	}
}

// --- domain.TaskStore ---

func (c *Client) Set(ctx context.Context, t domain.Task) error {
	_, err := c.tasks.SetTaskID(ctx, &rpc.TaskSetRequest{Task: rpc.TaskToWire(t)})
	return domainError(err)
}

func (c *Client) Update(ctx context.Context, taskID string, kind domain.TaskKind, field, value string, opts domain.TaskUpdateOpts) error {
	_, err := c.tasks.UpdateTaskID(ctx, &rpc.TaskUpdateRequest{
		TaskID:    taskID,
		Kind:      string(kind),
		Field:     field,
		Value:     value,
		Message:   opts.Message,
		Data:      opts.Data,
		ResetData: opts.ResetData,
	})
	return domainError(err)
}

func (c *Client) Get(ctx context.Context, taskID string, kind domain.TaskKind) (domain.Task, bool, error) {
	resp, err := c.tasks.GetTaskID(ctx, &rpc.TaskGetRequest{TaskID: taskID, Kind: string(kind)})
	if err != nil {
		return domain.Task{}, false, domainError(err)
	}
	if !resp.Found {
		return domain.Task{}, false, nil
	}
	return rpc.TaskFromWire(resp.Task), true, nil
}

func (c *Client) GetByImport(ctx context.Context, importName string, kind domain.TaskKind) ([]domain.Task, error) {
	resp, err := c.tasks.GetTasksByImportName(ctx, &rpc.TasksByImportRequest{ImportName: importName, Kind: string(kind)})
	if err != nil {
		return nil, domainError(err)
	}
	out := make([]domain.Task, 0, len(resp.Tasks))
	for _, w := range resp.Tasks {
		out = append(out, rpc.TaskFromWire(w))
	}
	return out, nil
}

// --- domain.SchemaRepository ---

func (c *Client) Insert(ctx context.Context, importName string, schema map[string]any) (string, error) {
	resp, err := c.docs.InsertOneSchema(ctx, &rpc.SchemaUpsertRequest{ImportName: importName, Schema: schema})
	if err != nil {
		return "", domainError(err)
	}
	return resp.Status, nil
}

func (c *Client) Find(ctx context.Context, importName string) (domain.JSONSchemaDoc, error) {
	resp, err := c.docs.FindJSONSchema(ctx, &rpc.ImportNameRequest{ImportName: importName})
	if err != nil {
		return domain.JSONSchemaDoc{}, domainError(err)
	}
	return rpc.SchemaDocFromWire(*resp), nil
}

func (c *Client) Delete(ctx context.Context, importName string) (string, error) {
	resp, err := c.docs.DeleteOneJSONSchema(ctx, &rpc.ImportNameRequest{ImportName: importName})
	if err != nil {
		return "", domainError(err)
	}
	return resp.Status, nil
}

func (c *Client) DeleteImportName(ctx context.Context, importName string) error {
	_, err := c.docs.DeleteImportName(ctx, &rpc.ImportNameRequest{ImportName: importName})
	return domainError(err)
}

func (c *Client) Count(ctx context.Context) (int64, error) {
	resp, err := c.docs.CountAllDocuments(ctx)
	if err != nil {
		return 0, domainError(err)
	}
	return resp.Count, nil
}

// Ping checks both store surfaces through the gateway.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.kv.Ping(ctx); err != nil {
		return domainError(err)
	}
	if _, err := c.docs.Ping(ctx); err != nil {
		return domainError(err)
	}
	return nil
}
