package datagw

import (
	"context"

	"github.com/sheetflow/sheetflow/internal/adapter/repo/postgres"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/gateway/connmgr"
	"github.com/sheetflow/sheetflow/internal/gateway/retry"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// DocumentsService implements rpc.DocumentsServer over the managed
// Postgres pool.
type DocumentsService struct {
	mgr   *connmgr.Manager
	retry config.RetryConfig
}

// NewDocumentsService builds the documents surface.
func NewDocumentsService(mgr *connmgr.Manager, retryCfg config.RetryConfig) *DocumentsService {
	return &DocumentsService{mgr: mgr, retry: retryCfg}
}

func (s *DocumentsService) repo(ctx context.Context, force bool) (*postgres.SchemaRepo, error) {
	pool, err := s.mgr.Pool(ctx, force)
	if err != nil {
		return nil, err
	}
	return postgres.NewSchemaRepo(pool), nil
}

func (s *DocumentsService) Ping(ctx context.Context, _ *rpc.Empty) (*rpc.PingResponse, error) {
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		r, err := s.repo(ctx, force)
		if err != nil {
			return err
		}
		return r.Ping(ctx)
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.PingResponse{Status: "ok"}, nil
}

func (s *DocumentsService) upsert(ctx context.Context, in *rpc.SchemaUpsertRequest) (*rpc.SchemaMutationResponse, error) {
	var outcome string
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		r, err := s.repo(ctx, force)
		if err != nil {
			return err
		}
		outcome, err = r.Insert(ctx, in.ImportName, in.Schema)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.SchemaMutationResponse{Status: outcome}, nil
}

func (s *DocumentsService) InsertOneSchema(ctx context.Context, in *rpc.SchemaUpsertRequest) (*rpc.SchemaMutationResponse, error) {
	return s.upsert(ctx, in)
}

// UpdateOneJSONSchema shares the insert path: the repository upserts and
// reports created, no_change or updated.
func (s *DocumentsService) UpdateOneJSONSchema(ctx context.Context, in *rpc.SchemaUpsertRequest) (*rpc.SchemaMutationResponse, error) {
	return s.upsert(ctx, in)
}

func (s *DocumentsService) CountAllDocuments(ctx context.Context, _ *rpc.Empty) (*rpc.CountResponse, error) {
	var n int64
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		r, err := s.repo(ctx, force)
		if err != nil {
			return err
		}
		n, err = r.Count(ctx)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.CountResponse{Count: n}, nil
}

func (s *DocumentsService) FindJSONSchema(ctx context.Context, in *rpc.ImportNameRequest) (*rpc.SchemaDocResponse, error) {
	var doc domain.JSONSchemaDoc
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		r, err := s.repo(ctx, force)
		if err != nil {
			return err
		}
		doc, err = r.Find(ctx, in.ImportName)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	out := rpc.SchemaDocToWire(doc)
	return &out, nil
}

func (s *DocumentsService) DeleteOneJSONSchema(ctx context.Context, in *rpc.ImportNameRequest) (*rpc.SchemaMutationResponse, error) {
	var outcome string
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		r, err := s.repo(ctx, force)
		if err != nil {
			return err
		}
		outcome, err = r.Delete(ctx, in.ImportName)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.SchemaMutationResponse{Status: outcome}, nil
}

func (s *DocumentsService) DeleteImportName(ctx context.Context, in *rpc.ImportNameRequest) (*rpc.Empty, error) {
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		r, err := s.repo(ctx, force)
		if err != nil {
			return err
		}
		return r.DeleteImportName(ctx, in.ImportName)
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.Empty{}, nil
}
