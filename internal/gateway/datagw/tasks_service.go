package datagw

import (
	"context"

	"github.com/sheetflow/sheetflow/internal/adapter/repo/postgres"
	"github.com/sheetflow/sheetflow/internal/adapter/repo/taskstore"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/gateway/connmgr"
	"github.com/sheetflow/sheetflow/internal/gateway/retry"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// TasksService implements rpc.TasksServer over the dual-store repository.
// It touches both stores, so it retries with the merged (max) budget of the
// Redis and document tuples.
type TasksService struct {
	mgr   *connmgr.Manager
	retry config.RetryConfig
	ttl   domain.TTLPolicy
}

// NewTasksService builds the tasks surface.
func NewTasksService(mgr *connmgr.Manager, cfg config.Config) *TasksService {
	return &TasksService{
		mgr:   mgr,
		retry: config.MergeRetry(cfg.RedisRetry, cfg.DocRetry),
		ttl:   ttlPolicy(cfg),
	}
}

func (s *TasksService) store(ctx context.Context, force bool) (*taskstore.Store, error) {
	kv, err := s.mgr.Redis(ctx, force)
	if err != nil {
		return nil, err
	}
	pool, err := s.mgr.Pool(ctx, force)
	if err != nil {
		return nil, err
	}
	return taskstore.New(kv, postgres.NewTaskRepo(pool), s.ttl), nil
}

func (s *TasksService) SetTaskID(ctx context.Context, in *rpc.TaskSetRequest) (*rpc.Empty, error) {
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		st, err := s.store(ctx, force)
		if err != nil {
			return err
		}
		return st.Set(ctx, rpc.TaskFromWire(in.Task))
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.Empty{}, nil
}

func (s *TasksService) UpdateTaskID(ctx context.Context, in *rpc.TaskUpdateRequest) (*rpc.Empty, error) {
	opts := domain.TaskUpdateOpts{Message: in.Message, Data: in.Data, ResetData: in.ResetData}
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		st, err := s.store(ctx, force)
		if err != nil {
			return err
		}
		return st.Update(ctx, in.TaskID, domain.TaskKind(in.Kind), in.Field, in.Value, opts)
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.Empty{}, nil
}

func (s *TasksService) GetTaskID(ctx context.Context, in *rpc.TaskGetRequest) (*rpc.TaskGetResponse, error) {
	var (
		task  domain.Task
		found bool
	)
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		st, err := s.store(ctx, force)
		if err != nil {
			return err
		}
		task, found, err = st.Get(ctx, in.TaskID, domain.TaskKind(in.Kind))
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.TaskGetResponse{Task: rpc.TaskToWire(task), Found: found}, nil
}

func (s *TasksService) GetTasksByImportName(ctx context.Context, in *rpc.TasksByImportRequest) (*rpc.TasksResponse, error) {
	var tasks []domain.Task
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		st, err := s.store(ctx, force)
		if err != nil {
			return err
		}
		tasks, err = st.GetByImport(ctx, in.ImportName, domain.TaskKind(in.Kind))
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	out := &rpc.TasksResponse{}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, rpc.TaskToWire(t))
	}
	return out, nil
}
