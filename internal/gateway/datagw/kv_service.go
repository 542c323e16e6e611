package datagw

import (
	"context"
	"time"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/gateway/connmgr"
	"github.com/sheetflow/sheetflow/internal/gateway/retry"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// KVService implements rpc.KVServer over the managed Redis connection.
type KVService struct {
	mgr   *connmgr.Manager
	retry config.RetryConfig
}

// NewKVService builds the KV surface.
func NewKVService(mgr *connmgr.Manager, retryCfg config.RetryConfig) *KVService {
	return &KVService{mgr: mgr, retry: retryCfg}
}

func (s *KVService) GetKeys(ctx context.Context, in *rpc.KeysRequest) (*rpc.KeysResponse, error) {
	var keys []string
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		kv, err := s.mgr.Redis(ctx, force)
		if err != nil {
			return err
		}
		keys, err = kv.Keys(ctx, in.Pattern)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.KeysResponse{Keys: keys}, nil
}

func (s *KVService) Set(ctx context.Context, in *rpc.KVSetRequest) (*rpc.Empty, error) {
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		kv, err := s.mgr.Redis(ctx, force)
		if err != nil {
			return err
		}
		return kv.Set(ctx, in.Key, in.Value, time.Duration(in.TTLSeconds)*time.Second)
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.Empty{}, nil
}

func (s *KVService) Get(ctx context.Context, in *rpc.KVGetRequest) (*rpc.KVGetResponse, error) {
	var (
		value string
		found bool
	)
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		kv, err := s.mgr.Redis(ctx, force)
		if err != nil {
			return err
		}
		value, found, err = kv.Get(ctx, in.Key)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.KVGetResponse{Value: value, Found: found}, nil
}

func (s *KVService) Delete(ctx context.Context, in *rpc.KVDeleteRequest) (*rpc.KVDeleteResponse, error) {
	var deleted int64
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		kv, err := s.mgr.Redis(ctx, force)
		if err != nil {
			return err
		}
		deleted, err = kv.Delete(ctx, in.Keys)
		return err
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.KVDeleteResponse{Deleted: deleted}, nil
}

func (s *KVService) Ping(ctx context.Context, _ *rpc.Empty) (*rpc.PingResponse, error) {
	err := retry.Execute(ctx, s.retry, func(ctx context.Context, force bool) error {
		kv, err := s.mgr.Redis(ctx, force)
		if err != nil {
			return err
		}
		return kv.Ping(ctx)
	})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.PingResponse{Status: "ok"}, nil
}

func (s *KVService) GetCache(ctx context.Context, _ *rpc.Empty) (*rpc.CacheResponse, error) {
	kv, err := s.mgr.Redis(ctx, false)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &rpc.CacheResponse{Entries: kv.Cache()}, nil
}

func (s *KVService) ClearCache(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	kv, err := s.mgr.Redis(ctx, false)
	if err != nil {
		return nil, statusFromError(err)
	}
	kv.ClearCache()
	return &rpc.Empty{}, nil
}
