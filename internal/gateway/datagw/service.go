// Package datagw serves the data gateway's RPC surfaces: generic KV,
// schema documents and the dual-store tasks repository. Every handler runs
// its store work through the retry wrapper; a retried attempt forces the
// connection manager to re-dial first.
package datagw

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/gateway/retry"
)

// statusFromError translates repository errors to RPC status codes. A
// transient error surviving the retry budget maps to UNAVAILABLE so callers
// know the failure is about connectivity, not their request.
func statusFromError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case retry.Transient(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ttlPolicy builds the KV TTL policy from the config table.
func ttlPolicy(cfg config.Config) domain.TTLPolicy {
	table := make(map[domain.TaskStatus]time.Duration, len(cfg.TaskTTLTable))
	for s, secs := range cfg.TaskTTLTable {
		table[domain.TaskStatus(s)] = time.Duration(secs) * time.Second
	}
	return domain.TTLPolicy{Table: table, Default: cfg.TaskTTLDefault}
}
