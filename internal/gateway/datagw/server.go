package datagw

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/sheetflow/sheetflow/internal/adapter/repo/postgres"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/gateway/connmgr"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// Server bundles the gateway's RPC surfaces over one connection manager.
type Server struct {
	cfg config.Config
	mgr *connmgr.Manager
	srv *grpc.Server
}

// NewServer builds the gateway server and registers its services.
func NewServer(cfg config.Config, mgr *connmgr.Manager) *Server {
	srv := grpc.NewServer(grpc.ForceServerCodec(rpc.JSONCodec{}))
	rpc.RegisterKVServer(srv, NewKVService(mgr, cfg.RedisRetry))
	rpc.RegisterDocumentsServer(srv, NewDocumentsService(mgr, cfg.DocRetry))
	rpc.RegisterTasksServer(srv, NewTasksService(mgr, cfg))
	return &Server{cfg: cfg, mgr: mgr, srv: srv}
}

// Migrate bootstraps the document store tables.
func (s *Server) Migrate(ctx context.Context) error {
	pool, err := s.mgr.Pool(ctx, false)
	if err != nil {
		return err
	}
	return postgres.Migrate(ctx, pool)
}

// Serve listens on the configured port and blocks until Stop.
func (s *Server) Serve() error {
	addr := fmt.Sprintf(":%d", s.cfg.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("op=datagw.serve addr=%s: %w", addr, err)
	}
	slog.Info("data gateway listening", slog.String("addr", addr))
	return s.srv.Serve(lis)
}

// Stop drains in-flight RPCs, then closes the store connections.
func (s *Server) Stop() {
	s.srv.GracefulStop()
	s.mgr.Close()
}
