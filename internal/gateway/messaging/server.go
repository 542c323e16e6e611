package messaging

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// Server exposes the messaging surface over gRPC.
type Server struct {
	cfg config.Config
	mgr *WorkerManager
	srv *grpc.Server
}

// NewServer builds the gateway server and registers the service.
func NewServer(cfg config.Config, mgr *WorkerManager) *Server {
	srv := grpc.NewServer(grpc.ForceServerCodec(rpc.JSONCodec{}))
	rpc.RegisterMessagingServer(srv, NewService(cfg, mgr))
	return &Server{cfg: cfg, mgr: mgr, srv: srv}
}

// Serve listens on the configured port and blocks until Stop.
func (s *Server) Serve() error {
	addr := fmt.Sprintf(":%d", s.cfg.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("op=messaging.serve addr=%s: %w", addr, err)
	}
	slog.Info("messaging gateway listening", slog.String("addr", addr))
	return s.srv.Serve(lis)
}

// Stop stops the workers first so streams drain, then the RPC server.
func (s *Server) Stop() {
	s.mgr.StopWorkers()
	s.srv.GracefulStop()
}
