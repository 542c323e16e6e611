package messaging

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sheetflow/sheetflow/internal/adapter/broker"
	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/rpc"
)

// Service implements rpc.MessagingServer over the worker manager's buffers.
type Service struct {
	cfg config.Config
	mgr *WorkerManager
}

// NewService builds the messaging surface.
func NewService(cfg config.Config, mgr *WorkerManager) *Service {
	return &Service{cfg: cfg, mgr: mgr}
}

// stream drains a worker's message stream into the RPC stream until the
// client goes away or the worker stops.
func (s *Service) stream(name string, w *broker.Worker, out rpc.MessageSender) error {
	observability.StreamSubscribers.WithLabelValues(name).Inc()
	defer observability.StreamSubscribers.WithLabelValues(name).Dec()

	next := w.MessageStream(s.cfg.StreamTimeout, true)
	for {
		select {
		case <-out.Context().Done():
			return nil
		default:
		}
		msg, ok := next()
		if !ok {
			return nil
		}
		if msg == nil {
			continue // quiet period; re-check client liveness
		}
		wire := rpc.MessageToWire(*msg)
		if err := out.Send(&wire); err != nil {
			return status.Errorf(codes.Internal, "op=messaging.stream %s: %v", name, err)
		}
	}
}

func (s *Service) StreamSchemaMessages(_ *rpc.StreamRequest, out rpc.MessageSender) error {
	return s.stream("schemas", s.mgr.Schemas(), out)
}

func (s *Service) StreamValidationMessages(_ *rpc.StreamRequest, out rpc.MessageSender) error {
	return s.stream("validations", s.mgr.Validations(), out)
}

func (s *Service) GetMessagingParams(_ context.Context, _ *rpc.Empty) (*rpc.MessagingParamsResponse, error) {
	return &rpc.MessagingParamsResponse{
		Exchange: s.cfg.BrokerExchange,
		Queues: map[string]string{
			"schemas":             s.cfg.QueueSchemas,
			"validations":         s.cfg.QueueValidations,
			"schemas_results":     s.cfg.QueueSchemasResults,
			"validations_results": s.cfg.QueueValidationsResults,
		},
		Bindings: map[string]string{
			s.cfg.QueueSchemas:            s.cfg.BindSchemas,
			s.cfg.QueueValidations:        s.cfg.BindValidations,
			s.cfg.QueueSchemasResults:     s.cfg.BindSchemasResults,
			s.cfg.QueueValidationsResults: s.cfg.BindValidationsResults,
		},
		PrefetchCount: s.cfg.PrefetchCount,
	}, nil
}

func (s *Service) GetRoutingKeySchemas(_ context.Context, in *rpc.RoutingKeyRequest) (*rpc.RoutingKeyResponse, error) {
	if in.Results {
		return &rpc.RoutingKeyResponse{RoutingKey: s.cfg.RoutingKeySchemaResult}, nil
	}
	return &rpc.RoutingKeyResponse{RoutingKey: s.cfg.RoutingKeySchemaUpdate}, nil
}

func (s *Service) GetRoutingKeyValidations(_ context.Context, in *rpc.RoutingKeyRequest) (*rpc.RoutingKeyResponse, error) {
	if in.Results {
		return &rpc.RoutingKeyResponse{RoutingKey: s.cfg.RoutingKeyValidationResult}, nil
	}
	return &rpc.RoutingKeyResponse{RoutingKey: s.cfg.RoutingKeyValidationRequest}, nil
}
