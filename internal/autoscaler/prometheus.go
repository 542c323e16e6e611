package autoscaler

import (
	"context"
	"fmt"
	"time"

	papi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusBackend answers instant queries against a Prometheus server.
type PrometheusBackend struct {
	api promv1.API
}

// NewPrometheusBackend builds a backend for the given server address.
func NewPrometheusBackend(address string) (*PrometheusBackend, error) {
	cli, err := papi.NewClient(papi.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("op=autoscaler.NewPrometheusBackend: %w", err)
	}
	return &PrometheusBackend{api: promv1.NewAPI(cli)}, nil
}

// Query runs an instant query and averages the resulting vector. A scalar
// result is returned as-is; an empty result reads as zero load.
func (b *PrometheusBackend) Query(ctx context.Context, expr string) (float64, error) {
	val, _, err := b.api.Query(ctx, expr, time.Now())
	if err != nil {
		return 0, fmt.Errorf("op=autoscaler.Query expr=%q: %w", expr, err)
	}
	switch v := val.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		var sum float64
		for _, sample := range v {
			sum += float64(sample.Value)
		}
		return sum / float64(len(v)), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("op=autoscaler.Query expr=%q: unexpected result type %s", expr, val.Type())
	}
}
