package autoscaler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/config"
)

// Service is the orchestrator-neutral view of a scalable service.
type Service struct {
	ID      string
	Name    string
	Labels  map[string]string
	Current uint64 // desired replicas
	Running uint64 // tasks actually in the running state
}

// Orchestrator abstracts the container platform.
type Orchestrator interface {
	ListServices(ctx context.Context) ([]Service, error)
	Scale(ctx context.Context, serviceID string, replicas uint64) error
	// RecoverStaleTasks nudges the orchestrator to reschedule tasks that
	// are desired-running but stuck in another state. Returns how many
	// stale tasks were found.
	RecoverStaleTasks(ctx context.Context, serviceID string) (int, error)
}

// MetricsBackend answers instant queries with a single scalar.
type MetricsBackend interface {
	Query(ctx context.Context, expr string) (float64, error)
}

// Autoscaler is the control loop.
type Autoscaler struct {
	cfg     config.Config
	orch    Orchestrator
	metrics MetricsBackend

	lastScale map[string]time.Time
	now       func() time.Time
}

// New constructs a control loop over the given orchestrator and metrics
// backend.
func New(cfg config.Config, orch Orchestrator, metrics MetricsBackend) *Autoscaler {
	return &Autoscaler{
		cfg:       cfg,
		orch:      orch,
		metrics:   metrics,
		lastScale: map[string]time.Time{},
		now:       time.Now,
	}
}

// Run ticks every CheckInterval until the context is cancelled.
func (a *Autoscaler) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				slog.Error("autoscaler tick failed", "error", err)
			}
		}
	}
}

// Tick evaluates every opted-in service once.
func (a *Autoscaler) Tick(ctx context.Context) error {
	services, err := a.orch.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("op=autoscaler.Tick: %w", err)
	}
	for _, svc := range services {
		if !Enabled(svc.Labels) {
			continue
		}
		if err := a.evaluate(ctx, svc); err != nil {
			slog.Warn("service evaluation failed", "service", svc.Name, "error", err)
		}
	}
	return nil
}

func (a *Autoscaler) evaluate(ctx context.Context, svc Service) error {
	policy := ParsePolicy(svc.Labels)
	metric, err := a.metrics.Query(ctx, a.queryFor(svc.Name, policy))
	if err != nil {
		return fmt.Errorf("query metric for %s: %w", svc.Name, err)
	}

	gap := int64(svc.Current) - int64(svc.Running)
	cooldownActive := a.now().Sub(a.lastScale[svc.ID]) < a.cfg.CooldownPeriod
	d := decide(policy, svc.Current, gap, metric, cooldownActive)

	switch d.Action {
	case ActionScaleUp, ActionDown:
		if err := a.orch.Scale(ctx, svc.ID, d.Target); err != nil {
			return fmt.Errorf("scale %s to %d: %w", svc.Name, d.Target, err)
		}
		a.lastScale[svc.ID] = a.now()
		observability.ScaleEventsTotal.WithLabelValues(svc.Name, string(d.Action)).Inc()
		slog.Info("scaled service",
			"service", svc.Name,
			"direction", string(d.Action),
			"replicas", d.Target,
			"metric", metric,
			"reason", d.Reason,
		)
	case ActionRecover:
		n, err := a.orch.RecoverStaleTasks(ctx, svc.ID)
		if err != nil {
			return fmt.Errorf("recover tasks for %s: %w", svc.Name, err)
		}
		if n > 0 {
			observability.ScaleEventsTotal.WithLabelValues(svc.Name, string(ActionRecover)).Inc()
			slog.Info("recovered stale tasks", "service", svc.Name, "tasks", n)
		}
	case ActionNone:
		slog.Debug("no scaling action", "service", svc.Name, "metric", metric, "reason", d.Reason)
	}
	return nil
}

// queryFor builds the PromQL expression for a service. Custom queries win;
// a %s or %q verb, when present, receives the service name.
func (a *Autoscaler) queryFor(serviceName string, p Policy) string {
	if p.CustomQuery != "" {
		if strings.Contains(p.CustomQuery, "%s") || strings.Contains(p.CustomQuery, "%q") {
			return fmt.Sprintf(p.CustomQuery, serviceName)
		}
		return p.CustomQuery
	}
	window := promWindow(a.cfg.MetricWindow)
	if p.Metric == "memory" {
		return fmt.Sprintf(
			`avg(container_memory_usage_bytes{container_label_com_docker_swarm_service_name=%q}`+
				` / container_spec_memory_limit_bytes{container_label_com_docker_swarm_service_name=%q}) * 100`,
			serviceName, serviceName,
		)
	}
	return fmt.Sprintf(
		`avg(rate(container_cpu_usage_seconds_total{container_label_com_docker_swarm_service_name=%q}[%s])) * 100`,
		serviceName, window,
	)
}

// promWindow renders a duration as a PromQL range selector (30s, 1m, 5m).
func promWindow(d time.Duration) string {
	if d <= 0 {
		d = time.Minute
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}
