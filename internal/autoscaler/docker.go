package autoscaler

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"

	"github.com/sheetflow/sheetflow/internal/config"
)

const stackLabel = "com.docker.stack.namespace"

// SwarmOrchestrator implements Orchestrator on a Docker Swarm manager.
type SwarmOrchestrator struct {
	cli   client.APIClient
	stack string
}

// NewSwarmOrchestrator connects to the Docker daemon from the environment
// (DOCKER_HOST et al).
func NewSwarmOrchestrator(cfg config.Config) (*SwarmOrchestrator, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("op=autoscaler.NewSwarmOrchestrator: %w", err)
	}
	return &SwarmOrchestrator{cli: cli, stack: cfg.StackName}, nil
}

// ListServices returns the opted-in services of the configured stack with
// desired and running replica counts.
func (o *SwarmOrchestrator) ListServices(ctx context.Context) ([]Service, error) {
	args := filters.NewArgs(
		filters.Arg("label", LabelEnabled+"=true"),
		filters.Arg("label", stackLabel+"="+o.stack),
	)
	list, err := o.cli.ServiceList(ctx, types.ServiceListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("op=autoscaler.ListServices: %w", err)
	}
	out := make([]Service, 0, len(list))
	for _, s := range list {
		var desired uint64
		if s.Spec.Mode.Replicated != nil && s.Spec.Mode.Replicated.Replicas != nil {
			desired = *s.Spec.Mode.Replicated.Replicas
		}
		running, err := o.runningTasks(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Service{
			ID:      s.ID,
			Name:    s.Spec.Name,
			Labels:  s.Spec.Labels,
			Current: desired,
			Running: running,
		})
	}
	return out, nil
}

func (o *SwarmOrchestrator) runningTasks(ctx context.Context, serviceID string) (uint64, error) {
	tasks, err := o.listDesiredRunning(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	var running uint64
	for _, t := range tasks {
		if t.Status.State == swarm.TaskStateRunning {
			running++
		}
	}
	return running, nil
}

func (o *SwarmOrchestrator) listDesiredRunning(ctx context.Context, serviceID string) ([]swarm.Task, error) {
	args := filters.NewArgs(
		filters.Arg("service", serviceID),
		filters.Arg("desired-state", "running"),
	)
	tasks, err := o.cli.TaskList(ctx, types.TaskListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("op=autoscaler.listTasks service=%s: %w", serviceID, err)
	}
	return tasks, nil
}

// Scale sets the desired replica count of a replicated service.
func (o *SwarmOrchestrator) Scale(ctx context.Context, serviceID string, replicas uint64) error {
	svc, _, err := o.cli.ServiceInspectWithRaw(ctx, serviceID, types.ServiceInspectOptions{})
	if err != nil {
		return fmt.Errorf("op=autoscaler.Scale inspect service=%s: %w", serviceID, err)
	}
	if svc.Spec.Mode.Replicated == nil {
		return fmt.Errorf("op=autoscaler.Scale service=%s: not a replicated service", serviceID)
	}
	svc.Spec.Mode.Replicated.Replicas = &replicas
	if _, err := o.cli.ServiceUpdate(ctx, serviceID, svc.Version, svc.Spec, types.ServiceUpdateOptions{}); err != nil {
		return fmt.Errorf("op=autoscaler.Scale update service=%s: %w", serviceID, err)
	}
	return nil
}

// RecoverStaleTasks forces a service update when tasks are desired-running
// but stuck in another state, so the scheduler replaces them.
func (o *SwarmOrchestrator) RecoverStaleTasks(ctx context.Context, serviceID string) (int, error) {
	tasks, err := o.listDesiredRunning(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	stale := 0
	for _, t := range tasks {
		if t.Status.State != swarm.TaskStateRunning {
			stale++
		}
	}
	if stale == 0 {
		return 0, nil
	}
	svc, _, err := o.cli.ServiceInspectWithRaw(ctx, serviceID, types.ServiceInspectOptions{})
	if err != nil {
		return 0, fmt.Errorf("op=autoscaler.RecoverStaleTasks inspect service=%s: %w", serviceID, err)
	}
	svc.Spec.TaskTemplate.ForceUpdate++
	if _, err := o.cli.ServiceUpdate(ctx, serviceID, svc.Version, svc.Spec, types.ServiceUpdateOptions{}); err != nil {
		return 0, fmt.Errorf("op=autoscaler.RecoverStaleTasks update service=%s: %w", serviceID, err)
	}
	return stale, nil
}

// Close releases the underlying Docker client.
func (o *SwarmOrchestrator) Close() error {
	if c, ok := o.cli.(*client.Client); ok {
		return c.Close()
	}
	return nil
}
