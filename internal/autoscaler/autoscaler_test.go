package autoscaler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/config"
)

type fakeOrch struct {
	services  []Service
	scaled    map[string]uint64
	recovered map[string]int
	stale     int
}

func (f *fakeOrch) ListServices(context.Context) ([]Service, error) { return f.services, nil }

func (f *fakeOrch) Scale(_ context.Context, id string, replicas uint64) error {
	if f.scaled == nil {
		f.scaled = map[string]uint64{}
	}
	f.scaled[id] = replicas
	return nil
}

func (f *fakeOrch) RecoverStaleTasks(_ context.Context, id string) (int, error) {
	if f.recovered == nil {
		f.recovered = map[string]int{}
	}
	f.recovered[id]++
	return f.stale, nil
}

type fakeMetrics struct {
	value float64
	exprs []string
}

func (f *fakeMetrics) Query(_ context.Context, expr string) (float64, error) {
	f.exprs = append(f.exprs, expr)
	return f.value, nil
}

func testCfg() config.Config {
	return config.Config{
		CheckInterval:  time.Second,
		CooldownPeriod: 2 * time.Minute,
		MetricWindow:   time.Minute,
		StackName:      "sheetflow",
	}
}

func scalable(labels map[string]string) Service {
	base := map[string]string{LabelEnabled: "true"}
	for k, v := range labels {
		base[k] = v
	}
	return Service{ID: "svc1", Name: "sheetflow_worker", Labels: base, Current: 2, Running: 2}
}

func TestParsePolicy_Defaults(t *testing.T) {
	p := ParsePolicy(map[string]string{LabelEnabled: "true"})
	require.Equal(t, PriorityLow, p.Priority)
	require.EqualValues(t, 1, p.MinReplicas)
	require.EqualValues(t, 3, p.MaxReplicas)
	require.Equal(t, "cpu", p.Metric)
	require.Equal(t, 80.0, p.ThresholdUp)
	require.Equal(t, 20.0, p.ThresholdDown)
}

func TestParsePolicy_Labels(t *testing.T) {
	p := ParsePolicy(map[string]string{
		LabelPriority:      "HIGH",
		LabelMinReplicas:   "2",
		LabelMaxReplicas:   "-1",
		LabelMetric:        "memory",
		LabelThresholdUp:   "70",
		LabelThresholdDown: "10",
	})
	require.Equal(t, PriorityHigh, p.Priority)
	require.EqualValues(t, 2, p.MinReplicas)
	require.Equal(t, OnDemand, p.MaxReplicas)
	require.Equal(t, "memory", p.Metric)
	require.Equal(t, 70.0, p.ThresholdUp)
	require.Equal(t, 10.0, p.ThresholdDown)
}

func TestParsePolicy_MalformedFallsBack(t *testing.T) {
	p := ParsePolicy(map[string]string{
		LabelMinReplicas: "lots",
		LabelMaxReplicas: "0",
		LabelMetric:      "disk",
	})
	require.EqualValues(t, 1, p.MinReplicas)
	require.EqualValues(t, 3, p.MaxReplicas)
	require.Equal(t, "cpu", p.Metric)
}

func TestTick_ScaleUpOverThreshold(t *testing.T) {
	orch := &fakeOrch{services: []Service{scalable(nil)}}
	metrics := &fakeMetrics{value: 95}
	a := New(testCfg(), orch, metrics)

	require.NoError(t, a.Tick(context.Background()))
	require.EqualValues(t, 3, orch.scaled["svc1"])
}

func TestTick_ScaleUpCappedAtMax(t *testing.T) {
	svc := scalable(map[string]string{LabelMaxReplicas: "2"})
	orch := &fakeOrch{services: []Service{svc}}
	a := New(testCfg(), orch, &fakeMetrics{value: 95})

	require.NoError(t, a.Tick(context.Background()))
	require.Empty(t, orch.scaled)
}

func TestTick_OnDemandIgnoresMax(t *testing.T) {
	svc := scalable(map[string]string{LabelMaxReplicas: "-1"})
	svc.Current, svc.Running = 50, 50
	orch := &fakeOrch{services: []Service{svc}}
	a := New(testCfg(), orch, &fakeMetrics{value: 95})

	require.NoError(t, a.Tick(context.Background()))
	require.EqualValues(t, 51, orch.scaled["svc1"])
}

func TestTick_ScaleDownFlooredAtMin(t *testing.T) {
	svc := scalable(map[string]string{LabelMinReplicas: "2"})
	orch := &fakeOrch{services: []Service{svc}}
	a := New(testCfg(), orch, &fakeMetrics{value: 5})

	require.NoError(t, a.Tick(context.Background()))
	require.Empty(t, orch.scaled)

	svc.Labels[LabelMinReplicas] = "1"
	orch.services = []Service{svc}
	require.NoError(t, a.Tick(context.Background()))
	require.EqualValues(t, 1, orch.scaled["svc1"])
}

func TestTick_CooldownBlocksSecondScale(t *testing.T) {
	orch := &fakeOrch{services: []Service{scalable(nil)}}
	a := New(testCfg(), orch, &fakeMetrics{value: 95})
	now := time.Now()
	a.now = func() time.Time { return now }

	require.NoError(t, a.Tick(context.Background()))
	require.EqualValues(t, 3, orch.scaled["svc1"])

	// Second tick within the cooldown window must not scale again.
	orch.scaled = nil
	now = now.Add(30 * time.Second)
	require.NoError(t, a.Tick(context.Background()))
	require.Empty(t, orch.scaled)

	// After the cooldown the loop may act again.
	now = now.Add(2 * time.Minute)
	require.NoError(t, a.Tick(context.Background()))
	require.EqualValues(t, 3, orch.scaled["svc1"])
}

func TestTick_HighPriorityGapBypassesCooldown(t *testing.T) {
	svc := scalable(map[string]string{LabelPriority: "high", LabelMaxReplicas: "6"})
	svc.Current, svc.Running = 4, 1
	orch := &fakeOrch{services: []Service{svc}}
	a := New(testCfg(), orch, &fakeMetrics{value: 95})
	a.lastScale["svc1"] = time.Now() // cooldown would normally block

	require.NoError(t, a.Tick(context.Background()))
	// gap is 3, room to max is 2: scale by the smaller.
	require.EqualValues(t, 6, orch.scaled["svc1"])
}

func TestTick_MediumPriorityGapRecoversTasks(t *testing.T) {
	svc := scalable(map[string]string{LabelPriority: "medium"})
	svc.Current, svc.Running = 3, 1
	orch := &fakeOrch{services: []Service{svc}, stale: 2}
	a := New(testCfg(), orch, &fakeMetrics{value: 50})

	require.NoError(t, a.Tick(context.Background()))
	require.Equal(t, 1, orch.recovered["svc1"])
	require.Empty(t, orch.scaled)
}

func TestTick_LowPriorityGapNoAction(t *testing.T) {
	svc := scalable(map[string]string{LabelPriority: "low"})
	svc.Current, svc.Running = 3, 1
	orch := &fakeOrch{services: []Service{svc}}
	a := New(testCfg(), orch, &fakeMetrics{value: 50})

	require.NoError(t, a.Tick(context.Background()))
	require.Empty(t, orch.scaled)
	require.Empty(t, orch.recovered)
}

func TestTick_SkipsOptedOutServices(t *testing.T) {
	svc := Service{ID: "svc2", Name: "other", Labels: map[string]string{}, Current: 1, Running: 1}
	orch := &fakeOrch{services: []Service{svc}}
	metrics := &fakeMetrics{value: 95}
	a := New(testCfg(), orch, metrics)

	require.NoError(t, a.Tick(context.Background()))
	require.Empty(t, metrics.exprs)
	require.Empty(t, orch.scaled)
}

func TestQueryFor(t *testing.T) {
	a := New(testCfg(), &fakeOrch{}, &fakeMetrics{})

	cpu := a.queryFor("sheetflow_worker", Policy{Metric: "cpu"})
	require.Contains(t, cpu, "container_cpu_usage_seconds_total")
	require.Contains(t, cpu, `"sheetflow_worker"`)
	require.Contains(t, cpu, "[1m]")

	mem := a.queryFor("sheetflow_worker", Policy{Metric: "memory"})
	require.Contains(t, mem, "container_memory_usage_bytes")

	custom := a.queryFor("sheetflow_worker", Policy{CustomQuery: `queue_depth{service=%q}`})
	require.Equal(t, `queue_depth{service="sheetflow_worker"}`, custom)

	fixed := a.queryFor("sheetflow_worker", Policy{CustomQuery: `sum(queue_depth)`})
	require.Equal(t, `sum(queue_depth)`, fixed)
}
