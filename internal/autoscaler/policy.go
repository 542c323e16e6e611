// Package autoscaler implements a label-driven control loop over Docker
// Swarm services. Services opt in with the sheetflow.autoscale=true label
// and describe their scaling policy with further labels; the loop queries
// Prometheus for the configured metric and adjusts replica counts.
package autoscaler

import (
	"fmt"
	"strconv"
	"strings"
)

// Label keys read from the service spec.
const (
	LabelEnabled       = "sheetflow.autoscale"
	LabelPriority      = "sheetflow.autoscale.priority"
	LabelMinReplicas   = "sheetflow.autoscale.min-replicas"
	LabelMaxReplicas   = "sheetflow.autoscale.max-replicas"
	LabelMetric        = "sheetflow.autoscale.metric"
	LabelCustomQuery   = "sheetflow.autoscale.custom-query"
	LabelThresholdUp   = "sheetflow.autoscale.threshold-up"
	LabelThresholdDown = "sheetflow.autoscale.threshold-down"
)

// Priority orders how aggressively a service is recovered and scaled.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// OnDemand as max-replicas lifts the upper bound entirely.
const OnDemand = int64(-1)

// Policy is the per-service scaling configuration extracted from labels.
type Policy struct {
	Priority      Priority
	MinReplicas   int64
	MaxReplicas   int64 // OnDemand means unlimited
	Metric        string
	CustomQuery   string
	ThresholdUp   float64
	ThresholdDown float64
}

// DefaultPolicy is what an opted-in service gets when it carries no policy
// labels beyond the enable flag.
func DefaultPolicy() Policy {
	return Policy{
		Priority:      PriorityLow,
		MinReplicas:   1,
		MaxReplicas:   3,
		Metric:        "cpu",
		ThresholdUp:   80,
		ThresholdDown: 20,
	}
}

// ParsePolicy extracts a Policy from service labels. Unknown or malformed
// label values fall back to the default rather than failing the whole loop.
func ParsePolicy(labels map[string]string) Policy {
	p := DefaultPolicy()
	switch Priority(strings.ToLower(labels[LabelPriority])) {
	case PriorityHigh:
		p.Priority = PriorityHigh
	case PriorityMedium:
		p.Priority = PriorityMedium
	case PriorityLow, "":
		p.Priority = PriorityLow
	}
	if v, err := strconv.ParseInt(labels[LabelMinReplicas], 10, 64); err == nil && v >= 0 {
		p.MinReplicas = v
	}
	if v, err := strconv.ParseInt(labels[LabelMaxReplicas], 10, 64); err == nil && (v > 0 || v == OnDemand) {
		p.MaxReplicas = v
	}
	if m := strings.ToLower(labels[LabelMetric]); m == "cpu" || m == "memory" {
		p.Metric = m
	}
	if q := strings.TrimSpace(labels[LabelCustomQuery]); q != "" {
		p.CustomQuery = q
	}
	if v, err := strconv.ParseFloat(labels[LabelThresholdUp], 64); err == nil && v > 0 {
		p.ThresholdUp = v
	}
	if v, err := strconv.ParseFloat(labels[LabelThresholdDown], 64); err == nil && v >= 0 {
		p.ThresholdDown = v
	}
	if p.MinReplicas < 1 {
		p.MinReplicas = 1
	}
	if p.MaxReplicas != OnDemand && p.MaxReplicas < p.MinReplicas {
		p.MaxReplicas = p.MinReplicas
	}
	return p
}

// Enabled reports whether a service opted in to autoscaling.
func Enabled(labels map[string]string) bool {
	return strings.EqualFold(labels[LabelEnabled], "true")
}

// Action is what the loop decided to do with a service this tick.
type Action string

const (
	ActionNone    Action = "none"
	ActionScaleUp Action = "up"
	ActionDown    Action = "down"
	ActionRecover Action = "recover"
)

// Decision is the outcome of evaluating one service.
type Decision struct {
	Action         Action
	Target         uint64
	BypassCooldown bool
	Reason         string
}

// decide applies the replica-gap policy and the threshold rules. gap is
// desired minus running replicas; cooldownActive is precomputed by the
// caller from the last scale timestamp.
func decide(p Policy, current uint64, gap int64, metric float64, cooldownActive bool) Decision {
	// Replica-gap handling runs before the threshold rules: services that
	// cannot keep their desired replicas running need recovery, not tuning.
	if gap > 0 {
		switch p.Priority {
		case PriorityHigh:
			if metric > p.ThresholdUp {
				step := gap
				if p.MaxReplicas != OnDemand {
					if room := p.MaxReplicas - int64(current); room < step {
						step = room
					}
				}
				if step > 0 {
					return Decision{
						Action:         ActionScaleUp,
						Target:         current + uint64(step),
						BypassCooldown: true,
						Reason:         fmt.Sprintf("replica gap %d under load %.1f", gap, metric),
					}
				}
			}
		case PriorityMedium:
			return Decision{Action: ActionRecover, Reason: fmt.Sprintf("replica gap %d", gap)}
		case PriorityLow:
			// Low priority services ride out the gap.
		}
	}

	if cooldownActive {
		return Decision{Action: ActionNone, Reason: "cooldown"}
	}
	switch {
	case metric > p.ThresholdUp:
		target := int64(current) + 1
		if p.MaxReplicas != OnDemand && target > p.MaxReplicas {
			return Decision{Action: ActionNone, Reason: "at max replicas"}
		}
		return Decision{Action: ActionScaleUp, Target: uint64(target), Reason: fmt.Sprintf("metric %.1f > %.1f", metric, p.ThresholdUp)}
	case metric < p.ThresholdDown:
		target := int64(current) - 1
		if target < p.MinReplicas {
			return Decision{Action: ActionNone, Reason: "at min replicas"}
		}
		return Decision{Action: ActionDown, Target: uint64(target), Reason: fmt.Sprintf("metric %.1f < %.1f", metric, p.ThresholdDown)}
	}
	return Decision{Action: ActionNone, Reason: "within thresholds"}
}
