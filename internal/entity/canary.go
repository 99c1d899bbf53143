package entity

import "time"

type CanaryStatus string

const (
	CanaryStatusHealthy    CanaryStatus = "healthy"
	CanaryStatusDegraded   CanaryStatus = "degraded"
	CanaryStatusUnhealthy  CanaryStatus = "unhealthy"
	CanaryStatusRolledBack CanaryStatus = "rolled-back"
)

// DefaultFailureThresholdCount is how many consecutive unhealthy metric
// snapshots are required before a rollback is recommended.
const DefaultFailureThresholdCount = 3

// HealthMetrics is one immutable snapshot from the monitoring collaborator.
// Rates are percentages in [0,100]; latencies are milliseconds.
type HealthMetrics struct {
	Timestamp    time.Time `json:"timestamp"`
	ErrorRate    float64   `json:"error_rate"`
	LatencyP95   float64   `json:"latency_p95"`
	LatencyP99   float64   `json:"latency_p99"`
	LatencyAvg   float64   `json:"latency_avg"`
	SuccessRate  float64   `json:"success_rate"`
	RequestCount int64     `json:"request_count"`
	ErrorCount   int64     `json:"error_count"`
}

// HealthThresholds are optional hard limits on a canary's health signals.
// Nil means no limit for that signal. ErrorRate and the latencies are
// ceilings; SuccessRate is a floor.
type HealthThresholds struct {
	ErrorRate   *float64 `json:"error_rate,omitempty"`
	LatencyP95  *float64 `json:"latency_p95,omitempty"`
	LatencyP99  *float64 `json:"latency_p99,omitempty"`
	SuccessRate *float64 `json:"success_rate,omitempty"`
}

// CanaryConfig is the full policy for one canary session: shift pacing,
// rollback thresholds, and the hysteresis count. HealthChecks lists the
// endpoints the external prober should hit; the core stores but does not
// interpret them.
type CanaryConfig struct {
	Shift                 ShiftConfig      `json:"shift"`
	RollbackOn            HealthThresholds `json:"rollback_on"`
	HealthChecks          []string         `json:"health_checks,omitempty"`
	FailureThresholdCount int              `json:"failure_threshold_count"`
}

func (c CanaryConfig) WithDefaults() CanaryConfig {
	c.Shift = c.Shift.WithDefaults()
	if c.FailureThresholdCount == 0 {
		c.FailureThresholdCount = DefaultFailureThresholdCount
	}
	return c
}

// CanaryState is the health-evaluation state for one deployment's canary
// session. TrafficState is a snapshot owned by the canary manager and
// refreshed through the traffic shifter; it is never mutated directly.
type CanaryState struct {
	DeploymentID        string             `json:"deployment_id"`
	Config              CanaryConfig       `json:"config"`
	TrafficState        *TrafficShiftState `json:"traffic_state"`
	CurrentMetrics      *HealthMetrics     `json:"current_metrics,omitempty"`
	HealthCheckFailures int                `json:"health_check_failures"`
	ShouldRollback      bool               `json:"should_rollback"`
	RollbackReason      string             `json:"rollback_reason,omitempty"`
	Status              CanaryStatus       `json:"status"`
}
