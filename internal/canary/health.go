package canary

import (
	"fmt"

	"github.com/slipway-sh/slipway/internal/entity"
)

// evaluateThresholds returns one description per violated threshold.
// Only thresholds present in the config are checked; a nil threshold means
// no limit for that signal. Error rate and latencies are ceilings, success
// rate is a floor.
func evaluateThresholds(th entity.HealthThresholds, m entity.HealthMetrics) []string {
	var violations []string
	if th.ErrorRate != nil && m.ErrorRate > *th.ErrorRate {
		violations = append(violations, fmt.Sprintf("error rate %.2f%% exceeds threshold %.2f%%", m.ErrorRate, *th.ErrorRate))
	}
	if th.LatencyP95 != nil && m.LatencyP95 > *th.LatencyP95 {
		violations = append(violations, fmt.Sprintf("p95 latency %.0fms exceeds threshold %.0fms", m.LatencyP95, *th.LatencyP95))
	}
	if th.LatencyP99 != nil && m.LatencyP99 > *th.LatencyP99 {
		violations = append(violations, fmt.Sprintf("p99 latency %.0fms exceeds threshold %.0fms", m.LatencyP99, *th.LatencyP99))
	}
	if th.SuccessRate != nil && m.SuccessRate < *th.SuccessRate {
		violations = append(violations, fmt.Sprintf("success rate %.2f%% below threshold %.2f%%", m.SuccessRate, *th.SuccessRate))
	}
	return violations
}
