// Package canary composes the traffic shifter with health-threshold
// evaluation. It is the only component that decides whether a rollout
// should be halted, and even then the rollback itself is an explicit call
// by the orchestrator, never an automatic side effect of a bad sample.
package canary

import (
	"context"
	"errors"
	"strings"

	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/repository"
	"github.com/slipway-sh/slipway/internal/shifter"
)

const completeReason = "Canary deployment completed"

type Manager struct {
	shifter *shifter.Shifter
	store   repository.CanaryStateRepository
}

func NewManager(s *shifter.Shifter, store repository.CanaryStateRepository) *Manager {
	return &Manager{shifter: s, store: store}
}

// Start begins a canary session: it starts the underlying traffic shift and
// initializes the health state to healthy with zero recorded failures.
func (m *Manager) Start(ctx context.Context, deploymentID, blueVersion, greenVersion string, cfg entity.CanaryConfig) (*entity.CanaryState, error) {
	cfg = cfg.WithDefaults()
	traffic, err := m.shifter.Start(ctx, deploymentID, blueVersion, greenVersion, cfg.Shift)
	if err != nil {
		return nil, err
	}
	state := &entity.CanaryState{
		DeploymentID: deploymentID,
		Config:       cfg,
		TrafficState: traffic,
		Status:       entity.CanaryStatusHealthy,
	}
	if err := m.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// State returns the canary state with a fresh traffic snapshot.
func (m *Manager) State(ctx context.Context, deploymentID string) (*entity.CanaryState, error) {
	state, err := m.store.Get(ctx, deploymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &entity.NotFoundError{Kind: "canary", ID: deploymentID}
	}
	if err != nil {
		return nil, err
	}
	traffic, err := m.shifter.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	state.TrafficState = traffic
	return state, nil
}

// UpdateMetrics evaluates one health snapshot against the configured
// thresholds. Consecutive violating snapshots accumulate; at the configured
// failure threshold count the state flips to unhealthy and ShouldRollback
// is set. A single clean snapshot resets the counter, so one noisy sample
// never triggers a rollback on its own. A rolled-back session only records
// the sample: the status stays rolled-back and no new rollback is armed
// until clear plus a fresh Start.
func (m *Manager) UpdateMetrics(ctx context.Context, deploymentID string, metrics entity.HealthMetrics) (*entity.CanaryState, error) {
	state, err := m.State(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	state.CurrentMetrics = &metrics

	if state.Status == entity.CanaryStatusRolledBack {
		if err := m.store.Save(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}

	violations := evaluateThresholds(state.Config.RollbackOn, metrics)
	switch {
	case len(violations) == 0:
		state.HealthCheckFailures = 0
		state.Status = entity.CanaryStatusHealthy
	default:
		state.HealthCheckFailures++
		if state.HealthCheckFailures >= state.Config.FailureThresholdCount {
			state.ShouldRollback = true
			state.Status = entity.CanaryStatusUnhealthy
			state.RollbackReason = strings.Join(violations, "; ")
		} else {
			state.Status = entity.CanaryStatusDegraded
		}
	}

	if err := m.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// AdvanceTraffic applies the next increment if one remains. When the shift
// is already at its final percentage this is a no-op; callers should invoke
// Complete instead.
func (m *Manager) AdvanceTraffic(ctx context.Context, deploymentID, reason string) (*entity.CanaryState, error) {
	state, err := m.State(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	target, ok, err := m.shifter.NextTarget(ctx, deploymentID, state.Config.Shift)
	if err != nil {
		return nil, err
	}
	if !ok {
		return state, nil
	}
	traffic, err := m.shifter.UpdateTraffic(ctx, deploymentID, target, reason)
	if err != nil {
		return nil, err
	}
	state.TrafficState = traffic
	if err := m.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Rollback resets traffic to 0% green and marks the session rolled back.
// It is the expected follow-up after ShouldRollback is observed, and is
// equally legal as a manual abort at any point.
func (m *Manager) Rollback(ctx context.Context, deploymentID, reason string) (*entity.CanaryState, error) {
	state, err := m.State(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	traffic, err := m.shifter.Rollback(ctx, deploymentID, reason)
	if err != nil {
		return nil, err
	}
	state.TrafficState = traffic
	state.Status = entity.CanaryStatusRolledBack
	state.ShouldRollback = false
	state.RollbackReason = reason
	if err := m.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Complete forces traffic to 100% green. This is the terminal success path.
func (m *Manager) Complete(ctx context.Context, deploymentID string) (*entity.CanaryState, error) {
	state, err := m.State(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	traffic, err := m.shifter.UpdateTraffic(ctx, deploymentID, 100, completeReason)
	if err != nil {
		return nil, err
	}
	state.TrafficState = traffic
	state.Status = entity.CanaryStatusHealthy
	if err := m.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// ReadyForProgression reports whether the configured increment interval has
// elapsed since the last traffic change.
func (m *Manager) ReadyForProgression(ctx context.Context, deploymentID string) (bool, error) {
	state, err := m.State(ctx, deploymentID)
	if err != nil {
		return false, err
	}
	return m.shifter.ReadyForNextIncrement(ctx, deploymentID, state.Config.Shift.IncrementInterval)
}

// Summary is the shift summary extended with the canary health dimension.
type Summary struct {
	shifter.Summary
	HealthStatus        entity.CanaryStatus `json:"health_status"`
	HealthCheckFailures int                 `json:"health_check_failures"`
	ShouldRollback      bool                `json:"should_rollback"`
	RollbackReason      string              `json:"rollback_reason,omitempty"`
}

func (m *Manager) Summary(ctx context.Context, deploymentID string) (*Summary, error) {
	state, err := m.State(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	shiftSummary, err := m.shifter.Summary(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Summary:             *shiftSummary,
		HealthStatus:        state.Status,
		HealthCheckFailures: state.HealthCheckFailures,
		ShouldRollback:      state.ShouldRollback,
		RollbackReason:      state.RollbackReason,
	}, nil
}

// Clear removes both the canary record and its traffic state. A fresh
// Start is required before the deploymentID can be used again.
func (m *Manager) Clear(ctx context.Context, deploymentID string) error {
	if err := m.shifter.Clear(ctx, deploymentID); err != nil {
		return err
	}
	return m.store.Delete(ctx, deploymentID)
}
