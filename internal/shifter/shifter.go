// Package shifter tracks the blue/green traffic split for a deployment and
// computes the next step of a gradual rollout. It is pure bookkeeping: the
// percentage it records is decision state, and applying it to real routing
// is the caller's job.
package shifter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/repository"
)

const initialShiftReason = "Initial canary traffic shift"

type Shifter struct {
	store repository.ShiftStateRepository
}

func New(store repository.ShiftStateRepository) *Shifter {
	return &Shifter{store: store}
}

// Start creates the shift state for a deployment at cfg.InitialPercentage.
// Restarting an existing deploymentID replaces its state, matching the
// clear-and-begin-again semantics of a fresh rollout.
func (s *Shifter) Start(ctx context.Context, deploymentID, blueVersion, greenVersion string, cfg entity.ShiftConfig) (*entity.TrafficShiftState, error) {
	cfg = cfg.WithDefaults()
	if err := validatePercentage("initial percentage", cfg.InitialPercentage); err != nil {
		return nil, err
	}
	now := time.Now()
	state := &entity.TrafficShiftState{
		DeploymentID:      deploymentID,
		BlueVersion:       blueVersion,
		GreenVersion:      greenVersion,
		CurrentPercentage: cfg.InitialPercentage,
		Status:            entity.ShiftStatusStarting,
		StartTime:         now,
		LastUpdateTime:    now,
		History: []entity.TrafficShiftEvent{{
			Timestamp:      now,
			FromPercentage: 0,
			ToPercentage:   cfg.InitialPercentage,
			Reason:         initialShiftReason,
			Success:        true,
		}},
	}
	if err := s.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Get returns the current shift state for a deployment.
func (s *Shifter) Get(ctx context.Context, deploymentID string) (*entity.TrafficShiftState, error) {
	state, err := s.store.Get(ctx, deploymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &entity.NotFoundError{Kind: "traffic shift", ID: deploymentID}
	}
	return state, err
}

// NextTarget computes the next percentage step:
// min(current + increment, final). ok is false when the current percentage
// already equals the final percentage, meaning progression is complete, or
// when the shift was rolled back; the returned target may itself equal
// final (the last step).
func (s *Shifter) NextTarget(ctx context.Context, deploymentID string, cfg entity.ShiftConfig) (target int, ok bool, err error) {
	cfg = cfg.WithDefaults()
	state, err := s.Get(ctx, deploymentID)
	if err != nil {
		return 0, false, err
	}
	if state.Status == entity.ShiftStatusRolledBack {
		return 0, false, nil
	}
	if state.CurrentPercentage >= cfg.FinalPercentage {
		return 0, false, nil
	}
	target = state.CurrentPercentage + cfg.IncrementPercentage
	if target > cfg.FinalPercentage {
		target = cfg.FinalPercentage
	}
	return target, true, nil
}

// UpdateTraffic moves the split to targetPercentage and appends an audit
// event. Status becomes completed at 100%, in-progress otherwise. A
// rolled-back shift refuses further updates; only a fresh Start revives
// the deploymentID.
func (s *Shifter) UpdateTraffic(ctx context.Context, deploymentID string, targetPercentage int, reason string) (*entity.TrafficShiftState, error) {
	if err := validatePercentage("target percentage", targetPercentage); err != nil {
		return nil, err
	}
	state, err := s.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if state.Status == entity.ShiftStatusRolledBack {
		return nil, &entity.ValidationError{Field: "status", Msg: "shift is rolled back; start a new shift to move traffic again"}
	}
	now := time.Now()
	state.History = append(state.History, entity.TrafficShiftEvent{
		Timestamp:      now,
		FromPercentage: state.CurrentPercentage,
		ToPercentage:   targetPercentage,
		Reason:         reason,
		Success:        true,
	})
	state.CurrentPercentage = targetPercentage
	state.LastUpdateTime = now
	if targetPercentage == 100 {
		state.Status = entity.ShiftStatusCompleted
	} else {
		state.Status = entity.ShiftStatusInProgress
	}
	if err := s.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Rollback resets the split to 0% green. It is legal in every state and
// idempotent in effect: the terminal state after one call and two calls is
// the same. Rolled-back is terminal; traffic cannot rise again until a new
// Start replaces the state.
func (s *Shifter) Rollback(ctx context.Context, deploymentID, reason string) (*entity.TrafficShiftState, error) {
	state, err := s.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	state.History = append(state.History, entity.TrafficShiftEvent{
		Timestamp:      now,
		FromPercentage: state.CurrentPercentage,
		ToPercentage:   0,
		Reason:         reason,
		Success:        true,
	})
	state.CurrentPercentage = 0
	state.Status = entity.ShiftStatusRolledBack
	state.LastUpdateTime = now
	if err := s.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// ReadyForNextIncrement reports whether at least interval has passed since
// the last traffic change. The caller polls this on its own timer; the
// shifter has no scheduler.
func (s *Shifter) ReadyForNextIncrement(ctx context.Context, deploymentID string, interval time.Duration) (bool, error) {
	state, err := s.Get(ctx, deploymentID)
	if err != nil {
		return false, err
	}
	return time.Since(state.LastUpdateTime) >= interval, nil
}

// Summary is the read-only projection of a shift for reporting.
type Summary struct {
	DeploymentID      string             `json:"deployment_id"`
	BlueVersion       string             `json:"blue_version"`
	GreenVersion      string             `json:"green_version"`
	CurrentPercentage int                `json:"current_percentage"`
	Status            entity.ShiftStatus `json:"status"`
	Elapsed           time.Duration      `json:"elapsed"`
	EventCount        int                `json:"event_count"`
	SuccessfulEvents  int                `json:"successful_events"`
}

func (s *Shifter) Summary(ctx context.Context, deploymentID string) (*Summary, error) {
	state, err := s.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	successful := 0
	for _, ev := range state.History {
		if ev.Success {
			successful++
		}
	}
	return &Summary{
		DeploymentID:      state.DeploymentID,
		BlueVersion:       state.BlueVersion,
		GreenVersion:      state.GreenVersion,
		CurrentPercentage: state.CurrentPercentage,
		Status:            state.Status,
		Elapsed:           time.Since(state.StartTime),
		EventCount:        len(state.History),
		SuccessfulEvents:  successful,
	}, nil
}

// Clear removes the shift state for a deployment.
func (s *Shifter) Clear(ctx context.Context, deploymentID string) error {
	return s.store.Delete(ctx, deploymentID)
}

func validatePercentage(field string, v int) error {
	if v < 0 || v > 100 {
		return &entity.ValidationError{Field: field, Msg: fmt.Sprintf("%d is outside [0,100]", v)}
	}
	return nil
}
