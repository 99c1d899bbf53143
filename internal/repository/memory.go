package repository

import (
	"context"
	"sync"

	"github.com/slipway-sh/slipway/internal/entity"
)

// In-memory stores for a single long-lived orchestrator process that drives
// the whole canary lifecycle itself. They satisfy the same interfaces as
// the sqlite-backed stores so the state machines never know the difference.

type memoryShiftStateRepository struct {
	mu     sync.Mutex
	states map[string]*entity.TrafficShiftState
}

func NewMemoryShiftStateRepository() ShiftStateRepository {
	return &memoryShiftStateRepository{states: make(map[string]*entity.TrafficShiftState)}
}

func (r *memoryShiftStateRepository) Save(_ context.Context, state *entity.TrafficShiftState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.DeploymentID] = copyShiftState(state)
	return nil
}

func (r *memoryShiftStateRepository) Get(_ context.Context, deploymentID string) (*entity.TrafficShiftState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[deploymentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyShiftState(state), nil
}

func (r *memoryShiftStateRepository) Delete(_ context.Context, deploymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, deploymentID)
	return nil
}

// copyShiftState keeps callers from mutating stored state through shared
// history slices.
func copyShiftState(s *entity.TrafficShiftState) *entity.TrafficShiftState {
	out := *s
	out.History = make([]entity.TrafficShiftEvent, len(s.History))
	copy(out.History, s.History)
	return &out
}

type memoryCanaryStateRepository struct {
	mu     sync.Mutex
	states map[string]*entity.CanaryState
}

func NewMemoryCanaryStateRepository() CanaryStateRepository {
	return &memoryCanaryStateRepository{states: make(map[string]*entity.CanaryState)}
}

func (r *memoryCanaryStateRepository) Save(_ context.Context, state *entity.CanaryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.DeploymentID] = copyCanaryState(state)
	return nil
}

func (r *memoryCanaryStateRepository) Get(_ context.Context, deploymentID string) (*entity.CanaryState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[deploymentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCanaryState(state), nil
}

func (r *memoryCanaryStateRepository) Delete(_ context.Context, deploymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, deploymentID)
	return nil
}

func copyCanaryState(s *entity.CanaryState) *entity.CanaryState {
	out := *s
	if s.CurrentMetrics != nil {
		m := *s.CurrentMetrics
		out.CurrentMetrics = &m
	}
	if s.TrafficState != nil {
		out.TrafficState = copyShiftState(s.TrafficState)
	}
	return &out
}
