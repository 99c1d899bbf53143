// Package lockmgr provides single-writer mutual exclusion per deployment
// stage. The lease is persisted so it survives process crashes; a crashed
// deployment leaves its lock behind as evidence, and recovery is always an
// explicit action.
package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/infra"
	"github.com/slipway-sh/slipway/internal/repository"
)

// DefaultTTL is sized to outlast the longest expected deployment, so an
// unexpired lock reliably means another deployment may still be running.
const DefaultTTL = 60 * time.Minute

type Manager struct {
	locks  repository.LockRepository
	prober infra.StackLockProber
	ttl    time.Duration
}

func NewManager(locks repository.LockRepository, prober infra.StackLockProber, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{locks: locks, prober: prober, ttl: ttl}
}

// Acquire takes the deployment lock for a stage. It fails with
// LockHeldError while a non-expired lock exists, and with ErrLockHeld when
// the infrastructure tool reports its own state lock. An expired lock does
// not block acquisition; it is superseded by the new lease.
//
// This is synchronous check-then-act. The narrow race between check and
// save is accepted: deployments are human-paced, and the infra tool's own
// lock backstops correctness.
func (m *Manager) Acquire(ctx context.Context, stage string) (*entity.DeploymentLock, error) {
	now := time.Now()
	existing, err := m.locks.Get(ctx, stage)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !existing.IsExpired(now) {
		return nil, &entity.LockHeldError{Stage: stage, Remaining: existing.Remaining(now)}
	}
	if m.IsExternalStateLocked(ctx, stage) {
		return nil, fmt.Errorf("stage %q: infrastructure state lock is held: %w", stage, entity.ErrLockHeld)
	}
	lock := &entity.DeploymentLock{
		Stage:     stage,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	return m.locks.Save(ctx, lock)
}

// Release deletes the persisted lock. It is idempotent: releasing a lock
// that is already gone succeeds. Callers release on success only; a failed
// deployment intentionally leaves its lock behind.
func (m *Manager) Release(ctx context.Context, lock *entity.DeploymentLock) error {
	if lock == nil {
		return nil
	}
	return m.locks.Delete(ctx, lock.Stage)
}

// IsExternalStateLocked probes the infrastructure tool's own lock. Probe
// failures deliberately read as unlocked: a broken probe must not block
// deployments, and the tool itself still rejects conflicting operations.
func (m *Manager) IsExternalStateLocked(ctx context.Context, stage string) bool {
	locked, err := m.prober.IsLocked(ctx, stage)
	if err != nil {
		return false
	}
	return locked
}

// ClearExternalLock forcibly clears the infra tool's state lock. Recovery
// path only; never called automatically.
func (m *Manager) ClearExternalLock(ctx context.Context, stage string) error {
	return m.prober.ClearLock(ctx, stage)
}

// Get returns the persisted lock for a stage, expired or not.
func (m *Manager) Get(ctx context.Context, stage string) (*entity.DeploymentLock, error) {
	lock, err := m.locks.Get(ctx, stage)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &entity.NotFoundError{Kind: "deployment lock", ID: stage}
	}
	return lock, err
}

// List returns every persisted lock.
func (m *Manager) List(ctx context.Context) ([]*entity.DeploymentLock, error) {
	return m.locks.List(ctx)
}

// StaleLocks returns locks whose expiry has passed. They are reported as
// reclaimable, never auto-deleted; a human (or explicit automation)
// releases them.
func (m *Manager) StaleLocks(ctx context.Context) ([]*entity.DeploymentLock, error) {
	locks, err := m.locks.List(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var stale []*entity.DeploymentLock
	for _, lock := range locks {
		if lock.IsExpired(now) {
			stale = append(stale, lock)
		}
	}
	return stale, nil
}
