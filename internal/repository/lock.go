package repository

import (
	"context"
	"errors"

	"github.com/slipway-sh/slipway/internal/entity"
	"gorm.io/gorm"
)

type LockRepository interface {
	Save(ctx context.Context, lock *entity.DeploymentLock) (*entity.DeploymentLock, error)
	Get(ctx context.Context, stage string) (*entity.DeploymentLock, error)
	List(ctx context.Context) ([]*entity.DeploymentLock, error)
	Delete(ctx context.Context, stage string) error
}

type lockRepositoryImpl struct {
	db *gorm.DB
}

func NewLockRepository(db *gorm.DB) LockRepository {
	return &lockRepositoryImpl{db: db}
}

// Save upserts the lock record keyed by stage.
func (r *lockRepositoryImpl) Save(ctx context.Context, lock *entity.DeploymentLock) (*entity.DeploymentLock, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[Lock](tx).Where("stage = ?", lock.Stage).Delete(ctx); err != nil {
			return err
		}
		var model Lock
		model.FromEntity(lock)
		return gorm.G[Lock](tx).Create(ctx, &model)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, lock.Stage)
}

// Get finds the lock record for a stage.
func (r *lockRepositoryImpl) Get(ctx context.Context, stage string) (*entity.DeploymentLock, error) {
	found, err := gorm.G[Lock](r.db).Where("stage = ?", stage).First(ctx)
	if err != nil {
		return nil, err
	}
	return found.ToEntity(), nil
}

// List returns every persisted lock, active or stale.
func (r *lockRepositoryImpl) List(ctx context.Context) ([]*entity.DeploymentLock, error) {
	founds, err := gorm.G[Lock](r.db).Order("stage").Find(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*entity.DeploymentLock, len(founds))
	for i, f := range founds {
		result[i] = f.ToEntity()
	}
	return result, nil
}

// Delete removes the lock record for a stage. Deleting an absent record is
// not an error, which makes lock release idempotent.
func (r *lockRepositoryImpl) Delete(ctx context.Context, stage string) error {
	_, err := gorm.G[Lock](r.db).Where("stage = ?", stage).Delete(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
