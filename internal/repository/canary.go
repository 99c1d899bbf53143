package repository

import (
	"context"

	"github.com/slipway-sh/slipway/internal/entity"
	"gorm.io/gorm"
)

// CanaryStateRepository stores the health-evaluation side of a canary
// session, keyed by deploymentID. The traffic snapshot is not persisted
// here; it lives in the shift state under the same key.
type CanaryStateRepository interface {
	Save(ctx context.Context, state *entity.CanaryState) error
	Get(ctx context.Context, deploymentID string) (*entity.CanaryState, error)
	Delete(ctx context.Context, deploymentID string) error
}

type canaryStateRepositoryImpl struct {
	db *gorm.DB
}

func NewCanaryStateRepository(db *gorm.DB) CanaryStateRepository {
	return &canaryStateRepositoryImpl{db: db}
}

// Save upserts the canary record keyed by deploymentID.
func (r *canaryStateRepositoryImpl) Save(ctx context.Context, state *entity.CanaryState) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[CanaryRecord](tx).Where("deployment_id = ?", state.DeploymentID).Delete(ctx); err != nil {
			return err
		}
		var model CanaryRecord
		model.FromEntity(state)
		return gorm.G[CanaryRecord](tx).Create(ctx, &model)
	})
}

// Get finds the canary record for a deployment.
func (r *canaryStateRepositoryImpl) Get(ctx context.Context, deploymentID string) (*entity.CanaryState, error) {
	found, err := gorm.G[CanaryRecord](r.db).Where("deployment_id = ?", deploymentID).First(ctx)
	if err != nil {
		return nil, err
	}
	return found.ToEntity(), nil
}

// Delete clears the canary record for a deployment.
func (r *canaryStateRepositoryImpl) Delete(ctx context.Context, deploymentID string) error {
	_, err := gorm.G[CanaryRecord](r.db).Where("deployment_id = ?", deploymentID).Delete(ctx)
	return err
}
