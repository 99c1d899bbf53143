package repository

import (
	"context"

	"github.com/slipway-sh/slipway/internal/entity"
	"gorm.io/gorm"
)

// ShiftStateRepository is the keyed store behind the traffic shifter.
// deploymentID is the stable join key; implementations may keep state in
// memory or persist it.
type ShiftStateRepository interface {
	Save(ctx context.Context, state *entity.TrafficShiftState) error
	Get(ctx context.Context, deploymentID string) (*entity.TrafficShiftState, error)
	Delete(ctx context.Context, deploymentID string) error
}

type shiftStateRepositoryImpl struct {
	db *gorm.DB
}

func NewShiftStateRepository(db *gorm.DB) ShiftStateRepository {
	return &shiftStateRepositoryImpl{db: db}
}

// Save upserts the shift state keyed by deploymentID.
func (r *shiftStateRepositoryImpl) Save(ctx context.Context, state *entity.TrafficShiftState) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[ShiftState](tx).Where("deployment_id = ?", state.DeploymentID).Delete(ctx); err != nil {
			return err
		}
		var model ShiftState
		model.FromEntity(state)
		return gorm.G[ShiftState](tx).Create(ctx, &model)
	})
}

// Get finds the shift state for a deployment.
func (r *shiftStateRepositoryImpl) Get(ctx context.Context, deploymentID string) (*entity.TrafficShiftState, error) {
	found, err := gorm.G[ShiftState](r.db).Where("deployment_id = ?", deploymentID).First(ctx)
	if err != nil {
		return nil, err
	}
	return found.ToEntity(), nil
}

// Delete clears the shift state for a deployment.
func (r *shiftStateRepositoryImpl) Delete(ctx context.Context, deploymentID string) error {
	_, err := gorm.G[ShiftState](r.db).Where("deployment_id = ?", deploymentID).Delete(ctx)
	return err
}
