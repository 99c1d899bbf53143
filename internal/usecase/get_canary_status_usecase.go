package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/slipway-sh/slipway/internal/canary"
)

type GetCanaryStatusUsecase interface {
	Execute(ctx context.Context, deploymentID string) (*canary.Summary, error)
}

type getCanaryStatusUsecaseImpl struct {
	canaryManager *canary.Manager
}

// Execute implements GetCanaryStatusUsecase.
func (g *getCanaryStatusUsecaseImpl) Execute(ctx context.Context, deploymentID string) (*canary.Summary, error) {
	return g.canaryManager.Summary(ctx, deploymentID)
}

func NewGetCanaryStatusUsecase(injector *do.Injector) (GetCanaryStatusUsecase, error) {
	return &getCanaryStatusUsecaseImpl{
		canaryManager: do.MustInvoke[*canary.Manager](injector),
	}, nil
}
