package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/slipway-sh/slipway/internal/shifter"
)

type GetTrafficStatusUsecase interface {
	Execute(ctx context.Context, deploymentID string) (*shifter.Summary, error)
}

type getTrafficStatusUsecaseImpl struct {
	shifter *shifter.Shifter
}

// Execute implements GetTrafficStatusUsecase.
func (g *getTrafficStatusUsecaseImpl) Execute(ctx context.Context, deploymentID string) (*shifter.Summary, error) {
	return g.shifter.Summary(ctx, deploymentID)
}

func NewGetTrafficStatusUsecase(injector *do.Injector) (GetTrafficStatusUsecase, error) {
	return &getTrafficStatusUsecaseImpl{
		shifter: do.MustInvoke[*shifter.Shifter](injector),
	}, nil
}
