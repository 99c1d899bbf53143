package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/repository"
)

type ListLocksUsecase interface {
	Execute(ctx context.Context) ([]*entity.DeploymentLock, error)
}

type listLocksUsecaseImpl struct {
	lockRepository repository.LockRepository
}

// Execute implements ListLocksUsecase.
func (l *listLocksUsecaseImpl) Execute(ctx context.Context) ([]*entity.DeploymentLock, error) {
	return l.lockRepository.List(ctx)
}

func NewListLocksUsecase(injector *do.Injector) (ListLocksUsecase, error) {
	return &listLocksUsecaseImpl{
		lockRepository: do.MustInvoke[repository.LockRepository](injector),
	}, nil
}
