package catalog

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

type Store interface {
	ServicePackages(ctx context.Context) ([]model.ServicePackage, error)
	SeedServicePackages(ctx context.Context, pkgs []model.ServicePackage) (int, error)
	Officers(ctx context.Context) ([]model.Officer, error)
}

type Service struct {
	store    Store
	defaults []model.ServicePackage
	logger   *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, defaults: model.DefaultServicePackages(), logger: logger}
}

// ServicePackages lists the catalog, seeding the default packages first when
// it is empty.
func (s *Service) ServicePackages(ctx context.Context) ([]model.ServicePackage, error) {
	pkgs, err := s.store.ServicePackages(ctx)
	if err != nil {
		return nil, apperr.Unexpected("list service packages", err)
	}
	if len(pkgs) > 0 {
		return pkgs, nil
	}

	n, err := s.store.SeedServicePackages(ctx, s.defaults)
	if err != nil {
		return nil, apperr.Unexpected("seed service packages", err)
	}
	if n > 0 {
		s.logger.Info("seeded default service packages", "count", n)
	}
	pkgs, err = s.store.ServicePackages(ctx)
	if err != nil {
		return nil, apperr.Unexpected("list service packages", err)
	}
	return pkgs, nil
}

func (s *Service) Officers(ctx context.Context) ([]model.Officer, error) {
	list, err := s.store.Officers(ctx)
	if err != nil {
		return nil, apperr.Unexpected("list officers", err)
	}
	if list == nil {
		list = []model.Officer{}
	}
	return list, nil
}
