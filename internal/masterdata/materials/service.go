package materials

import (
	"context"

	"github.com/stitchline-erp/stitchline-erp/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Material, error) {
	if id <= 0 {
		return Material{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, material Material) (Material, error) {
	if err := s.validate(material); err != nil {
		return Material{}, err
	}
	return s.repo.Create(ctx, material)
}

func (s *Service) Update(ctx context.Context, id int64, material Material) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(material); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, material)
}

// Deactivate soft-deletes a material. Inventory layers and BOM lines keep
// referencing it for history, so rows are never hard-removed.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, id)
}
