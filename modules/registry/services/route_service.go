package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
)

type RouteService struct {
	repo route.Repository
}

func NewRouteService(repo route.Repository) *RouteService {
	return &RouteService{repo: repo}
}

func (s *RouteService) GetPaginated(ctx context.Context, params *route.FindParams) ([]route.Route, int64, error) {
	return s.repo.GetPaginated(ctx, params)
}

func (s *RouteService) GetByID(ctx context.Context, id uuid.UUID) (route.Route, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *RouteService) GetByCode(ctx context.Context, resolutionID uuid.UUID, code string) (route.Route, error) {
	return s.repo.GetByCode(ctx, resolutionID, code)
}

func (s *RouteService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
