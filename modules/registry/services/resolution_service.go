package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/pkg/composables"
)

type ResolutionService struct {
	repo resolution.Repository
}

func NewResolutionService(repo resolution.Repository) *ResolutionService {
	return &ResolutionService{repo: repo}
}

func (s *ResolutionService) GetPaginated(ctx context.Context, params *resolution.FindParams) ([]resolution.Resolution, int64, error) {
	if params != nil && params.Number != "" {
		params.Number, _ = resolution.CanonicalNumber(params.Number)
	}
	return s.repo.GetPaginated(ctx, params)
}

func (s *ResolutionService) GetByID(ctx context.Context, id uuid.UUID) (resolution.Resolution, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ResolutionService) GetByNumber(ctx context.Context, companyID uuid.UUID, number string) (resolution.Resolution, error) {
	canonical, _ := resolution.CanonicalNumber(number)
	return s.repo.GetByNumber(ctx, companyID, canonical)
}

func (s *ResolutionService) TransitionState(ctx context.Context, id uuid.UUID, to resolution.State, reason string) error {
	return s.repo.TransitionState(ctx, id, to, composables.UseActor(ctx), reason)
}

// MarkExpired sweeps CURRENT resolutions whose validity window closed before
// asOf. Meant to run from a daily scheduler; safe to re-run.
func (s *ResolutionService) MarkExpired(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	return s.repo.MarkExpired(ctx, asOf, composables.UseActor(ctx))
}
