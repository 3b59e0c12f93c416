package services

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
)

type CompanyService struct {
	repo company.Repository
}

func NewCompanyService(repo company.Repository) *CompanyService {
	return &CompanyService{repo: repo}
}

func (s *CompanyService) GetPaginated(ctx context.Context, params *company.FindParams) ([]company.Company, int64, error) {
	if params != nil {
		params.RUC = company.NormalizeRUC(params.RUC)
		params.Name = strings.TrimSpace(params.Name)
	}
	return s.repo.GetPaginated(ctx, params)
}

func (s *CompanyService) GetByID(ctx context.Context, id uuid.UUID) (company.Company, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CompanyService) GetByRUC(ctx context.Context, ruc string) (company.Company, error) {
	return s.repo.GetByRUC(ctx, company.NormalizeRUC(ruc))
}

func (s *CompanyService) Create(ctx context.Context, dto *company.CreateDTO) (company.Company, error) {
	if dto == nil {
		return company.Company{}, errors.New("missing dto")
	}
	if fields, ok := dto.Ok(); !ok {
		return company.Company{}, errors.Errorf("invalid company: %v", fields)
	}
	return s.repo.Create(ctx, dto.ToEntity())
}

func (s *CompanyService) Update(ctx context.Context, c company.Company) (company.Company, error) {
	return s.repo.Update(ctx, c)
}

func (s *CompanyService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
