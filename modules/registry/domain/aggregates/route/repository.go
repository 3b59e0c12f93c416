package route

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("route not found")
	ErrCodeTaken = errors.New("route code already exists for resolution")
)

// CodeKey identifies a route by its natural key.
type CodeKey struct {
	ResolutionID uuid.UUID
	Code         string
}

// FindParams is the closed filter set for route queries.
type FindParams struct {
	CompanyID    uuid.UUID
	ResolutionID uuid.UUID
	Code         string
	Origin       string
	Destination  string
	States       []State
	Limit        int
	Offset       int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Route, error)
	GetByCode(ctx context.Context, resolutionID uuid.UUID, code string) (Route, error)
	GetByCodes(ctx context.Context, keys []CodeKey) (map[CodeKey]Route, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]Route, int64, error)
	Create(ctx context.Context, r Route, actor, reason string) (Route, error)
	Update(ctx context.Context, r Route, actor, reason string) (Route, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
