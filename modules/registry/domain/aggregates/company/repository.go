package company

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("company not found")
	ErrRUCTaken = errors.New("ruc already registered")
)

// FindParams is the closed filter set for company queries. Anything the
// callers need must be enumerated here; free-form filter maps are rejected at
// the API boundary.
type FindParams struct {
	RUC    string  // exact match
	Name   string  // substring, case-insensitive, over the three name variants
	States []State // one-of
	Limit  int
	Offset int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Company, error)
	GetByRUC(ctx context.Context, ruc string) (Company, error)
	// GetByRUCs resolves a batch of RUCs in one query; missing RUCs are
	// simply absent from the result map.
	GetByRUCs(ctx context.Context, rucs []string) (map[string]Company, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]Company, int64, error)
	Create(ctx context.Context, c Company) (Company, error)
	Update(ctx context.Context, c Company) (Company, error)
	// AddResolutionRef, AddRouteRef and AddVehicleRef append to the
	// back-reference sets with set semantics: re-adding an id is a no-op.
	AddResolutionRef(ctx context.Context, companyID, resolutionID uuid.UUID, reason string) error
	AddRouteRef(ctx context.Context, companyID, routeID uuid.UUID, reason string) error
	AddVehicleRef(ctx context.Context, companyID, vehicleID uuid.UUID, reason string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
