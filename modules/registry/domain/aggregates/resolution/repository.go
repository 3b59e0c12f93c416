package resolution

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("resolution not found")
	ErrNumberTaken = errors.New("resolution number already exists for company")
)

// NumberKey identifies a resolution by its natural key.
type NumberKey struct {
	CompanyID uuid.UUID
	Number    string
}

// FindParams is the closed filter set for resolution queries.
type FindParams struct {
	CompanyID  uuid.UUID
	RUC        string // resolved through the companies table
	Number     string // canonical form
	Kinds      []Kind
	States     []State
	IssuedFrom time.Time
	IssuedTo   time.Time
	Limit      int
	Offset     int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Resolution, error)
	GetByNumber(ctx context.Context, companyID uuid.UUID, number string) (Resolution, error)
	// GetByNumbers resolves a batch of natural keys in one query.
	GetByNumbers(ctx context.Context, keys []NumberKey) (map[NumberKey]Resolution, error)
	// GetCurrentParents resolves the single CURRENT PARENT resolution per
	// company in one query; companies without one are absent from the map.
	GetCurrentParents(ctx context.Context, companyIDs []uuid.UUID, family Family) (map[uuid.UUID]Resolution, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]Resolution, int64, error)
	Create(ctx context.Context, r Resolution, actor, reason string) (Resolution, error)
	Update(ctx context.Context, r Resolution, actor, reason string) (Resolution, error)
	// TransitionState flips only the state, appending an audit entry with
	// before/after.
	TransitionState(ctx context.Context, id uuid.UUID, to State, actor, reason string) error
	AddChildRef(ctx context.Context, parentID, childID uuid.UUID, reason string) error
	AddRouteRef(ctx context.Context, resolutionID, routeID uuid.UUID, reason string) error
	AddVehicleRef(ctx context.Context, resolutionID, vehicleID uuid.UUID, reason string) error
	// MarkExpired transitions every CURRENT resolution whose validity end is
	// before asOf to EXPIRED and returns the affected ids.
	MarkExpired(ctx context.Context, asOf time.Time, actor string) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
