package vehicle

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("vehicle not found")

// NormalizePlate upper-cases and strips whitespace and hyphens.
func NormalizePlate(raw string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, " ", "")
	return strings.ReplaceAll(v, "-", "")
}

type Vehicle struct {
	id          uuid.UUID
	plate       string
	axles       int
	seats       int
	netWeight   float64
	grossWeight float64
	payload     float64
	active      bool
	createdAt   time.Time
	updatedAt   time.Time
}

// Hydrate computes payload = gross - net; the column exists only for query
// convenience and is never trusted.
func Hydrate(id uuid.UUID, plate string, axles, seats int, netWeight, grossWeight float64, active bool, createdAt, updatedAt time.Time) Vehicle {
	return Vehicle{
		id:          id,
		plate:       NormalizePlate(plate),
		axles:       axles,
		seats:       seats,
		netWeight:   netWeight,
		grossWeight: grossWeight,
		payload:     grossWeight - netWeight,
		active:      active,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (v Vehicle) ID() uuid.UUID        { return v.id }
func (v Vehicle) Plate() string        { return v.plate }
func (v Vehicle) Axles() int           { return v.axles }
func (v Vehicle) Seats() int           { return v.seats }
func (v Vehicle) NetWeight() float64   { return v.netWeight }
func (v Vehicle) GrossWeight() float64 { return v.grossWeight }
func (v Vehicle) Payload() float64     { return v.payload }
func (v Vehicle) Active() bool         { return v.active }
func (v Vehicle) CreatedAt() time.Time { return v.createdAt }
func (v Vehicle) UpdatedAt() time.Time { return v.updatedAt }
func (v Vehicle) IsZero() bool         { return v.id == uuid.Nil && v.plate == "" }

type Repository interface {
	GetByPlate(ctx context.Context, plate string) (Vehicle, error)
	// GetByPlates resolves a batch of normalized plates in one query.
	GetByPlates(ctx context.Context, plates []string) (map[string]Vehicle, error)
}
