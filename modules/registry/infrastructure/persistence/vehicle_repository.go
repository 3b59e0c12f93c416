package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/sirta-dev/sirta/modules/registry/domain/entities/vehicle"
	"github.com/sirta-dev/sirta/pkg/composables"
)

const vehicleFindQuery = `
        SELECT v.id, v.plate, v.axles, v.seats, v.net_weight, v.gross_weight,
               v.active, v.created_at, v.updated_at
        FROM vehicles v`

type PgVehicleRepository struct{}

func NewVehicleRepository() vehicle.Repository {
	return &PgVehicleRepository{}
}

func (g *PgVehicleRepository) GetByPlate(ctx context.Context, plate string) (vehicle.Vehicle, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return vehicle.Vehicle{}, err
	}

	var m vehicleRow
	err = tx.QueryRow(ctx, vehicleFindQuery+" WHERE v.plate = $1 AND v.active", vehicle.NormalizePlate(plate)).
		Scan(&m.ID, &m.Plate, &m.Axles, &m.Seats, &m.NetWeight, &m.GrossWeight, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vehicle.Vehicle{}, vehicle.ErrNotFound
		}
		return vehicle.Vehicle{}, gerrors.Wrap(err, "get vehicle by plate")
	}
	return toDomainVehicle(m), nil
}

func (g *PgVehicleRepository) GetByPlates(ctx context.Context, plates []string) (map[string]vehicle.Vehicle, error) {
	if len(plates) == 0 {
		return map[string]vehicle.Vehicle{}, nil
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, len(plates))
	for i, p := range plates {
		normalized[i] = vehicle.NormalizePlate(p)
	}

	rows, err := tx.Query(ctx, vehicleFindQuery+" WHERE v.plate = ANY($1) AND v.active", normalized)
	if err != nil {
		return nil, gerrors.Wrap(err, "get vehicles by plates")
	}
	defer rows.Close()

	out := make(map[string]vehicle.Vehicle, len(plates))
	for rows.Next() {
		var m vehicleRow
		if err := rows.Scan(&m.ID, &m.Plate, &m.Axles, &m.Seats, &m.NetWeight, &m.GrossWeight, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		v := toDomainVehicle(m)
		out[v.Plate()] = v
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func toDomainVehicle(m vehicleRow) vehicle.Vehicle {
	return vehicle.Hydrate(
		uuidFromPg(m.ID),
		m.Plate,
		int(m.Axles),
		int(m.Seats),
		m.NetWeight,
		m.GrossWeight,
		m.Active,
		m.CreatedAt.Time,
		m.UpdatedAt.Time,
	)
}
