package persistence

import (
	"context"
	"errors"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/sirta-dev/sirta/modules/registry/domain/entities/locality"
	"github.com/sirta-dev/sirta/pkg/composables"
)

const localityFindQuery = `
        SELECT l.id, l.ubigeo, l.name, l.province, l.department
        FROM localities l`

type PgLocalityRepository struct{}

func NewLocalityRepository() locality.Repository {
	return &PgLocalityRepository{}
}

func (g *PgLocalityRepository) GetByUbigeo(ctx context.Context, ubigeo string) (locality.Locality, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return locality.Locality{}, err
	}

	var m localityRow
	err = tx.QueryRow(ctx, localityFindQuery+" WHERE l.ubigeo = $1", strings.TrimSpace(ubigeo)).
		Scan(&m.ID, &m.Ubigeo, &m.Name, &m.Province, &m.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return locality.Locality{}, locality.ErrNotFound
		}
		return locality.Locality{}, gerrors.Wrap(err, "get locality by ubigeo")
	}
	return locality.Hydrate(uuidFromPg(m.ID), m.Ubigeo, m.Name, m.Province, m.Department), nil
}

func (g *PgLocalityRepository) GetByNames(ctx context.Context, names []string) (map[string]locality.Locality, error) {
	if len(names) == 0 {
		return map[string]locality.Locality{}, nil
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	upper := make([]string, len(names))
	for i, n := range names {
		upper[i] = strings.ToUpper(strings.TrimSpace(n))
	}

	rows, err := tx.Query(ctx, localityFindQuery+" WHERE UPPER(l.name) = ANY($1)", upper)
	if err != nil {
		return nil, gerrors.Wrap(err, "get localities by names")
	}
	defer rows.Close()

	out := make(map[string]locality.Locality, len(names))
	for rows.Next() {
		var m localityRow
		if err := rows.Scan(&m.ID, &m.Ubigeo, &m.Name, &m.Province, &m.Department); err != nil {
			return nil, err
		}
		l := locality.Hydrate(uuidFromPg(m.ID), m.Ubigeo, m.Name, m.Province, m.Department)
		out[l.Name()] = l
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
