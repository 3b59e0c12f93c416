package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/modules/registry/domain/audit"
	"github.com/sirta-dev/sirta/pkg/composables"
	"github.com/sirta-dev/sirta/pkg/repo"
)

const (
	routeFindQuery = `
        SELECT
            rt.id,
            rt.code,
            rt.company_id,
            rt.resolution_id,
            rt.origin,
            rt.destination,
            rt.itinerary,
            rt.frequency,
            rt.route_type,
            rt.service_type,
            rt.state,
            rt.active,
            rt.created_at,
            rt.updated_at
        FROM routes rt`

	routeCountQuery = `SELECT COUNT(rt.id) FROM routes rt`

	routeInsertQuery = `
        INSERT INTO routes (
            id, code, company_id, resolution_id, origin, destination,
            itinerary, frequency, route_type, service_type, state, active, audit
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, jsonb_build_array($13::jsonb))`

	routeUpdateQuery = `
        UPDATE routes SET
            origin = $2,
            destination = $3,
            itinerary = $4,
            frequency = $5,
            route_type = $6,
            service_type = $7,
            state = $8,
            audit = audit || $9::jsonb,
            updated_at = now()
        WHERE id = $1 AND active`

	routeSoftDeleteQuery = `
        UPDATE routes SET active = false, audit = audit || $2::jsonb, updated_at = now()
        WHERE id = $1 AND active`
)

type PgRouteRepository struct{}

func NewRouteRepository() route.Repository {
	return &PgRouteRepository{}
}

func (g *PgRouteRepository) GetByID(ctx context.Context, id uuid.UUID) (route.Route, error) {
	return g.queryOne(ctx, routeFindQuery+" WHERE rt.id = $1 AND rt.active", pgUUID(id))
}

func (g *PgRouteRepository) GetByCode(ctx context.Context, resolutionID uuid.UUID, code string) (route.Route, error) {
	normalized, _ := route.NormalizeCode(code)
	return g.queryOne(ctx,
		routeFindQuery+" WHERE rt.resolution_id = $1 AND rt.code = $2 AND rt.active",
		pgUUID(resolutionID), normalized,
	)
}

func (g *PgRouteRepository) GetByCodes(ctx context.Context, keys []route.CodeKey) (map[route.CodeKey]route.Route, error) {
	if len(keys) == 0 {
		return map[route.CodeKey]route.Route{}, nil
	}

	resolutionIDs := make([]string, len(keys))
	codes := make([]string, len(keys))
	for i, k := range keys {
		resolutionIDs[i] = k.ResolutionID.String()
		codes[i] = k.Code
	}

	query := routeFindQuery + `
        JOIN unnest($1::uuid[], $2::text[]) AS k(resolution_id, code)
            ON rt.resolution_id = k.resolution_id AND rt.code = k.code
        WHERE rt.active`

	routes, err := g.queryRoutes(ctx, query, resolutionIDs, codes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get routes by codes")
	}

	out := make(map[route.CodeKey]route.Route, len(routes))
	for _, r := range routes {
		out[route.CodeKey{ResolutionID: r.ResolutionID(), Code: r.Code()}] = r
	}
	return out, nil
}

func (g *PgRouteRepository) GetPaginated(ctx context.Context, params *route.FindParams) ([]route.Route, int64, error) {
	if params == nil {
		params = &route.FindParams{}
	}

	where, args := buildRouteFilters(params)

	query := repo.Join(
		routeFindQuery,
		repo.JoinWhere(where...),
		"ORDER BY rt.code",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	routes, err := g.queryRoutes(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to get paginated routes")
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	countQuery := repo.Join(routeCountQuery, repo.JoinWhere(where...))
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count routes")
	}

	return routes, total, nil
}

func buildRouteFilters(params *route.FindParams) ([]string, []interface{}) {
	where := []string{"rt.active"}
	args := []interface{}{}

	if params.CompanyID != uuid.Nil {
		args = append(args, pgUUID(params.CompanyID))
		where = append(where, fmt.Sprintf("rt.company_id = $%d", len(args)))
	}
	if params.ResolutionID != uuid.Nil {
		args = append(args, pgUUID(params.ResolutionID))
		where = append(where, fmt.Sprintf("rt.resolution_id = $%d", len(args)))
	}
	if params.Code != "" {
		normalized, _ := route.NormalizeCode(params.Code)
		args = append(args, normalized)
		where = append(where, fmt.Sprintf("rt.code = $%d", len(args)))
	}
	if params.Origin != "" {
		args = append(args, "%"+params.Origin+"%")
		where = append(where, fmt.Sprintf("rt.origin ILIKE $%d", len(args)))
	}
	if params.Destination != "" {
		args = append(args, "%"+params.Destination+"%")
		where = append(where, fmt.Sprintf("rt.destination ILIKE $%d", len(args)))
	}
	if len(params.States) > 0 {
		states := make([]string, len(params.States))
		for i, s := range params.States {
			states[i] = string(s)
		}
		args = append(args, states)
		where = append(where, fmt.Sprintf("rt.state = ANY($%d)", len(args)))
	}

	return where, args
}

func (g *PgRouteRepository) Create(ctx context.Context, r route.Route, actor, reason string) (route.Route, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return route.Route{}, err
	}

	entry, err := audit.NewEntry(actor, audit.KindCreate, reason).JSON()
	if err != nil {
		return route.Route{}, err
	}

	_, err = tx.Exec(ctx, routeInsertQuery,
		pgUUID(r.ID()),
		r.Code(),
		pgUUID(r.CompanyID()),
		pgUUID(r.ResolutionID()),
		r.Origin(),
		r.Destination(),
		r.Itinerary(),
		r.Frequency(),
		string(r.RouteType()),
		string(r.ServiceType()),
		string(r.State()),
		r.Active(),
		entry,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return route.Route{}, route.ErrCodeTaken
		}
		return route.Route{}, errors.Wrap(err, "create route")
	}

	return g.GetByID(ctx, r.ID())
}

func (g *PgRouteRepository) Update(ctx context.Context, r route.Route, actor, reason string) (route.Route, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return route.Route{}, err
	}

	entry, err := audit.NewEntry(actor, audit.KindUpdate, reason).JSON()
	if err != nil {
		return route.Route{}, err
	}

	tag, err := tx.Exec(ctx, routeUpdateQuery,
		pgUUID(r.ID()),
		r.Origin(),
		r.Destination(),
		r.Itinerary(),
		r.Frequency(),
		string(r.RouteType()),
		string(r.ServiceType()),
		string(r.State()),
		entry,
	)
	if err != nil {
		return route.Route{}, errors.Wrap(err, "update route")
	}
	if tag.RowsAffected() == 0 {
		return route.Route{}, route.ErrNotFound
	}

	return g.GetByID(ctx, r.ID())
}

func (g *PgRouteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindDelete, "").JSON()
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, routeSoftDeleteQuery, pgUUID(id), entry)
	if err != nil {
		return errors.Wrap(err, "delete route")
	}
	if tag.RowsAffected() == 0 {
		return route.ErrNotFound
	}
	return nil
}

func (g *PgRouteRepository) queryOne(ctx context.Context, query string, args ...interface{}) (route.Route, error) {
	routes, err := g.queryRoutes(ctx, query, args...)
	if err != nil {
		return route.Route{}, err
	}
	if len(routes) == 0 {
		return route.Route{}, route.ErrNotFound
	}
	return routes[0], nil
}

func (g *PgRouteRepository) queryRoutes(ctx context.Context, query string, args ...interface{}) ([]route.Route, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]route.Route, 0, 16)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanRoute(row pgx.Rows) (route.Route, error) {
	var m routeRow
	if err := row.Scan(
		&m.ID,
		&m.Code,
		&m.CompanyID,
		&m.ResolutionID,
		&m.Origin,
		&m.Destination,
		&m.Itinerary,
		&m.Frequency,
		&m.RouteType,
		&m.ServiceType,
		&m.State,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return route.Route{}, err
	}

	return route.Hydrate(
		uuidFromPg(m.ID),
		m.Code,
		uuidFromPg(m.CompanyID),
		uuidFromPg(m.ResolutionID),
		m.Origin,
		m.Destination,
		m.Itinerary,
		m.Frequency,
		route.RouteType(m.RouteType),
		company.ServiceType(m.ServiceType),
		route.State(m.State),
		m.Active,
		m.CreatedAt.Time,
		m.UpdatedAt.Time,
	), nil
}
