package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/audit"
	"github.com/sirta-dev/sirta/pkg/composables"
	"github.com/sirta-dev/sirta/pkg/repo"
)

const (
	resolutionFindQuery = `
        SELECT
            r.id,
            r.number,
            r.company_id,
            r.kind,
            r.procedure,
            r.issue_date,
            r.validity_start,
            r.validity_years,
            r.validity_end,
            r.state,
            r.parent_id,
            r.route_ids::text[],
            r.vehicle_ids::text[],
            r.child_ids::text[],
            r.active,
            r.created_at,
            r.updated_at
        FROM resolutions r`

	resolutionCountQuery = `SELECT COUNT(r.id) FROM resolutions r`

	resolutionInsertQuery = `
        INSERT INTO resolutions (
            id, number, company_id, kind, procedure, family, issue_date,
            validity_start, validity_years, validity_end, state, parent_id,
            active, audit
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, jsonb_build_array($14::jsonb))`

	resolutionUpdateQuery = `
        UPDATE resolutions SET
            procedure = $2,
            kind = $3,
            family = $4,
            issue_date = $5,
            validity_start = $6,
            validity_years = $7,
            validity_end = $8,
            state = $9,
            parent_id = $10,
            audit = audit || $11::jsonb,
            updated_at = now()
        WHERE id = $1 AND active`

	resolutionTransitionQuery = `
        UPDATE resolutions SET state = $2, audit = audit || $3::jsonb, updated_at = now()
        WHERE id = $1 AND active`

	resolutionSoftDeleteQuery = `
        UPDATE resolutions SET active = false, audit = audit || $2::jsonb, updated_at = now()
        WHERE id = $1 AND active`

	resolutionAddRefQueryFmt = `
        UPDATE resolutions SET
            %[1]s = array_append(%[1]s, $2::uuid),
            audit = audit || $3::jsonb,
            updated_at = now()
        WHERE id = $1 AND active AND NOT ($2::uuid = ANY(%[1]s))`

	// Sweep query: ids first, then per-row transition so each document gets
	// its own audit entry.
	resolutionExpiredIDsQuery = `
        SELECT r.id FROM resolutions r
        WHERE r.active AND r.state = 'CURRENT' AND r.validity_end < $1`
)

type PgResolutionRepository struct{}

func NewResolutionRepository() resolution.Repository {
	return &PgResolutionRepository{}
}

func (g *PgResolutionRepository) GetByID(ctx context.Context, id uuid.UUID) (resolution.Resolution, error) {
	return g.queryOne(ctx, resolutionFindQuery+" WHERE r.id = $1 AND r.active", id)
}

func (g *PgResolutionRepository) GetByNumber(ctx context.Context, companyID uuid.UUID, number string) (resolution.Resolution, error) {
	canonical, _ := resolution.CanonicalNumber(number)
	return g.queryOne(ctx,
		resolutionFindQuery+" WHERE r.company_id = $1 AND r.number = $2 AND r.active",
		pgUUID(companyID), canonical,
	)
}

func (g *PgResolutionRepository) GetByNumbers(ctx context.Context, keys []resolution.NumberKey) (map[resolution.NumberKey]resolution.Resolution, error) {
	if len(keys) == 0 {
		return map[resolution.NumberKey]resolution.Resolution{}, nil
	}

	companyIDs := make([]string, len(keys))
	numbers := make([]string, len(keys))
	for i, k := range keys {
		companyIDs[i] = k.CompanyID.String()
		numbers[i] = k.Number
	}

	// unnest pairs the two arrays positionally, resolving the whole batch in
	// one round trip.
	query := resolutionFindQuery + `
        JOIN unnest($1::uuid[], $2::text[]) AS k(company_id, number)
            ON r.company_id = k.company_id AND r.number = k.number
        WHERE r.active`

	rs, err := g.queryResolutions(ctx, query, companyIDs, numbers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get resolutions by numbers")
	}

	out := make(map[resolution.NumberKey]resolution.Resolution, len(rs))
	for _, r := range rs {
		out[resolution.NumberKey{CompanyID: r.CompanyID(), Number: r.Number()}] = r
	}
	return out, nil
}

func (g *PgResolutionRepository) GetCurrentParents(ctx context.Context, companyIDs []uuid.UUID, family resolution.Family) (map[uuid.UUID]resolution.Resolution, error) {
	if len(companyIDs) == 0 {
		return map[uuid.UUID]resolution.Resolution{}, nil
	}

	ids := make([]string, len(companyIDs))
	for i, id := range companyIDs {
		ids[i] = id.String()
	}

	// The family column is derived from procedure at write time; today every
	// procedure maps to AUTHORIZATION. Ordering puts the latest window first
	// per company, so the first row scanned wins.
	query := resolutionFindQuery + `
        WHERE r.company_id = ANY($1::uuid[]) AND r.kind = 'PARENT' AND r.state = 'CURRENT' AND r.family = $2 AND r.active
        ORDER BY r.company_id, r.validity_start DESC`

	rs, err := g.queryResolutions(ctx, query, ids, string(family))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get current parent resolutions")
	}

	out := make(map[uuid.UUID]resolution.Resolution, len(rs))
	for _, r := range rs {
		if _, ok := out[r.CompanyID()]; !ok {
			out[r.CompanyID()] = r
		}
	}
	return out, nil
}

func (g *PgResolutionRepository) GetPaginated(ctx context.Context, params *resolution.FindParams) ([]resolution.Resolution, int64, error) {
	if params == nil {
		params = &resolution.FindParams{}
	}

	where, args, joins := buildResolutionFilters(params)

	query := repo.Join(
		resolutionFindQuery,
		joins,
		repo.JoinWhere(where...),
		"ORDER BY r.validity_start DESC, r.number",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	rs, err := g.queryResolutions(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to get paginated resolutions")
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	countQuery := repo.Join(resolutionCountQuery, joins, repo.JoinWhere(where...))
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count resolutions")
	}

	return rs, total, nil
}

func buildResolutionFilters(params *resolution.FindParams) ([]string, []interface{}, string) {
	where := []string{"r.active"}
	args := []interface{}{}
	joins := ""

	if params.CompanyID != uuid.Nil {
		args = append(args, pgUUID(params.CompanyID))
		where = append(where, fmt.Sprintf("r.company_id = $%d", len(args)))
	}
	if params.RUC != "" {
		joins = "JOIN companies c ON r.company_id = c.id"
		args = append(args, params.RUC)
		where = append(where, fmt.Sprintf("c.ruc = $%d", len(args)))
	}
	if params.Number != "" {
		canonical, _ := resolution.CanonicalNumber(params.Number)
		args = append(args, canonical)
		where = append(where, fmt.Sprintf("r.number = $%d", len(args)))
	}
	if len(params.Kinds) > 0 {
		kinds := make([]string, len(params.Kinds))
		for i, k := range params.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		where = append(where, fmt.Sprintf("r.kind = ANY($%d)", len(args)))
	}
	if len(params.States) > 0 {
		states := make([]string, len(params.States))
		for i, s := range params.States {
			states[i] = string(s)
		}
		args = append(args, states)
		where = append(where, fmt.Sprintf("r.state = ANY($%d)", len(args)))
	}
	if !params.IssuedFrom.IsZero() {
		args = append(args, params.IssuedFrom)
		where = append(where, fmt.Sprintf("r.issue_date >= $%d", len(args)))
	}
	if !params.IssuedTo.IsZero() {
		args = append(args, params.IssuedTo)
		where = append(where, fmt.Sprintf("r.issue_date <= $%d", len(args)))
	}

	return where, args, joins
}

func (g *PgResolutionRepository) Create(ctx context.Context, r resolution.Resolution, actor, reason string) (resolution.Resolution, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return resolution.Resolution{}, err
	}

	entry, err := audit.NewEntry(actor, audit.KindCreate, reason).JSON()
	if err != nil {
		return resolution.Resolution{}, err
	}

	var issueDate interface{}
	if !r.IssueDate().IsZero() {
		issueDate = r.IssueDate()
	}

	_, err = tx.Exec(ctx, resolutionInsertQuery,
		pgUUID(r.ID()),
		r.Number(),
		pgUUID(r.CompanyID()),
		string(r.Kind()),
		string(r.Procedure()),
		string(r.Family()),
		issueDate,
		r.ValidityStart(),
		r.ValidityYears(),
		r.ValidityEnd(),
		string(r.State()),
		pgNullableUUID(r.ParentID()),
		r.Active(),
		entry,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return resolution.Resolution{}, resolution.ErrNumberTaken
		}
		return resolution.Resolution{}, errors.Wrap(err, "create resolution")
	}

	return g.GetByID(ctx, r.ID())
}

func (g *PgResolutionRepository) Update(ctx context.Context, r resolution.Resolution, actor, reason string) (resolution.Resolution, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return resolution.Resolution{}, err
	}

	entry, err := audit.NewEntry(actor, audit.KindUpdate, reason).JSON()
	if err != nil {
		return resolution.Resolution{}, err
	}

	var issueDate interface{}
	if !r.IssueDate().IsZero() {
		issueDate = r.IssueDate()
	}

	tag, err := tx.Exec(ctx, resolutionUpdateQuery,
		pgUUID(r.ID()),
		string(r.Procedure()),
		string(r.Kind()),
		string(r.Family()),
		issueDate,
		r.ValidityStart(),
		r.ValidityYears(),
		r.ValidityEnd(),
		string(r.State()),
		pgNullableUUID(r.ParentID()),
		entry,
	)
	if err != nil {
		return resolution.Resolution{}, errors.Wrap(err, "update resolution")
	}
	if tag.RowsAffected() == 0 {
		return resolution.Resolution{}, resolution.ErrNotFound
	}

	return g.GetByID(ctx, r.ID())
}

func (g *PgResolutionRepository) TransitionState(ctx context.Context, id uuid.UUID, to resolution.State, actor, reason string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	current, err := g.GetByID(ctx, id)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(actor, audit.KindTransition, reason).
		WithChange("state", string(current.State()), string(to)).JSON()
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, resolutionTransitionQuery, pgUUID(id), string(to), entry)
	if err != nil {
		return errors.Wrap(err, "transition resolution state")
	}
	if tag.RowsAffected() == 0 {
		return resolution.ErrNotFound
	}
	return nil
}

func (g *PgResolutionRepository) AddChildRef(ctx context.Context, parentID, childID uuid.UUID, reason string) error {
	return g.addRef(ctx, "child_ids", parentID, childID, reason)
}

func (g *PgResolutionRepository) AddRouteRef(ctx context.Context, resolutionID, routeID uuid.UUID, reason string) error {
	return g.addRef(ctx, "route_ids", resolutionID, routeID, reason)
}

func (g *PgResolutionRepository) AddVehicleRef(ctx context.Context, resolutionID, vehicleID uuid.UUID, reason string) error {
	return g.addRef(ctx, "vehicle_ids", resolutionID, vehicleID, reason)
}

func (g *PgResolutionRepository) addRef(ctx context.Context, column string, resolutionID, refID uuid.UUID, reason string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindBackRef, reason).
		WithChange(column, nil, refID.String()).JSON()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(resolutionAddRefQueryFmt, column)
	_, err = tx.Exec(ctx, query, pgUUID(resolutionID), refID.String(), entry)
	if err != nil {
		return errors.Wrapf(err, "add %s ref", column)
	}
	return nil
}

func (g *PgResolutionRepository) MarkExpired(ctx context.Context, asOf time.Time, actor string) ([]uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, resolutionExpiredIDsQuery, asOf)
	if err != nil {
		return nil, errors.Wrap(err, "list expired resolutions")
	}
	ids := make([]uuid.UUID, 0, 16)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for _, id := range ids {
		if err := g.TransitionState(ctx, id, resolution.StateExpired, actor, "EXPIRY_SWEEP"); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (g *PgResolutionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindDelete, "").JSON()
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, resolutionSoftDeleteQuery, pgUUID(id), entry)
	if err != nil {
		return errors.Wrap(err, "delete resolution")
	}
	if tag.RowsAffected() == 0 {
		return resolution.ErrNotFound
	}
	return nil
}

func (g *PgResolutionRepository) queryOne(ctx context.Context, query string, args ...interface{}) (resolution.Resolution, error) {
	rs, err := g.queryResolutions(ctx, query, args...)
	if err != nil {
		return resolution.Resolution{}, err
	}
	if len(rs) == 0 {
		return resolution.Resolution{}, resolution.ErrNotFound
	}
	return rs[0], nil
}

func (g *PgResolutionRepository) queryResolutions(ctx context.Context, query string, args ...interface{}) ([]resolution.Resolution, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]resolution.Resolution, 0, 16)
	for rows.Next() {
		r, err := scanResolution(rows)
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

func scanResolution(row pgx.Rows) (resolution.Resolution, error) {
	var (
		m          resolutionRow
		routeIDs   []string
		vehicleIDs []string
		childIDs   []string
	)
	if err := row.Scan(
		&m.ID,
		&m.Number,
		&m.CompanyID,
		&m.Kind,
		&m.Procedure,
		&m.IssueDate,
		&m.ValidityStart,
		&m.ValidityYears,
		&m.ValidityEnd,
		&m.State,
		&m.ParentID,
		&routeIDs,
		&vehicleIDs,
		&childIDs,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return resolution.Resolution{}, err
	}

	return resolution.Hydrate(
		uuidFromPg(m.ID),
		m.Number,
		uuidFromPg(m.CompanyID),
		resolution.Kind(m.Kind),
		resolution.Procedure(m.Procedure),
		m.IssueDate.Time,
		m.ValidityStart.Time,
		int(m.ValidityYears),
		m.ValidityEnd.Time,
		resolution.State(m.State),
		uuidFromPg(m.ParentID),
		uuidsFromText(routeIDs),
		uuidsFromText(vehicleIDs),
		uuidsFromText(childIDs),
		m.Active,
		m.CreatedAt.Time,
		m.UpdatedAt.Time,
	), nil
}
