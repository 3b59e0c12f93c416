package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
	"github.com/sirta-dev/sirta/modules/registry/domain/audit"
	"github.com/sirta-dev/sirta/pkg/composables"
	"github.com/sirta-dev/sirta/pkg/repo"
)

const (
	companyFindQuery = `
        SELECT
            c.id,
            c.ruc,
            c.principal_name,
            c.official_name,
            c.short_name,
            c.fiscal_address,
            c.representative_name,
            c.representative_dni,
            c.phone,
            c.email,
            c.service_type,
            c.state,
            c.resolution_ids::text[],
            c.route_ids::text[],
            c.vehicle_ids::text[],
            c.active,
            c.created_at,
            c.updated_at
        FROM companies c`

	companyCountQuery = `SELECT COUNT(c.id) FROM companies c`

	companyInsertQuery = `
        INSERT INTO companies (
            id, ruc, principal_name, official_name, short_name, fiscal_address,
            representative_name, representative_dni, phone, email,
            service_type, state, active, audit
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, jsonb_build_array($14::jsonb))`

	companyUpdateQuery = `
        UPDATE companies SET
            principal_name = $2,
            official_name = $3,
            short_name = $4,
            fiscal_address = $5,
            representative_name = $6,
            representative_dni = $7,
            phone = $8,
            email = $9,
            service_type = $10,
            state = $11,
            audit = audit || $12::jsonb,
            updated_at = now()
        WHERE id = $1 AND active`

	companySoftDeleteQuery = `
        UPDATE companies SET active = false, audit = audit || $2::jsonb, updated_at = now()
        WHERE id = $1 AND active`

	// Guarded array_append keeps set semantics: re-adding an id is a no-op
	// and leaves the audit trail untouched.
	companyAddRefQueryFmt = `
        UPDATE companies SET
            %[1]s = array_append(%[1]s, $2::uuid),
            audit = audit || $3::jsonb,
            updated_at = now()
        WHERE id = $1 AND active AND NOT ($2::uuid = ANY(%[1]s))`
)

type PgCompanyRepository struct{}

func NewCompanyRepository() company.Repository {
	return &PgCompanyRepository{}
}

func (g *PgCompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (company.Company, error) {
	return g.queryOne(ctx, companyFindQuery+" WHERE c.id = $1 AND c.active", id)
}

func (g *PgCompanyRepository) GetByRUC(ctx context.Context, ruc string) (company.Company, error) {
	return g.queryOne(ctx, companyFindQuery+" WHERE c.ruc = $1 AND c.active", company.NormalizeRUC(ruc))
}

func (g *PgCompanyRepository) GetByRUCs(ctx context.Context, rucs []string) (map[string]company.Company, error) {
	if len(rucs) == 0 {
		return map[string]company.Company{}, nil
	}
	companies, err := g.queryCompanies(ctx, companyFindQuery+" WHERE c.ruc = ANY($1) AND c.active", rucs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get companies by rucs")
	}
	out := make(map[string]company.Company, len(companies))
	for _, c := range companies {
		out[c.RUC()] = c
	}
	return out, nil
}

func (g *PgCompanyRepository) GetPaginated(ctx context.Context, params *company.FindParams) ([]company.Company, int64, error) {
	if params == nil {
		params = &company.FindParams{}
	}

	where, args := buildCompanyFilters(params)

	query := repo.Join(
		companyFindQuery,
		repo.JoinWhere(where...),
		"ORDER BY c.principal_name",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	companies, err := g.queryCompanies(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to get paginated companies")
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	countQuery := repo.Join(companyCountQuery, repo.JoinWhere(where...))
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count companies")
	}

	return companies, total, nil
}

func buildCompanyFilters(params *company.FindParams) ([]string, []interface{}) {
	where := []string{"c.active"}
	args := []interface{}{}

	if params.RUC != "" {
		args = append(args, company.NormalizeRUC(params.RUC))
		where = append(where, fmt.Sprintf("c.ruc = $%d", len(args)))
	}
	if params.Name != "" {
		args = append(args, "%"+params.Name+"%")
		idx := len(args)
		where = append(where, fmt.Sprintf(
			"(c.principal_name ILIKE $%d OR c.official_name ILIKE $%d OR c.short_name ILIKE $%d)",
			idx, idx, idx,
		))
	}
	if len(params.States) > 0 {
		states := make([]string, len(params.States))
		for i, s := range params.States {
			states[i] = string(s)
		}
		args = append(args, states)
		where = append(where, fmt.Sprintf("c.state = ANY($%d)", len(args)))
	}

	return where, args
}

func (g *PgCompanyRepository) Create(ctx context.Context, c company.Company) (company.Company, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return company.Company{}, err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindCreate, "").JSON()
	if err != nil {
		return company.Company{}, err
	}

	_, err = tx.Exec(ctx, companyInsertQuery,
		pgUUID(c.ID()),
		c.RUC(),
		c.PrincipalName(),
		c.OfficialName(),
		c.ShortName(),
		c.FiscalAddress(),
		c.RepresentativeName(),
		c.RepresentativeDNI(),
		c.Phone(),
		c.Email(),
		string(c.ServiceType()),
		string(c.State()),
		c.Active(),
		entry,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return company.Company{}, company.ErrRUCTaken
		}
		return company.Company{}, errors.Wrap(err, "create company")
	}

	return g.GetByID(ctx, c.ID())
}

func (g *PgCompanyRepository) Update(ctx context.Context, c company.Company) (company.Company, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return company.Company{}, err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindUpdate, "").JSON()
	if err != nil {
		return company.Company{}, err
	}

	tag, err := tx.Exec(ctx, companyUpdateQuery,
		pgUUID(c.ID()),
		c.PrincipalName(),
		c.OfficialName(),
		c.ShortName(),
		c.FiscalAddress(),
		c.RepresentativeName(),
		c.RepresentativeDNI(),
		c.Phone(),
		c.Email(),
		string(c.ServiceType()),
		string(c.State()),
		entry,
	)
	if err != nil {
		return company.Company{}, errors.Wrap(err, "update company")
	}
	if tag.RowsAffected() == 0 {
		return company.Company{}, company.ErrNotFound
	}

	return g.GetByID(ctx, c.ID())
}

func (g *PgCompanyRepository) AddResolutionRef(ctx context.Context, companyID, resolutionID uuid.UUID, reason string) error {
	return g.addRef(ctx, "resolution_ids", companyID, resolutionID, reason)
}

func (g *PgCompanyRepository) AddRouteRef(ctx context.Context, companyID, routeID uuid.UUID, reason string) error {
	return g.addRef(ctx, "route_ids", companyID, routeID, reason)
}

func (g *PgCompanyRepository) AddVehicleRef(ctx context.Context, companyID, vehicleID uuid.UUID, reason string) error {
	return g.addRef(ctx, "vehicle_ids", companyID, vehicleID, reason)
}

func (g *PgCompanyRepository) addRef(ctx context.Context, column string, companyID, refID uuid.UUID, reason string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindBackRef, reason).
		WithChange(column, nil, refID.String()).JSON()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(companyAddRefQueryFmt, column)
	_, err = tx.Exec(ctx, query, pgUUID(companyID), refID.String(), entry)
	if err != nil {
		return errors.Wrapf(err, "add %s ref", column)
	}
	return nil
}

func (g *PgCompanyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(composables.UseActor(ctx), audit.KindDelete, "").JSON()
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, companySoftDeleteQuery, pgUUID(id), entry)
	if err != nil {
		return errors.Wrap(err, "delete company")
	}
	if tag.RowsAffected() == 0 {
		return company.ErrNotFound
	}
	return nil
}

func (g *PgCompanyRepository) queryOne(ctx context.Context, query string, args ...interface{}) (company.Company, error) {
	companies, err := g.queryCompanies(ctx, query, args...)
	if err != nil {
		return company.Company{}, err
	}
	if len(companies) == 0 {
		return company.Company{}, company.ErrNotFound
	}
	return companies[0], nil
}

func (g *PgCompanyRepository) queryCompanies(ctx context.Context, query string, args ...interface{}) ([]company.Company, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]company.Company, 0, 16)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanCompany(row pgx.Rows) (company.Company, error) {
	var (
		m             companyRow
		resolutionIDs []string
		routeIDs      []string
		vehicleIDs    []string
	)
	if err := row.Scan(
		&m.ID,
		&m.RUC,
		&m.PrincipalName,
		&m.OfficialName,
		&m.ShortName,
		&m.FiscalAddress,
		&m.RepresentativeName,
		&m.RepresentativeDNI,
		&m.Phone,
		&m.Email,
		&m.ServiceType,
		&m.State,
		&resolutionIDs,
		&routeIDs,
		&vehicleIDs,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return company.Company{}, err
	}

	return company.Hydrate(
		uuidFromPg(m.ID),
		m.RUC,
		m.PrincipalName,
		m.OfficialName,
		m.ShortName,
		m.FiscalAddress,
		m.RepresentativeName,
		m.RepresentativeDNI,
		m.Phone,
		m.Email,
		company.ServiceType(m.ServiceType),
		company.State(m.State),
		uuidsFromText(resolutionIDs),
		uuidsFromText(routeIDs),
		uuidsFromText(vehicleIDs),
		m.Active,
		m.CreatedAt.Time,
		m.UpdatedAt.Time,
	), nil
}
