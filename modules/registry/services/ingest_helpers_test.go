package services_test

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/locality"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/vehicle"
	"github.com/sirta-dev/sirta/modules/registry/services"
	"github.com/sirta-dev/sirta/pkg/eventbus"
)

// In-memory repositories backing the ingest pipeline tests. Back-references
// are tracked in plain sets so the $addToSet semantics are observable.

type refSet map[uuid.UUID]map[uuid.UUID]struct{}

func (s refSet) add(owner, ref uuid.UUID) {
	if s[owner] == nil {
		s[owner] = map[uuid.UUID]struct{}{}
	}
	s[owner][ref] = struct{}{}
}

func (s refSet) has(owner, ref uuid.UUID) bool {
	_, ok := s[owner][ref]
	return ok
}

type memCompanies struct {
	byID map[uuid.UUID]company.Company

	resolutionRefs refSet
	routeRefs      refSet
	vehicleRefs    refSet
}

func newMemCompanies() *memCompanies {
	return &memCompanies{
		byID:           map[uuid.UUID]company.Company{},
		resolutionRefs: refSet{},
		routeRefs:      refSet{},
		vehicleRefs:    refSet{},
	}
}

func (m *memCompanies) put(c company.Company) { m.byID[c.ID()] = c }

func (m *memCompanies) GetByID(_ context.Context, id uuid.UUID) (company.Company, error) {
	c, ok := m.byID[id]
	if !ok {
		return company.Company{}, company.ErrNotFound
	}
	return c, nil
}

func (m *memCompanies) GetByRUC(_ context.Context, ruc string) (company.Company, error) {
	for _, c := range m.byID {
		if c.RUC() == ruc && c.Active() {
			return c, nil
		}
	}
	return company.Company{}, company.ErrNotFound
}

func (m *memCompanies) GetByRUCs(_ context.Context, rucs []string) (map[string]company.Company, error) {
	out := map[string]company.Company{}
	for _, ruc := range rucs {
		for _, c := range m.byID {
			if c.RUC() == ruc && c.Active() {
				out[ruc] = c
			}
		}
	}
	return out, nil
}

func (m *memCompanies) GetPaginated(_ context.Context, _ *company.FindParams) ([]company.Company, int64, error) {
	out := make([]company.Company, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

func (m *memCompanies) Create(_ context.Context, c company.Company) (company.Company, error) {
	for _, cur := range m.byID {
		if cur.RUC() == c.RUC() && cur.Active() {
			return company.Company{}, company.ErrRUCTaken
		}
	}
	m.byID[c.ID()] = c
	return c, nil
}

func (m *memCompanies) Update(_ context.Context, c company.Company) (company.Company, error) {
	m.byID[c.ID()] = c
	return c, nil
}

func (m *memCompanies) AddResolutionRef(_ context.Context, companyID, resolutionID uuid.UUID, _ string) error {
	m.resolutionRefs.add(companyID, resolutionID)
	return nil
}

func (m *memCompanies) AddRouteRef(_ context.Context, companyID, routeID uuid.UUID, _ string) error {
	m.routeRefs.add(companyID, routeID)
	return nil
}

func (m *memCompanies) AddVehicleRef(_ context.Context, companyID, vehicleID uuid.UUID, _ string) error {
	m.vehicleRefs.add(companyID, vehicleID)
	return nil
}

func (m *memCompanies) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

type memResolutions struct {
	byID map[uuid.UUID]resolution.Resolution

	childRefs   refSet
	routeRefs   refSet
	vehicleRefs refSet

	currentParentCalls int
}

func newMemResolutions() *memResolutions {
	return &memResolutions{
		byID:        map[uuid.UUID]resolution.Resolution{},
		childRefs:   refSet{},
		routeRefs:   refSet{},
		vehicleRefs: refSet{},
	}
}

func (m *memResolutions) put(r resolution.Resolution) { m.byID[r.ID()] = r }

func (m *memResolutions) GetByID(_ context.Context, id uuid.UUID) (resolution.Resolution, error) {
	r, ok := m.byID[id]
	if !ok {
		return resolution.Resolution{}, resolution.ErrNotFound
	}
	return r, nil
}

func (m *memResolutions) GetByNumber(_ context.Context, companyID uuid.UUID, number string) (resolution.Resolution, error) {
	for _, r := range m.byID {
		if r.CompanyID() == companyID && r.Number() == number && r.Active() {
			return r, nil
		}
	}
	return resolution.Resolution{}, resolution.ErrNotFound
}

func (m *memResolutions) GetByNumbers(_ context.Context, keys []resolution.NumberKey) (map[resolution.NumberKey]resolution.Resolution, error) {
	out := map[resolution.NumberKey]resolution.Resolution{}
	for _, k := range keys {
		for _, r := range m.byID {
			if r.CompanyID() == k.CompanyID && r.Number() == k.Number && r.Active() {
				out[k] = r
			}
		}
	}
	return out, nil
}

func (m *memResolutions) GetCurrentParents(_ context.Context, companyIDs []uuid.UUID, family resolution.Family) (map[uuid.UUID]resolution.Resolution, error) {
	m.currentParentCalls++
	out := map[uuid.UUID]resolution.Resolution{}
	for _, companyID := range companyIDs {
		var candidates []resolution.Resolution
		for _, r := range m.byID {
			if r.CompanyID() == companyID && r.Kind() == resolution.KindParent &&
				r.State() == resolution.StateCurrent && r.Family() == family && r.Active() {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].ValidityStart().After(candidates[j].ValidityStart())
		})
		out[companyID] = candidates[0]
	}
	return out, nil
}

func (m *memResolutions) GetPaginated(_ context.Context, _ *resolution.FindParams) ([]resolution.Resolution, int64, error) {
	out := make([]resolution.Resolution, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (m *memResolutions) Create(_ context.Context, r resolution.Resolution, _, _ string) (resolution.Resolution, error) {
	for _, cur := range m.byID {
		if cur.CompanyID() == r.CompanyID() && cur.Number() == r.Number() && cur.Active() {
			return resolution.Resolution{}, resolution.ErrNumberTaken
		}
	}
	m.byID[r.ID()] = r
	return r, nil
}

func (m *memResolutions) Update(_ context.Context, r resolution.Resolution, _, _ string) (resolution.Resolution, error) {
	if _, ok := m.byID[r.ID()]; !ok {
		return resolution.Resolution{}, resolution.ErrNotFound
	}
	m.byID[r.ID()] = r
	return r, nil
}

func (m *memResolutions) TransitionState(_ context.Context, id uuid.UUID, to resolution.State, _, _ string) error {
	r, ok := m.byID[id]
	if !ok {
		return resolution.ErrNotFound
	}
	m.byID[id] = r.SetState(to)
	return nil
}

func (m *memResolutions) AddChildRef(_ context.Context, parentID, childID uuid.UUID, _ string) error {
	m.childRefs.add(parentID, childID)
	return nil
}

func (m *memResolutions) AddRouteRef(_ context.Context, resolutionID, routeID uuid.UUID, _ string) error {
	m.routeRefs.add(resolutionID, routeID)
	return nil
}

func (m *memResolutions) AddVehicleRef(_ context.Context, resolutionID, vehicleID uuid.UUID, _ string) error {
	m.vehicleRefs.add(resolutionID, vehicleID)
	return nil
}

func (m *memResolutions) MarkExpired(_ context.Context, asOf time.Time, _ string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, r := range m.byID {
		if r.State() == resolution.StateCurrent && r.ValidityEnd().Before(asOf) {
			m.byID[id] = r.SetState(resolution.StateExpired)
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memResolutions) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

type memRoutes struct {
	byID map[uuid.UUID]route.Route
}

func newMemRoutes() *memRoutes {
	return &memRoutes{byID: map[uuid.UUID]route.Route{}}
}

func (m *memRoutes) GetByID(_ context.Context, id uuid.UUID) (route.Route, error) {
	r, ok := m.byID[id]
	if !ok {
		return route.Route{}, route.ErrNotFound
	}
	return r, nil
}

func (m *memRoutes) GetByCode(_ context.Context, resolutionID uuid.UUID, code string) (route.Route, error) {
	for _, r := range m.byID {
		if r.ResolutionID() == resolutionID && r.Code() == code && r.Active() {
			return r, nil
		}
	}
	return route.Route{}, route.ErrNotFound
}

func (m *memRoutes) GetByCodes(_ context.Context, keys []route.CodeKey) (map[route.CodeKey]route.Route, error) {
	out := map[route.CodeKey]route.Route{}
	for _, k := range keys {
		for _, r := range m.byID {
			if r.ResolutionID() == k.ResolutionID && r.Code() == k.Code && r.Active() {
				out[k] = r
			}
		}
	}
	return out, nil
}

func (m *memRoutes) GetPaginated(_ context.Context, _ *route.FindParams) ([]route.Route, int64, error) {
	out := make([]route.Route, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (m *memRoutes) Create(_ context.Context, r route.Route, _, _ string) (route.Route, error) {
	for _, cur := range m.byID {
		if cur.ResolutionID() == r.ResolutionID() && cur.Code() == r.Code() && cur.Active() {
			return route.Route{}, route.ErrCodeTaken
		}
	}
	m.byID[r.ID()] = r
	return r, nil
}

func (m *memRoutes) Update(_ context.Context, r route.Route, _, _ string) (route.Route, error) {
	if _, ok := m.byID[r.ID()]; !ok {
		return route.Route{}, route.ErrNotFound
	}
	m.byID[r.ID()] = r
	return r, nil
}

func (m *memRoutes) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

type memLocalities struct {
	byName map[string]locality.Locality
}

func newMemLocalities() *memLocalities {
	return &memLocalities{byName: map[string]locality.Locality{}}
}

func (m *memLocalities) put(l locality.Locality) { m.byName[l.Name()] = l }

func (m *memLocalities) GetByUbigeo(_ context.Context, ubigeo string) (locality.Locality, error) {
	for _, l := range m.byName {
		if l.Ubigeo() == ubigeo {
			return l, nil
		}
	}
	return locality.Locality{}, locality.ErrNotFound
}

func (m *memLocalities) GetByNames(_ context.Context, names []string) (map[string]locality.Locality, error) {
	out := map[string]locality.Locality{}
	for _, n := range names {
		if l, ok := m.byName[n]; ok {
			out[n] = l
		}
	}
	return out, nil
}

type memVehicles struct {
	byPlate map[string]vehicle.Vehicle
}

func newMemVehicles() *memVehicles {
	return &memVehicles{byPlate: map[string]vehicle.Vehicle{}}
}

func (m *memVehicles) put(v vehicle.Vehicle) { m.byPlate[v.Plate()] = v }

func (m *memVehicles) GetByPlate(_ context.Context, plate string) (vehicle.Vehicle, error) {
	v, ok := m.byPlate[plate]
	if !ok {
		return vehicle.Vehicle{}, vehicle.ErrNotFound
	}
	return v, nil
}

func (m *memVehicles) GetByPlates(_ context.Context, plates []string) (map[string]vehicle.Vehicle, error) {
	out := map[string]vehicle.Vehicle{}
	for _, p := range plates {
		if v, ok := m.byPlate[p]; ok {
			out[p] = v
		}
	}
	return out, nil
}

// ingestEnv bundles the fakes behind one ingest service.
type ingestEnv struct {
	companies   *memCompanies
	resolutions *memResolutions
	routes      *memRoutes
	localities  *memLocalities
	vehicles    *memVehicles
	svc         *services.IngestService
}

func newIngestEnv(t *testing.T, conf services.IngestConfig) *ingestEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	env := &ingestEnv{
		companies:   newMemCompanies(),
		resolutions: newMemResolutions(),
		routes:      newMemRoutes(),
		localities:  newMemLocalities(),
		vehicles:    newMemVehicles(),
	}
	env.svc = services.NewIngestService(
		env.companies, env.resolutions, env.routes, env.localities, env.vehicles,
		eventbus.NewEventPublisher(log), log, conf,
	)
	return env
}

func (e *ingestEnv) seedCompany(t *testing.T, ruc string) company.Company {
	t.Helper()
	c := company.New(ruc, "TRANSPORTES ANDINOS S.A.C.", company.ServicePersonas, company.StateAuthorized)
	e.companies.put(c)
	return c
}

func (e *ingestEnv) seedParent(t *testing.T, companyID uuid.UUID, number, start string, years int) resolution.Resolution {
	t.Helper()
	r := resolution.New(number, companyID, resolution.ProcedureNewAuthorization,
		time.Time{}, mustDate(t, start), years, resolution.StateCurrent)
	e.resolutions.put(r)
	return r
}

func (e *ingestEnv) seedLocality(t *testing.T, ubigeo, name string) {
	t.Helper()
	e.localities.put(locality.Hydrate(uuid.New(), ubigeo, name, "", ""))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d.UTC()
}

// buildSheet produces workbook bytes with the given header row and data rows.
func buildSheet(t *testing.T, headers []string, rows ...[]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetSheetRow(sheet, "A1", &headers))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var resolutionTestHeaders = []string{
	"RUC", "RESOLUCION", "TIPO_TRAMITE", "FECHA_EMISION", "FECHA_INICIO",
	"ANIOS_VIGENCIA", "FECHA_FIN", "ESTADO", "RESOLUCION_PADRE", "PLACAS",
}

var routeTestHeaders = []string{
	"RUC", "RESOLUCION", "CODIGO_RUTA", "ORIGEN", "DESTINO",
	"ITINERARIO", "FRECUENCIA", "TIPO_RUTA", "TIPO_SERVICIO", "ESTADO",
}
