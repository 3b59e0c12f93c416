package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/vehicle"
	"github.com/sirta-dev/sirta/modules/registry/services"
	"github.com/sirta-dev/sirta/pkg/serrors"
)

func hasCode(issues []services.RowIssue, row int, code string) bool {
	for _, issue := range issues {
		if issue.Row != row {
			continue
		}
		for _, m := range issue.Messages {
			if strings.HasPrefix(m, code+":") {
				return true
			}
		}
	}
	return false
}

func (e *ingestEnv) findResolution(t *testing.T, number string) resolution.Resolution {
	t.Helper()
	for _, r := range e.resolutions.byID {
		if r.Number() == number {
			return r
		}
	}
	t.Fatalf("resolution %s not persisted", number)
	return resolution.Resolution{}
}

func (e *ingestEnv) countCurrentParents(companyID uuid.UUID) int {
	n := 0
	for _, r := range e.resolutions.byID {
		if r.CompanyID() == companyID && r.Kind() == resolution.KindParent &&
			r.State() == resolution.StateCurrent && r.Active() {
			n++
		}
	}
	return n
}

func (e *ingestEnv) findRoute(t *testing.T, code string) route.Route {
	t.Helper()
	for _, r := range e.routes.byID {
		if r.Code() == code {
			return r
		}
	}
	t.Fatalf("route %s not persisted", code)
	return route.Route{}
}

func TestIngest_CreateParentAndChild(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20123456789")

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", ""},
		[]interface{}{"20123456789", "922-2023", "INCREMENT", "", "2024-01-10", "", "", "CURRENT", "921-2023", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 2, report.Valid)
	assert.Equal(t, 0, report.Invalid)
	assert.Len(t, report.Created, 2)
	assert.Empty(t, report.Updated)
	assert.Empty(t, report.CommitFailed)

	parent := env.findResolution(t, "R-0921-2023")
	child := env.findResolution(t, "R-0922-2023")

	assert.Equal(t, resolution.KindParent, parent.Kind())
	assert.Equal(t, mustDate(t, "2027-11-05"), parent.ValidityEnd())
	assert.Equal(t, resolution.KindChild, child.Kind())
	assert.Equal(t, resolution.DefaultChildValidityYears, child.ValidityYears())
	assert.Equal(t, parent.ID(), child.ParentID())

	assert.True(t, env.resolutions.childRefs.has(parent.ID(), child.ID()))
	assert.True(t, env.companies.resolutionRefs.has(c.ID(), parent.ID()))
	assert.True(t, env.companies.resolutionRefs.has(c.ID(), child.ID()))
}

func TestIngest_RenewalSupersedesCurrent(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20123456789")
	old := env.seedParent(t, c.ID(), "100-2020", "2020-01-01", 4)
	require.Equal(t, mustDate(t, "2023-12-31"), old.ValidityEnd())

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "150-2023", "RENEWAL", "", "2024-01-01", 4, "", "VIGENTE", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	require.Len(t, report.Created, 1)
	require.Len(t, report.Updated, 1)
	assert.Equal(t, "R-0150-2023", report.Created[0].NaturalKey)
	assert.Equal(t, "R-0100-2020", report.Updated[0].NaturalKey)

	renewed := env.findResolution(t, "R-0150-2023")
	assert.Equal(t, resolution.StateCurrent, renewed.State())
	assert.Equal(t, resolution.StateRenewed, env.findResolution(t, "R-0100-2020").State())
}

func TestIngest_InvalidRenewalDoesNotShieldCurrentParent(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20123456789")
	env.seedParent(t, c.ID(), "100-2023", "2023-01-01", 4)

	// The first renewal dies on an unknown plate; the second must still
	// displace the persisted CURRENT parent, not the dead row.
	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "200-2024", "RENEWAL", "", "2024-01-01", 4, "", "CURRENT", "", "ZZZ-999"},
		[]interface{}{"20123456789", "300-2024", "RENEWAL", "", "2024-02-01", 4, "", "CURRENT", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Invalid)
	assert.True(t, hasCode(report.Errors, 2, "VEHICLE_NOT_FOUND"))
	require.Len(t, report.Created, 1)
	assert.Equal(t, "R-0300-2024", report.Created[0].NaturalKey)
	require.Len(t, report.Updated, 1)
	assert.Equal(t, "R-0100-2023", report.Updated[0].NaturalKey)

	assert.Equal(t, 1, env.countCurrentParents(c.ID()))
	assert.Equal(t, resolution.StateRenewed, env.findResolution(t, "R-0100-2023").State())
	assert.Equal(t, resolution.StateCurrent, env.findResolution(t, "R-0300-2024").State())
}

func TestIngest_BatchedCurrentParentLookup(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c1 := env.seedCompany(t, "20123456789")
	c2 := env.seedCompany(t, "20448048242")
	env.seedParent(t, c1.ID(), "100-2020", "2020-01-01", 4)
	env.seedParent(t, c2.ID(), "110-2020", "2020-01-01", 4)

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "150-2024", "RENEWAL", "", "2024-01-01", 4, "", "CURRENT", "", ""},
		[]interface{}{"20448048242", "160-2024", "RENEWAL", "", "2024-01-01", 4, "", "CURRENT", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Valid)
	// one lookup for the whole batch, however many companies it touches
	assert.Equal(t, 1, env.resolutions.currentParentCalls)
	assert.Equal(t, resolution.StateRenewed, env.findResolution(t, "R-0100-2020").State())
	assert.Equal(t, resolution.StateRenewed, env.findResolution(t, "R-0110-2020").State())
	assert.Equal(t, 1, env.countCurrentParents(c1.ID()))
	assert.Equal(t, 1, env.countCurrentParents(c2.ID()))
}

func TestIngest_RouteBlankItinerary(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20448048242")
	parent := env.seedParent(t, c.ID(), "921-2023", "2023-11-06", 4)
	env.seedLocality(t, "210101", "PUNO")
	env.seedLocality(t, "211101", "JULIACA")

	data := buildSheet(t, routeTestHeaders,
		[]interface{}{"20448048242", "R-0921-2023", "1", "PUNO", "JULIACA", "", "08 DIARIAS", "", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchRoutes, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 0, report.Warnings)
	require.Len(t, report.Created, 1)

	r := env.findRoute(t, "01")
	assert.Equal(t, route.NoItinerary, r.Itinerary())
	assert.Equal(t, route.StateActive, r.State())
	assert.Equal(t, "PUNO", r.Origin())
	assert.True(t, env.resolutions.routeRefs.has(parent.ID(), r.ID()))
	assert.True(t, env.companies.routeRefs.has(c.ID(), r.ID()))
}

func TestIngest_RouteShortAccentedItinerary(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20448048242")
	env.seedParent(t, c.ID(), "921-2023", "2023-11-06", 4)

	// four runes, eight bytes: the minimum length counts characters
	data := buildSheet(t, routeTestHeaders,
		[]interface{}{"20448048242", "R-0921-2023", "3", "PUNO", "ILAVE", "ÁÉÍÓ", "04 DIARIAS", "", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchRoutes, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Invalid)
	assert.True(t, hasCode(report.Errors, 2, "ITINERARY_TOO_SHORT"))
	assert.Empty(t, env.routes.byID)
}

func TestIngest_WithinBatchDuplicate(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	env.seedCompany(t, "20123456789")

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", ""},
		[]interface{}{"20123456789", "R-0921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	assert.True(t, hasCode(report.Errors, 3, "DUPLICATE_IN_BATCH"))
	assert.Len(t, report.Created, 1)
	assert.Len(t, env.resolutions.byID, 1)
}

func TestIngest_OrphanChild(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	env.seedCompany(t, "20123456789")

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "922-2023", "INCREMENT", "", "2024-01-10", "", "", "CURRENT", "999-2019", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	assert.True(t, hasCode(report.Errors, 2, "PARENT_NOT_FOUND"))
	assert.Empty(t, env.resolutions.byID)
}

func TestIngest_DryRunMatchesValidate(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	env.seedCompany(t, "20123456789")

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", ""},
		[]interface{}{"20123456789", "922-2023", "INCREMENT", "", "2024-01-10", "", "", "CURRENT", "921-2023", ""},
	)

	validated, err := env.svc.Validate(context.Background(), data, services.BatchResolutions)
	require.NoError(t, err)
	dry, err := env.svc.Process(context.Background(), data, services.BatchResolutions, true)
	require.NoError(t, err)

	assert.Equal(t, validated, dry)
	assert.Empty(t, env.resolutions.byID)
}

func TestIngest_Idempotent(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	env.seedCompany(t, "20123456789")

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", ""},
		[]interface{}{"20123456789", "922-2023", "INCREMENT", "", "2024-01-10", "", "", "CURRENT", "921-2023", ""},
	)

	first, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	second, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Empty(t, second.Created)
	assert.Empty(t, second.Updated)
	assert.Empty(t, second.CommitFailed)
	assert.Equal(t, 2, second.Valid)
	assert.Len(t, env.resolutions.byID, 2)
}

func TestIngest_MissingHeaderFailsBatch(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})

	data := buildSheet(t, []string{"RUC", "RESOLUCION", "TIPO_TRAMITE", "FECHA_INICIO"},
		[]interface{}{"20123456789", "921-2023", "NEW_AUTHORIZATION", "2023-11-06"},
	)

	_, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.Error(t, err)
	assert.Equal(t, "MISSING_HEADER", serrors.CodeOf(err))
}

func TestIngest_UnknownCompany(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20999999999", "921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Invalid)
	assert.True(t, hasCode(report.Errors, 2, "COMPANY_NOT_FOUND"))
	assert.Empty(t, env.resolutions.byID)
}

func TestIngest_RouteUnknownLocalityWarns(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20448048242")
	env.seedParent(t, c.ID(), "921-2023", "2023-11-06", 4)

	data := buildSheet(t, routeTestHeaders,
		[]interface{}{"20448048242", "R-0921-2023", "2", "PUNO", "ILAVE", "PUNO - CHUCUITO - ILAVE", "04 DIARIAS", "", "", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchRoutes, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 1, report.Warnings)
	assert.True(t, hasCode(report.WarningRows, 2, "LOCALITY_NOT_FOUND"))
	assert.Len(t, report.Created, 1)
}

func TestIngest_VehiclePlates(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20123456789")
	v := vehicle.Hydrate(
		uuid.New(), "V1X123", 2, 50, 5000, 12000, true,
		mustDate(t, "2023-01-01"), mustDate(t, "2023-01-01"),
	)
	env.vehicles.put(v)

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "921-2023", "NEW_AUTHORIZATION", "", "2023-11-06", 4, "", "CURRENT", "", "V1X-123"},
		[]interface{}{"20123456789", "930-2023", "RENEWAL", "", "2023-12-01", 4, "", "CURRENT", "", "ZZZ-999"},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Valid)
	assert.True(t, hasCode(report.Errors, 3, "VEHICLE_NOT_FOUND"))

	r := env.findResolution(t, "R-0921-2023")
	assert.True(t, env.resolutions.vehicleRefs.has(r.ID(), v.ID()))
	assert.True(t, env.companies.vehicleRefs.has(c.ID(), v.ID()))
}

func TestIngest_StrictModeFailsNonCurrentParent(t *testing.T) {
	childRow := []interface{}{"20123456789", "950-2024", "INCREMENT", "", "2023-12-01", "", "", "CURRENT", "100-2020", ""}

	t.Run("lenient warns", func(t *testing.T) {
		env := newIngestEnv(t, services.IngestConfig{})
		c := env.seedCompany(t, "20123456789")
		old := env.seedParent(t, c.ID(), "100-2020", "2020-01-01", 4)
		env.resolutions.put(old.SetState(resolution.StateRenewed))

		report, err := env.svc.Process(context.Background(), buildSheet(t, resolutionTestHeaders, childRow), services.BatchResolutions, false)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Valid)
		assert.True(t, hasCode(report.WarningRows, 2, "PARENT_NOT_CURRENT"))
	})

	t.Run("strict fails", func(t *testing.T) {
		env := newIngestEnv(t, services.IngestConfig{Strict: true})
		c := env.seedCompany(t, "20123456789")
		old := env.seedParent(t, c.ID(), "100-2020", "2020-01-01", 4)
		env.resolutions.put(old.SetState(resolution.StateRenewed))

		report, err := env.svc.Process(context.Background(), buildSheet(t, resolutionTestHeaders, childRow), services.BatchResolutions, false)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Invalid)
		assert.True(t, hasCode(report.Errors, 2, "PARENT_NOT_CURRENT"))
	})
}

func TestIngest_ChildOutsideParentWindow(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})
	c := env.seedCompany(t, "20123456789")
	env.seedParent(t, c.ID(), "100-2020", "2020-01-01", 4)

	data := buildSheet(t, resolutionTestHeaders,
		[]interface{}{"20123456789", "950-2024", "INCREMENT", "", "2024-06-01", "", "", "CURRENT", "100-2020", ""},
	)

	report, err := env.svc.Process(context.Background(), data, services.BatchResolutions, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Invalid)
	assert.True(t, hasCode(report.Errors, 2, "PARENT_WINDOW"))
}

func TestIngest_TemplateRoundTrip(t *testing.T) {
	env := newIngestEnv(t, services.IngestConfig{})

	for _, kind := range []services.BatchKind{services.BatchResolutions, services.BatchRoutes} {
		data, err := env.svc.GenerateTemplate(kind)
		require.NoError(t, err)

		report, err := env.svc.Validate(context.Background(), data, kind)
		require.NoError(t, err)
		assert.Equal(t, 0, report.TotalRows)
	}
}
