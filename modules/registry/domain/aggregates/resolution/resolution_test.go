package resolution_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
)

func TestCanonicalNumber(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
		ok   bool
	}{
		"three digit":       {"921-2023", "R-0921-2023", true},
		"four digit":        {"0921-2023", "R-0921-2023", true},
		"already canonical": {"R-0921-2023", "R-0921-2023", true},
		"prefixed short":    {"R-921-2023", "R-0921-2023", true},
		"lowercase prefix":  {"r-921-2023", "R-0921-2023", true},
		"padded input":      {"  921-2023 ", "R-0921-2023", true},
		"two digit year":    {"921-23", "921-23", false},
		"no year":           {"921", "921", false},
		"junk":              {"RESOLUCION 921", "RESOLUCION 921", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := resolution.CanonicalNumber(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalNumber_Idempotent(t *testing.T) {
	once, ok := resolution.CanonicalNumber("15-2024")
	require.True(t, ok)
	twice, ok := resolution.CanonicalNumber(once)
	require.True(t, ok)
	require.Equal(t, once, twice)
}

func TestValidityEnd(t *testing.T) {
	start := time.Date(2023, 11, 6, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2027, 11, 5, 0, 0, 0, 0, time.UTC), resolution.ValidityEnd(start, 4))
	// ten calendar years forward minus one day, not four
	require.Equal(t, time.Date(2033, 11, 5, 0, 0, 0, 0, time.UTC), resolution.ValidityEnd(start, 10))

	// leap-day start collapses to Feb 28 on non-leap years
	leap := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), resolution.ValidityEnd(leap, 1))
}

func TestParseProcedure(t *testing.T) {
	p, ok := resolution.ParseProcedure("renewal")
	require.True(t, ok)
	require.Equal(t, resolution.ProcedureRenewal, p)

	p, ok = resolution.ParseProcedure("PRIMIGENIA")
	require.True(t, ok)
	require.Equal(t, resolution.ProcedureNewAuthorization, p)

	p, ok = resolution.ParseProcedure("INCREMENTO")
	require.True(t, ok)
	require.Equal(t, resolution.ProcedureIncrement, p)

	_, ok = resolution.ParseProcedure("TRANSFERENCIA")
	require.False(t, ok)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, resolution.KindParent, resolution.KindOf(resolution.ProcedureNewAuthorization))
	require.Equal(t, resolution.KindParent, resolution.KindOf(resolution.ProcedureRenewal))
	require.Equal(t, resolution.KindChild, resolution.KindOf(resolution.ProcedureModification))
	require.Equal(t, resolution.KindChild, resolution.KindOf(resolution.ProcedureIncrement))
	require.Equal(t, resolution.KindChild, resolution.KindOf(resolution.ProcedureSubstitution))
}

func TestContainsDate(t *testing.T) {
	r := resolution.New(
		"R-0100-2020",
		uuid.New(),
		resolution.ProcedureNewAuthorization,
		time.Time{},
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		4,
		resolution.StateCurrent,
	)
	require.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), r.ValidityEnd())
	require.True(t, r.ContainsDate(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, r.ContainsDate(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
	require.False(t, r.ContainsDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.False(t, r.ContainsDate(time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestParseState_Aliases(t *testing.T) {
	s, ok := resolution.ParseState("VIGENTE")
	require.True(t, ok)
	require.Equal(t, resolution.StateCurrent, s)

	s, ok = resolution.ParseState("current")
	require.True(t, ok)
	require.Equal(t, resolution.StateCurrent, s)

	_, ok = resolution.ParseState("EN_REVISION")
	require.False(t, ok)
}
