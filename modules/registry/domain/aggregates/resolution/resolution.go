package resolution

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindParent Kind = "PARENT"
	KindChild  Kind = "CHILD"
)

// Procedure is the administrative act a resolution represents.
type Procedure string

const (
	ProcedureNewAuthorization Procedure = "NEW_AUTHORIZATION"
	ProcedureRenewal          Procedure = "RENEWAL"
	ProcedureModification     Procedure = "MODIFICATION"
	ProcedureIncrement        Procedure = "INCREMENT"
	ProcedureSubstitution     Procedure = "SUBSTITUTION"
)

var procedureAliases = map[string]Procedure{
	"PRIMIGENIA":         ProcedureNewAuthorization,
	"AUTORIZACION_NUEVA": ProcedureNewAuthorization,
	"RENOVACION":         ProcedureRenewal,
	"MODIFICACION":       ProcedureModification,
	"INCREMENTO":         ProcedureIncrement,
	"SUSTITUCION":        ProcedureSubstitution,
}

func ParseProcedure(raw string) (Procedure, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch Procedure(v) {
	case ProcedureNewAuthorization, ProcedureRenewal, ProcedureModification,
		ProcedureIncrement, ProcedureSubstitution:
		return Procedure(v), true
	}
	if p, ok := procedureAliases[v]; ok {
		return p, true
	}
	return "", false
}

// KindOf derives the hierarchy kind from the procedure: new authorizations
// and renewals open a parent lifetime, the rest modify an existing one.
func KindOf(p Procedure) Kind {
	switch p {
	case ProcedureNewAuthorization, ProcedureRenewal:
		return KindParent
	default:
		return KindChild
	}
}

// Family groups procedures whose CURRENT PARENT resolutions are mutually
// exclusive per company.
type Family string

const FamilyAuthorization Family = "AUTHORIZATION"

func FamilyOf(p Procedure) Family {
	// All five procedures hang off the authorization lifeline today. The
	// family indirection stays because freight permits are expected to join
	// as a second family.
	return FamilyAuthorization
}

type State string

const (
	StateCurrent  State = "CURRENT"
	StateExpired  State = "EXPIRED"
	StateRenewed  State = "RENEWED"
	StateAnnulled State = "ANNULLED"
)

var stateAliases = map[string]State{
	"VIGENTE":  StateCurrent,
	"VENCIDA":  StateExpired,
	"RENOVADA": StateRenewed,
	"ANULADA":  StateAnnulled,
}

func ParseState(raw string) (State, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch State(v) {
	case StateCurrent, StateExpired, StateRenewed, StateAnnulled:
		return State(v), true
	}
	if s, ok := stateAliases[v]; ok {
		return s, true
	}
	return "", false
}

// DefaultChildValidityYears applies when a CHILD row omits the year count.
// PARENT rows must state it explicitly.
const DefaultChildValidityYears = 4

const (
	MinValidityYears = 1
	MaxValidityYears = 20
)

var numberPattern = regexp.MustCompile(`^(?:R-)?(\d{1,4})-(\d{4})$`)

// CanonicalNumber normalizes a resolution number to R-NNNN-YYYY with a
// zero-padded four digit sequence. "921-2023" becomes "R-0921-2023";
// already-canonical input passes through. The second return is false when the
// input does not match any accepted shape.
func CanonicalNumber(raw string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	m := numberPattern.FindStringSubmatch(v)
	if m == nil {
		return v, false
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return v, false
	}
	return fmt.Sprintf("R-%04d-%s", seq, m[2]), true
}

// ValidityEnd computes the inclusive end of the validity window:
// start + years calendar years - 1 day.
func ValidityEnd(start time.Time, years int) time.Time {
	return start.AddDate(years, 0, -1)
}

type Resolution struct {
	id             uuid.UUID
	number         string
	companyID      uuid.UUID
	kind           Kind
	procedure      Procedure
	issueDate      time.Time
	validityStart  time.Time
	validityYears  int
	validityEnd    time.Time
	state          State
	parentID       uuid.UUID
	routeIDs       []uuid.UUID
	vehicleIDs     []uuid.UUID
	childIDs       []uuid.UUID
	active         bool
	createdAt      time.Time
	updatedAt      time.Time
}

func New(number string, companyID uuid.UUID, procedure Procedure, issueDate, validityStart time.Time, validityYears int, state State) Resolution {
	canonical, _ := CanonicalNumber(number)
	return Resolution{
		id:            uuid.New(),
		number:        canonical,
		companyID:     companyID,
		kind:          KindOf(procedure),
		procedure:     procedure,
		issueDate:     issueDate,
		validityStart: validityStart,
		validityYears: validityYears,
		validityEnd:   ValidityEnd(validityStart, validityYears),
		state:         state,
		active:        true,
	}
}

func Hydrate(
	id uuid.UUID,
	number string,
	companyID uuid.UUID,
	kind Kind,
	procedure Procedure,
	issueDate, validityStart time.Time,
	validityYears int,
	validityEnd time.Time,
	state State,
	parentID uuid.UUID,
	routeIDs, vehicleIDs, childIDs []uuid.UUID,
	active bool,
	createdAt, updatedAt time.Time,
) Resolution {
	return Resolution{
		id:            id,
		number:        number,
		companyID:     companyID,
		kind:          kind,
		procedure:     procedure,
		issueDate:     issueDate,
		validityStart: validityStart,
		validityYears: validityYears,
		validityEnd:   validityEnd,
		state:         state,
		parentID:      parentID,
		routeIDs:      routeIDs,
		vehicleIDs:    vehicleIDs,
		childIDs:      childIDs,
		active:        active,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (r Resolution) ID() uuid.UUID            { return r.id }
func (r Resolution) Number() string           { return r.number }
func (r Resolution) CompanyID() uuid.UUID     { return r.companyID }
func (r Resolution) Kind() Kind               { return r.kind }
func (r Resolution) Procedure() Procedure     { return r.procedure }
func (r Resolution) Family() Family           { return FamilyOf(r.procedure) }
func (r Resolution) IssueDate() time.Time     { return r.issueDate }
func (r Resolution) ValidityStart() time.Time { return r.validityStart }
func (r Resolution) ValidityYears() int       { return r.validityYears }
func (r Resolution) ValidityEnd() time.Time   { return r.validityEnd }
func (r Resolution) State() State             { return r.state }
func (r Resolution) ParentID() uuid.UUID      { return r.parentID }
func (r Resolution) RouteIDs() []uuid.UUID    { return r.routeIDs }
func (r Resolution) VehicleIDs() []uuid.UUID  { return r.vehicleIDs }
func (r Resolution) ChildIDs() []uuid.UUID    { return r.childIDs }
func (r Resolution) Active() bool             { return r.active }
func (r Resolution) CreatedAt() time.Time     { return r.createdAt }
func (r Resolution) UpdatedAt() time.Time     { return r.updatedAt }
func (r Resolution) IsZero() bool             { return r.id == uuid.Nil && r.number == "" }

// ContainsDate reports whether d falls inside the validity window, inclusive
// on both ends.
func (r Resolution) ContainsDate(d time.Time) bool {
	return !d.Before(r.validityStart) && !d.After(r.validityEnd)
}

func (r Resolution) SetParentID(id uuid.UUID) Resolution {
	r.parentID = id
	return r
}

func (r Resolution) SetState(state State) Resolution {
	r.state = state
	return r
}
