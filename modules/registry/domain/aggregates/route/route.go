package route

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
)

// NoItinerary is the canonical sentinel for a blank itinerary cell.
const NoItinerary = "SIN ITINERARIO"

// MinItineraryLen applies to non-empty itineraries after trimming; anything
// shorter is a validation error rather than a candidate for the sentinel.
const MinItineraryLen = 5

type State string

const (
	StateActive   State = "ACTIVA"
	StateInactive State = "INACTIVA"
)

var stateAliases = map[string]State{
	"CANCELADA": StateInactive,
	"VIGENTE":   StateActive,
}

func ParseState(raw string) (State, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch State(v) {
	case StateActive, StateInactive:
		return State(v), true
	}
	if s, ok := stateAliases[v]; ok {
		return s, true
	}
	return "", false
}

type RouteType string

const (
	TypeInterprovincial RouteType = "INTERPROVINCIAL"
	TypeInterdistrital  RouteType = "INTERDISTRITAL"
	TypeUrbana          RouteType = "URBANA"
	TypeRural           RouteType = "RURAL"
)

func ParseRouteType(raw string) (RouteType, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch RouteType(v) {
	case TypeInterprovincial, TypeInterdistrital, TypeUrbana, TypeRural:
		return RouteType(v), true
	}
	return "", false
}

// NormalizeCode keeps digits only and zero-pads to a minimum width of two.
// The code stays a string: "01" and "1" are the same route, "1" as an int is
// a bug waiting to happen in a spreadsheet roundtrip.
func NormalizeCode(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return v, false
		}
	}
	for len(v) < 2 {
		v = "0" + v
	}
	return v, true
}

// NormalizeItinerary trims and substitutes the sentinel for blank cells. It
// never fails; short non-empty values are left for the validator to reject.
func NormalizeItinerary(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return NoItinerary
	}
	return v
}

type Route struct {
	id           uuid.UUID
	code         string
	companyID    uuid.UUID
	resolutionID uuid.UUID
	origin       string
	destination  string
	itinerary    string
	frequency    string
	routeType    RouteType
	serviceType  company.ServiceType
	state        State
	active       bool
	createdAt    time.Time
	updatedAt    time.Time
}

func New(code string, companyID, resolutionID uuid.UUID, origin, destination, itinerary, frequency string) Route {
	normalized, _ := NormalizeCode(code)
	return Route{
		id:           uuid.New(),
		code:         normalized,
		companyID:    companyID,
		resolutionID: resolutionID,
		origin:       strings.ToUpper(strings.TrimSpace(origin)),
		destination:  strings.ToUpper(strings.TrimSpace(destination)),
		itinerary:    NormalizeItinerary(itinerary),
		frequency:    strings.TrimSpace(frequency),
		state:        StateActive,
		active:       true,
	}
}

func Hydrate(
	id uuid.UUID,
	code string,
	companyID, resolutionID uuid.UUID,
	origin, destination, itinerary, frequency string,
	routeType RouteType,
	serviceType company.ServiceType,
	state State,
	active bool,
	createdAt, updatedAt time.Time,
) Route {
	return Route{
		id:           id,
		code:         code,
		companyID:    companyID,
		resolutionID: resolutionID,
		origin:       origin,
		destination:  destination,
		itinerary:    itinerary,
		frequency:    frequency,
		routeType:    routeType,
		serviceType:  serviceType,
		state:        state,
		active:       active,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

func (r Route) ID() uuid.UUID                    { return r.id }
func (r Route) Code() string                     { return r.code }
func (r Route) CompanyID() uuid.UUID             { return r.companyID }
func (r Route) ResolutionID() uuid.UUID          { return r.resolutionID }
func (r Route) Origin() string                   { return r.origin }
func (r Route) Destination() string              { return r.destination }
func (r Route) Itinerary() string                { return r.itinerary }
func (r Route) Frequency() string                { return r.frequency }
func (r Route) RouteType() RouteType             { return r.routeType }
func (r Route) ServiceType() company.ServiceType { return r.serviceType }
func (r Route) State() State                     { return r.state }
func (r Route) Active() bool                     { return r.active }
func (r Route) CreatedAt() time.Time             { return r.createdAt }
func (r Route) UpdatedAt() time.Time             { return r.updatedAt }
func (r Route) IsZero() bool                     { return r.id == uuid.Nil && r.code == "" }

func (r Route) SetTypes(routeType RouteType, serviceType company.ServiceType) Route {
	r.routeType = routeType
	r.serviceType = serviceType
	return r
}

func (r Route) SetState(state State) Route {
	r.state = state
	return r
}
