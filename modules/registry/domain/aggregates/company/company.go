package company

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// State is the lifecycle state of a transport company before the regulator.
type State string

const (
	StateAuthorized State = "AUTHORIZED"
	StateInProcess  State = "IN_PROCESS"
	StateSuspended  State = "SUSPENDED"
	StateCancelled  State = "CANCELLED"
)

// Legacy spellings still found in operator spreadsheets.
var stateAliases = map[string]State{
	"AUTORIZADA": StateAuthorized,
	"EN_TRAMITE": StateInProcess,
	"SUSPENDIDA": StateSuspended,
	"CANCELADA":  StateCancelled,
}

func ParseState(raw string) (State, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch State(v) {
	case StateAuthorized, StateInProcess, StateSuspended, StateCancelled:
		return State(v), true
	}
	if s, ok := stateAliases[v]; ok {
		return s, true
	}
	return "", false
}

// ServiceType classifies the authorized service. Shared with routes.
type ServiceType string

const (
	ServicePersonas     ServiceType = "PERSONAS"
	ServiceTurismo      ServiceType = "TURISMO"
	ServiceTrabajadores ServiceType = "TRABAJADORES"
)

var serviceTypeAliases = map[string]ServiceType{
	"TRANSPORTE_PASAJEROS":    ServicePersonas,
	"TRANSPORTE_TURISTICO":    ServiceTurismo,
	"TRANSPORTE_TRABAJADORES": ServiceTrabajadores,
}

func ParseServiceType(raw string) (ServiceType, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch ServiceType(v) {
	case ServicePersonas, ServiceTurismo, ServiceTrabajadores:
		return ServiceType(v), true
	}
	if s, ok := serviceTypeAliases[v]; ok {
		return s, true
	}
	return "", false
}

// NormalizeRUC strips whitespace. Validation is separate: normalization never
// fails, malformed values are caught by the validator.
func NormalizeRUC(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidRUC reports whether v is exactly 11 ASCII digits.
func IsValidRUC(v string) bool {
	if len(v) != 11 {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeDNI keeps digits only.
func NormalizeDNI(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func IsValidDNI(v string) bool {
	return v != "" && len(v) <= 8
}

type Company struct {
	id                 uuid.UUID
	ruc                string
	principalName      string
	officialName       string
	shortName          string
	fiscalAddress      string
	representativeName string
	representativeDNI  string
	phone              string
	email              string
	serviceType        ServiceType
	state              State
	resolutionIDs      []uuid.UUID
	routeIDs           []uuid.UUID
	vehicleIDs         []uuid.UUID
	active             bool
	createdAt          time.Time
	updatedAt          time.Time
}

func New(ruc, principalName string, serviceType ServiceType, state State) Company {
	return Company{
		id:            uuid.New(),
		ruc:           NormalizeRUC(ruc),
		principalName: strings.TrimSpace(principalName),
		serviceType:   serviceType,
		state:         state,
		active:        true,
	}
}

func Hydrate(
	id uuid.UUID,
	ruc string,
	principalName, officialName, shortName string,
	fiscalAddress string,
	representativeName, representativeDNI string,
	phone, email string,
	serviceType ServiceType,
	state State,
	resolutionIDs, routeIDs, vehicleIDs []uuid.UUID,
	active bool,
	createdAt, updatedAt time.Time,
) Company {
	return Company{
		id:                 id,
		ruc:                NormalizeRUC(ruc),
		principalName:      strings.TrimSpace(principalName),
		officialName:       strings.TrimSpace(officialName),
		shortName:          strings.TrimSpace(shortName),
		fiscalAddress:      strings.TrimSpace(fiscalAddress),
		representativeName: strings.TrimSpace(representativeName),
		representativeDNI:  NormalizeDNI(representativeDNI),
		phone:              strings.TrimSpace(phone),
		email:              strings.TrimSpace(email),
		serviceType:        serviceType,
		state:              state,
		resolutionIDs:      resolutionIDs,
		routeIDs:           routeIDs,
		vehicleIDs:         vehicleIDs,
		active:             active,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}
}

func (c Company) ID() uuid.UUID               { return c.id }
func (c Company) RUC() string                 { return c.ruc }
func (c Company) PrincipalName() string       { return c.principalName }
func (c Company) OfficialName() string        { return c.officialName }
func (c Company) ShortName() string           { return c.shortName }
func (c Company) FiscalAddress() string       { return c.fiscalAddress }
func (c Company) RepresentativeName() string  { return c.representativeName }
func (c Company) RepresentativeDNI() string   { return c.representativeDNI }
func (c Company) Phone() string               { return c.phone }
func (c Company) Email() string               { return c.email }
func (c Company) ServiceType() ServiceType    { return c.serviceType }
func (c Company) State() State                { return c.state }
func (c Company) ResolutionIDs() []uuid.UUID  { return c.resolutionIDs }
func (c Company) RouteIDs() []uuid.UUID       { return c.routeIDs }
func (c Company) VehicleIDs() []uuid.UUID     { return c.vehicleIDs }
func (c Company) Active() bool                { return c.active }
func (c Company) CreatedAt() time.Time        { return c.createdAt }
func (c Company) UpdatedAt() time.Time        { return c.updatedAt }
func (c Company) IsZero() bool                { return c.id == uuid.Nil && c.ruc == "" }

func (c Company) SetState(state State) Company {
	c.state = state
	return c
}

func (c Company) SetContact(phone, email string) Company {
	c.phone = strings.TrimSpace(phone)
	c.email = strings.TrimSpace(email)
	return c
}
