package persistence

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Row structs mirror the table columns; arrays are selected as ::text[] and
// scanned separately.

type companyRow struct {
	ID                 pgtype.UUID
	RUC                string
	PrincipalName      string
	OfficialName       string
	ShortName          string
	FiscalAddress      string
	RepresentativeName string
	RepresentativeDNI  string
	Phone              string
	Email              string
	ServiceType        string
	State              string
	Active             bool
	CreatedAt          pgtype.Timestamptz
	UpdatedAt          pgtype.Timestamptz
}

type resolutionRow struct {
	ID            pgtype.UUID
	Number        string
	CompanyID     pgtype.UUID
	Kind          string
	Procedure     string
	IssueDate     pgtype.Date
	ValidityStart pgtype.Date
	ValidityYears int32
	ValidityEnd   pgtype.Date
	State         string
	ParentID      pgtype.UUID
	Active        bool
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type routeRow struct {
	ID           pgtype.UUID
	Code         string
	CompanyID    pgtype.UUID
	ResolutionID pgtype.UUID
	Origin       string
	Destination  string
	Itinerary    string
	Frequency    string
	RouteType    string
	ServiceType  string
	State        string
	Active       bool
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

type localityRow struct {
	ID         pgtype.UUID
	Ubigeo     string
	Name       string
	Province   string
	Department string
}

type vehicleRow struct {
	ID          pgtype.UUID
	Plate       string
	Axles       int32
	Seats       int32
	NetWeight   float64
	GrossWeight float64
	Active      bool
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}
