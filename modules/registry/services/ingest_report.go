package services

import (
	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/pkg/serrors"
)

// BatchKind selects which sheet layout a batch carries.
type BatchKind string

const (
	BatchResolutions BatchKind = "RESOLUTIONS"
	BatchRoutes      BatchKind = "ROUTES"
)

// Stable error codes exposed through the batch report. Grouped by detection
// stage: format, reference, uniqueness, invariant, commit.
var (
	ErrMissingHeader          = serrors.NewError("MISSING_HEADER", "required column missing")
	ErrMissingField           = serrors.NewError("MISSING_FIELD", "required field is empty")
	ErrBadFormat              = serrors.NewError("BAD_FORMAT", "value has an invalid format")
	ErrBadDate                = serrors.NewError("BAD_DATE", "value is not a recognizable date")
	ErrEnumOutOfRange         = serrors.NewError("ENUM_OUT_OF_RANGE", "value outside the accepted set")
	ErrItineraryTooShort      = serrors.NewError("ITINERARY_TOO_SHORT", "itinerary shorter than 5 characters")
	ErrOriginEqualsDest       = serrors.NewError("ORIGIN_EQUALS_DESTINATION", "origin and destination are the same")
	ErrStartTooFar            = serrors.NewError("START_TOO_FAR", "validity start beyond ten years ahead")
	ErrValidityEndMismatch    = serrors.NewError("VALIDITY_END_MISMATCH", "sheet validity end disagrees with computed value")
	ErrCompanyNotFound        = serrors.NewError("COMPANY_NOT_FOUND", "no company registered under this RUC")
	ErrResolutionNotFound     = serrors.NewError("RESOLUTION_NOT_FOUND", "referenced resolution does not exist")
	ErrParentNotFound         = serrors.NewError("PARENT_NOT_FOUND", "parent resolution does not exist")
	ErrParentNotParent        = serrors.NewError("PARENT_NOT_PARENT", "referenced resolution is not a parent")
	ErrParentNotCurrent       = serrors.NewError("PARENT_NOT_CURRENT", "parent resolution is not current")
	ErrResolutionNotCommitted = serrors.NewError("RESOLUTION_NOT_COMMITTED", "referenced resolution was not created")
	ErrLocalityNotFound       = serrors.NewError("LOCALITY_NOT_FOUND", "locality not registered")
	ErrVehicleNotFound        = serrors.NewError("VEHICLE_NOT_FOUND", "vehicle plate not registered")
	ErrDuplicateInBatch       = serrors.NewError("DUPLICATE_IN_BATCH", "natural key repeated within the batch")
	ErrDuplicate              = serrors.NewError("DUPLICATE", "natural key already persisted")
	ErrParentWindow           = serrors.NewError("PARENT_WINDOW", "validity start outside the parent window")
	ErrValidityInPast         = serrors.NewError("VALIDITY_IN_PAST", "validity window already closed")
	ErrCommitFailed           = serrors.NewError("COMMIT_FAILED", "database write failed")
)

// RowIssue attaches one or more coded messages to a sheet row. Row numbers are
// absolute spreadsheet rows: the header is row 1, data starts at 2, matching
// what operators see in their editor.
type RowIssue struct {
	Row      int      `json:"row"`
	Key      string   `json:"key"`
	Messages []string `json:"messages"`
}

// RowResult records a materialized row.
type RowResult struct {
	Row        int       `json:"row"`
	Kind       string    `json:"kind"`
	ID         uuid.UUID `json:"id"`
	NaturalKey string    `json:"naturalKey"`
}

type CommitFailure struct {
	Row   int    `json:"row"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Report is the stable result contract of validate and process. The same
// shape is returned whether or not the commit phase ran; dry runs simply leave
// the created/updated/commitFailed sections empty.
type Report struct {
	TotalRows int `json:"totalRows"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Warnings  int `json:"warnings"`

	Errors       []RowIssue      `json:"errors"`
	WarningRows  []RowIssue      `json:"warningRows"`
	Created      []RowResult     `json:"created"`
	Updated      []RowResult     `json:"updated"`
	CommitFailed []CommitFailure `json:"commitFailed"`
}

func newReport(total int) *Report {
	return &Report{
		TotalRows:    total,
		Errors:       []RowIssue{},
		WarningRows:  []RowIssue{},
		Created:      []RowResult{},
		Updated:      []RowResult{},
		CommitFailed: []CommitFailure{},
	}
}
