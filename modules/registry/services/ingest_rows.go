package services

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/vehicle"
	"github.com/sirta-dev/sirta/pkg/excel"
	"github.com/sirta-dev/sirta/pkg/serrors"
)

type rowOp string

const (
	opCreate rowOp = "CREATE"
	opUpdate rowOp = "UPDATE"
)

// rowBase accumulates per-row findings across the pipeline stages. Errors make
// the row invalid; warnings keep it eligible for commit. The row number is the
// absolute spreadsheet row (header = 1).
type rowBase struct {
	row   int
	errs  []string
	warns []string
}

func (b *rowBase) fail(e *serrors.Base, format string, args ...any) {
	b.errs = append(b.errs, e.WithMessage(format, args...).Error())
}

func (b *rowBase) warn(e *serrors.Base, format string, args ...any) {
	b.warns = append(b.warns, e.WithMessage(format, args...).Error())
}

func (b *rowBase) valid() bool { return len(b.errs) == 0 }

type resolutionDraft struct {
	rowBase

	ruc           string
	number        string
	procedure     resolution.Procedure
	kind          resolution.Kind
	issueDate     time.Time
	validityStart time.Time
	validityYears int
	state         resolution.State
	parentNumber  string
	plates        []string

	// Filled in by the resolver and checker stages.
	op           rowOp
	companyID    uuid.UUID
	existing     resolution.Resolution
	parentID     uuid.UUID
	parentRow    *resolutionDraft      // parent materialized earlier in the same batch
	supersede    resolution.Resolution // persisted CURRENT parent to transition to RENEWED
	supersedeRow *resolutionDraft
	vehicleIDs   []uuid.UUID

	// Filled in by the commit phase.
	committedID uuid.UUID
	changed     bool
}

func (d *resolutionDraft) key() string { return d.ruc + "/" + d.number }

func (d *resolutionDraft) validityEnd() time.Time {
	return resolution.ValidityEnd(d.validityStart, d.validityYears)
}

type routeDraft struct {
	rowBase

	ruc         string
	number      string
	code        string
	origin      string
	destination string
	itinerary   string
	frequency   string
	routeType   route.RouteType
	serviceType company.ServiceType
	state       route.State

	op           rowOp
	companyID    uuid.UUID
	resolutionID uuid.UUID
	existing     route.Route

	committedID uuid.UUID
	changed     bool
}

func (d *routeDraft) key() string { return d.ruc + "/" + d.number + "/" + d.code }

// parseResolutionRow normalizes and validates one resolution sheet row. It
// never aborts: every problem lands on the draft as a coded error or warning.
func parseResolutionRow(t *excel.Table, i int, now time.Time) *resolutionDraft {
	d := &resolutionDraft{rowBase: rowBase{row: i + 2}}

	if ruc, ok := t.Cell(i, headerRUC).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerRUC)
	} else {
		d.ruc = company.NormalizeRUC(ruc)
		if !company.IsValidRUC(d.ruc) {
			d.fail(ErrBadFormat, "RUC %q must be 11 digits", d.ruc)
		}
	}

	if raw, ok := t.Cell(i, headerResolution).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerResolution)
	} else {
		canonical, ok := resolution.CanonicalNumber(raw)
		d.number = canonical
		if !ok {
			d.fail(ErrBadFormat, "resolution number %q does not match R-NNNN-YYYY", raw)
		}
	}

	if raw, ok := t.Cell(i, headerProcedure).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerProcedure)
	} else if p, ok := resolution.ParseProcedure(raw); !ok {
		d.fail(ErrEnumOutOfRange, "unknown procedure %q", raw)
	} else {
		d.procedure = p
		d.kind = resolution.KindOf(p)
	}

	if c := t.Cell(i, headerIssueDate); !c.IsAbsent() {
		if issue, ok := c.Date(); ok {
			d.issueDate = issue
		} else {
			d.fail(ErrBadDate, "%s %q", headerIssueDate, c.Raw)
		}
	}

	startOK := false
	if c := t.Cell(i, headerValidityStart); c.IsAbsent() {
		d.fail(ErrMissingField, "%s is required", headerValidityStart)
	} else if start, ok := c.Date(); !ok {
		d.fail(ErrBadDate, "%s %q", headerValidityStart, c.Raw)
	} else {
		d.validityStart = start
		startOK = true
		if start.After(now.AddDate(10, 0, 0)) {
			d.fail(ErrStartTooFar, "validity start %s is more than ten years ahead", start.Format("2006-01-02"))
		}
	}

	yearsOK := false
	if c := t.Cell(i, headerValidityYears); c.IsAbsent() {
		if d.kind == resolution.KindParent {
			d.fail(ErrMissingField, "%s is mandatory for parent resolutions", headerValidityYears)
		} else {
			d.validityYears = resolution.DefaultChildValidityYears
			yearsOK = true
		}
	} else if years, ok := c.Int(); !ok {
		d.fail(ErrBadFormat, "%s %q is not a number", headerValidityYears, c.Raw)
	} else if years < resolution.MinValidityYears || years > resolution.MaxValidityYears {
		d.fail(ErrBadFormat, "%s %d outside [%d,%d]", headerValidityYears, years,
			resolution.MinValidityYears, resolution.MaxValidityYears)
	} else {
		d.validityYears = years
		yearsOK = true
	}

	// The sheet may carry its own end date; the computed one always wins, a
	// disagreement beyond one day is surfaced as a warning.
	if c := t.Cell(i, headerValidityEnd); !c.IsAbsent() && startOK && yearsOK {
		if sheetEnd, ok := c.Date(); !ok {
			d.warn(ErrBadDate, "%s %q ignored", headerValidityEnd, c.Raw)
		} else if delta := sheetEnd.Sub(d.validityEnd()); delta > 24*time.Hour || delta < -24*time.Hour {
			d.warn(ErrValidityEndMismatch, "sheet says %s, computed %s",
				sheetEnd.Format("2006-01-02"), d.validityEnd().Format("2006-01-02"))
		}
	}

	if raw, ok := t.Cell(i, headerState).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerState)
	} else if st, ok := resolution.ParseState(raw); !ok {
		d.fail(ErrEnumOutOfRange, "unknown resolution state %q", raw)
	} else {
		d.state = st
	}

	if raw, ok := t.Cell(i, headerParentNumber).String(); ok {
		canonical, ok := resolution.CanonicalNumber(raw)
		if !ok {
			d.fail(ErrBadFormat, "parent number %q does not match R-NNNN-YYYY", raw)
		}
		d.parentNumber = canonical
	}

	if raw, ok := t.Cell(i, headerPlates).String(); ok {
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
			if p := vehicle.NormalizePlate(part); p != "" {
				d.plates = append(d.plates, p)
			}
		}
	}

	return d
}

// parseRouteRow normalizes and validates one route sheet row.
func parseRouteRow(t *excel.Table, i int) *routeDraft {
	d := &routeDraft{rowBase: rowBase{row: i + 2}}

	if ruc, ok := t.Cell(i, headerRUC).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerRUC)
	} else {
		d.ruc = company.NormalizeRUC(ruc)
		if !company.IsValidRUC(d.ruc) {
			d.fail(ErrBadFormat, "RUC %q must be 11 digits", d.ruc)
		}
	}

	if raw, ok := t.Cell(i, headerResolution).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerResolution)
	} else {
		canonical, ok := resolution.CanonicalNumber(raw)
		d.number = canonical
		if !ok {
			d.fail(ErrBadFormat, "resolution number %q does not match R-NNNN-YYYY", raw)
		}
	}

	if raw, ok := t.Cell(i, headerRouteCode).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerRouteCode)
	} else {
		code, ok := route.NormalizeCode(raw)
		d.code = code
		if !ok {
			d.fail(ErrBadFormat, "route code %q must be digits", raw)
		}
	}

	if origin, ok := t.Cell(i, headerOrigin).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerOrigin)
	} else {
		d.origin = strings.ToUpper(origin)
	}

	if dest, ok := t.Cell(i, headerDestination).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerDestination)
	} else {
		d.destination = strings.ToUpper(dest)
	}

	if d.origin != "" && d.origin == d.destination {
		d.fail(ErrOriginEqualsDest, "%q", d.origin)
	}

	raw, _ := t.Cell(i, headerItinerary).String()
	d.itinerary = route.NormalizeItinerary(raw)
	if d.itinerary != route.NoItinerary && utf8.RuneCountInString(d.itinerary) < route.MinItineraryLen {
		d.fail(ErrItineraryTooShort, "%q", d.itinerary)
	}

	if freq, ok := t.Cell(i, headerFrequency).String(); !ok {
		d.fail(ErrMissingField, "%s is required", headerFrequency)
	} else {
		d.frequency = freq
	}

	if raw, ok := t.Cell(i, headerRouteType).String(); ok {
		if rt, ok := route.ParseRouteType(raw); ok {
			d.routeType = rt
		} else {
			d.fail(ErrEnumOutOfRange, "unknown route type %q", raw)
		}
	}

	if raw, ok := t.Cell(i, headerServiceType).String(); ok {
		if st, ok := company.ParseServiceType(raw); ok {
			d.serviceType = st
		} else {
			d.fail(ErrEnumOutOfRange, "unknown service type %q", raw)
		}
	}

	d.state = route.StateActive
	if raw, ok := t.Cell(i, headerState).String(); ok {
		if st, ok := route.ParseState(raw); ok {
			d.state = st
		} else {
			d.fail(ErrEnumOutOfRange, "unknown route state %q", raw)
		}
	}

	return d
}
