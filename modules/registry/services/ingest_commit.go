package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/pkg/composables"
	"github.com/sirta-dev/sirta/pkg/serrors"
)

// inTx wraps one row commit in its own transaction when a pool is wired.
// Cross-row atomicity is deliberately not provided: a failing row must not
// roll back its neighbours, and back-reference fixups are idempotent anyway.
func (s *IngestService) inTx(ctx context.Context, fn func(context.Context) error) error {
	if _, err := composables.UsePool(ctx); err != nil {
		return fn(ctx)
	}
	return composables.InTx(ctx, fn)
}

// commitResolutions materializes the valid resolution rows: parents first,
// then children, each in input order. A row failure is recorded and the batch
// continues; cancellation stops before the next row.
func (s *IngestService) commitResolutions(ctx context.Context, b *resolutionBatch, report *Report, reason string, now time.Time) {
	actor := composables.UseActor(ctx)

	parents := make([]*resolutionDraft, 0, len(b.drafts))
	children := make([]*resolutionDraft, 0, len(b.drafts))
	for _, d := range b.drafts {
		if !d.valid() {
			continue
		}
		if d.kind == resolution.KindParent {
			parents = append(parents, d)
		} else {
			children = append(children, d)
		}
	}

	for _, phase := range [][]*resolutionDraft{parents, children} {
		for _, d := range phase {
			if ctx.Err() != nil {
				return
			}
			if err := s.commitResolutionRow(ctx, d, actor, reason, now); err != nil {
				s.log.WithError(err).WithField("row", d.row).Warn("resolution row commit failed")
				report.CommitFailed = append(report.CommitFailed, CommitFailure{
					Row: d.row, Key: d.key(), Error: commitErrorCode(err),
				})
				continue
			}
			result := RowResult{Row: d.row, Kind: "resolution", ID: d.committedID, NaturalKey: d.number}
			switch {
			case d.op == opCreate:
				report.Created = append(report.Created, result)
			case d.changed:
				report.Updated = append(report.Updated, result)
			}
			if !d.supersede.IsZero() {
				report.Updated = append(report.Updated, RowResult{
					Row: d.row, Kind: "resolution", ID: d.supersede.ID(), NaturalKey: d.supersede.Number(),
				})
			}
			if d.supersedeRow != nil && d.supersedeRow.committedID != uuid.Nil {
				report.Updated = append(report.Updated, RowResult{
					Row: d.row, Kind: "resolution", ID: d.supersedeRow.committedID, NaturalKey: d.supersedeRow.number,
				})
			}
		}
	}
}

func (s *IngestService) commitResolutionRow(ctx context.Context, d *resolutionDraft, actor, reason string, now time.Time) error {
	if d.parentID == uuid.Nil && d.parentRow != nil {
		if d.parentRow.committedID == uuid.Nil {
			return ErrResolutionNotCommitted.WithMessage("parent %s", d.parentRow.number)
		}
		d.parentID = d.parentRow.committedID
	}

	// A window that already closed is stored expired regardless of what the
	// sheet says.
	state := d.state
	if state == resolution.StateCurrent && d.validityEnd().Before(now) {
		state = resolution.StateExpired
	}

	return s.inTx(ctx, func(txCtx context.Context) error {
		switch d.op {
		case opCreate:
			r := resolution.New(d.number, d.companyID, d.procedure, d.issueDate, d.validityStart, d.validityYears, state)
			if d.parentID != uuid.Nil {
				r = r.SetParentID(d.parentID)
			}
			created, err := s.resolutions.Create(txCtx, r, actor, reason)
			if err != nil {
				return err
			}
			d.committedID = created.ID()
			d.changed = true
		case opUpdate:
			d.committedID = d.existing.ID()
			merged := s.mergeResolution(d, state)
			if resolutionChanged(d.existing, merged) {
				if _, err := s.resolutions.Update(txCtx, merged, actor, reason); err != nil {
					return err
				}
				d.changed = true
			}
		}

		if !d.supersede.IsZero() {
			if err := s.resolutions.TransitionState(txCtx, d.supersede.ID(), resolution.StateRenewed, actor, reason); err != nil {
				return err
			}
		}
		if d.supersedeRow != nil && d.supersedeRow.committedID != uuid.Nil {
			if err := s.resolutions.TransitionState(txCtx, d.supersedeRow.committedID, resolution.StateRenewed, actor, reason); err != nil {
				return err
			}
		}

		if err := s.companies.AddResolutionRef(txCtx, d.companyID, d.committedID, reason); err != nil {
			return err
		}
		if d.parentID != uuid.Nil {
			if err := s.resolutions.AddChildRef(txCtx, d.parentID, d.committedID, reason); err != nil {
				return err
			}
		}
		for _, vehicleID := range d.vehicleIDs {
			if err := s.resolutions.AddVehicleRef(txCtx, d.committedID, vehicleID, reason); err != nil {
				return err
			}
			if err := s.companies.AddVehicleRef(txCtx, d.companyID, vehicleID, reason); err != nil {
				return err
			}
		}
		return nil
	})
}

// mergeResolution overlays the supplied row fields on the persisted entity.
// Absent optional fields keep their stored values.
func (s *IngestService) mergeResolution(d *resolutionDraft, state resolution.State) resolution.Resolution {
	issue := d.issueDate
	if issue.IsZero() {
		issue = d.existing.IssueDate()
	}
	parentID := d.parentID
	if parentID == uuid.Nil {
		parentID = d.existing.ParentID()
	}
	return resolution.Hydrate(
		d.existing.ID(),
		d.number,
		d.companyID,
		d.kind,
		d.procedure,
		issue,
		d.validityStart,
		d.validityYears,
		d.validityEnd(),
		state,
		parentID,
		d.existing.RouteIDs(),
		d.existing.VehicleIDs(),
		d.existing.ChildIDs(),
		d.existing.Active(),
		d.existing.CreatedAt(),
		d.existing.UpdatedAt(),
	)
}

func resolutionChanged(a, b resolution.Resolution) bool {
	return a.Kind() != b.Kind() ||
		a.Procedure() != b.Procedure() ||
		!a.IssueDate().Equal(b.IssueDate()) ||
		!a.ValidityStart().Equal(b.ValidityStart()) ||
		a.ValidityYears() != b.ValidityYears() ||
		a.State() != b.State() ||
		a.ParentID() != b.ParentID()
}

// commitRoutes materializes the valid route rows in input order.
func (s *IngestService) commitRoutes(ctx context.Context, b *routeBatch, report *Report, reason string) {
	actor := composables.UseActor(ctx)

	for _, d := range b.drafts {
		if ctx.Err() != nil {
			return
		}
		if !d.valid() {
			continue
		}
		if err := s.commitRouteRow(ctx, d, actor, reason); err != nil {
			s.log.WithError(err).WithField("row", d.row).Warn("route row commit failed")
			report.CommitFailed = append(report.CommitFailed, CommitFailure{
				Row: d.row, Key: d.key(), Error: commitErrorCode(err),
			})
			continue
		}
		result := RowResult{Row: d.row, Kind: "route", ID: d.committedID, NaturalKey: d.key()}
		switch {
		case d.op == opCreate:
			report.Created = append(report.Created, result)
		case d.changed:
			report.Updated = append(report.Updated, result)
		}
	}
}

func (s *IngestService) commitRouteRow(ctx context.Context, d *routeDraft, actor, reason string) error {
	return s.inTx(ctx, func(txCtx context.Context) error {
		switch d.op {
		case opCreate:
			r := route.New(d.code, d.companyID, d.resolutionID, d.origin, d.destination, d.itinerary, d.frequency).
				SetTypes(d.routeType, d.serviceType).
				SetState(d.state)
			created, err := s.routes.Create(txCtx, r, actor, reason)
			if err != nil {
				return err
			}
			d.committedID = created.ID()
			d.changed = true
		case opUpdate:
			d.committedID = d.existing.ID()
			merged := s.mergeRoute(d)
			if routeChanged(d.existing, merged) {
				if _, err := s.routes.Update(txCtx, merged, actor, reason); err != nil {
					return err
				}
				d.changed = true
			}
		}

		if err := s.resolutions.AddRouteRef(txCtx, d.resolutionID, d.committedID, reason); err != nil {
			return err
		}
		return s.companies.AddRouteRef(txCtx, d.companyID, d.committedID, reason)
	})
}

func (s *IngestService) mergeRoute(d *routeDraft) route.Route {
	routeType := d.routeType
	if routeType == "" {
		routeType = d.existing.RouteType()
	}
	serviceType := d.serviceType
	if serviceType == "" {
		serviceType = d.existing.ServiceType()
	}
	return route.Hydrate(
		d.existing.ID(),
		d.code,
		d.companyID,
		d.resolutionID,
		d.origin,
		d.destination,
		d.itinerary,
		d.frequency,
		routeType,
		serviceType,
		d.state,
		d.existing.Active(),
		d.existing.CreatedAt(),
		d.existing.UpdatedAt(),
	)
}

func routeChanged(a, b route.Route) bool {
	return a.Origin() != b.Origin() ||
		a.Destination() != b.Destination() ||
		a.Itinerary() != b.Itinerary() ||
		a.Frequency() != b.Frequency() ||
		a.RouteType() != b.RouteType() ||
		a.ServiceType() != b.ServiceType() ||
		a.State() != b.State()
}

// commitErrorCode maps a commit failure to a stable report code. Unique key
// races lost against a concurrent batch surface as DUPLICATE.
func commitErrorCode(err error) string {
	if errors.Is(err, resolution.ErrNumberTaken) || errors.Is(err, route.ErrCodeTaken) {
		return ErrDuplicate.Code
	}
	var base *serrors.Base
	if errors.As(err, &base) {
		return base.Code
	}
	return ErrCommitFailed.Code
}
