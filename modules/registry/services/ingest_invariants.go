package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
)

// checkResolutionInvariants runs the cross-row rules over the batch plus the
// state resolved from the database. Every violation is enumerated; a row may
// collect several.
func (s *IngestService) checkResolutionInvariants(b *resolutionBatch, now time.Time) {
	s.markBatchDuplicates(resolutionKeys(b.drafts))

	// Row-local checks run first: the cross-row planning below must only see
	// rows still eligible for commit.
	for _, d := range b.drafts {
		if !d.valid() {
			continue
		}
		if d.state == resolution.StateCurrent && d.validityEnd().Before(now) {
			d.warn(ErrValidityInPast, "ends %s, will be stored as EXPIRED", d.validityEnd().Format("2006-01-02"))
		}
		for _, plate := range d.plates {
			v, ok := b.vehicles[plate]
			if !ok {
				d.fail(ErrVehicleNotFound, "%s", plate)
				continue
			}
			d.vehicleIDs = append(d.vehicleIDs, v.ID())
		}
	}

	// Index valid PARENT rows so children can attach to a parent created by
	// the same batch.
	batchParents := map[string]*resolutionDraft{}
	for _, d := range b.drafts {
		if d.valid() && d.kind == resolution.KindParent {
			batchParents[d.key()] = d
		}
	}

	for _, d := range b.drafts {
		if !d.valid() || d.kind != resolution.KindChild {
			continue
		}
		s.checkParentWindow(b, d, batchParents)
	}

	s.planSupersedes(b)
}

// checkParentWindow finalizes the parent link of a CHILD row and verifies the
// temporal envelope: the child's validity start must fall inside the parent's
// window.
func (s *IngestService) checkParentWindow(b *resolutionBatch, d *resolutionDraft, batchParents map[string]*resolutionDraft) {
	if d.parentID != uuid.Nil {
		p := b.parents[d.parentID]
		if !p.ContainsDate(d.validityStart) {
			d.fail(ErrParentWindow, "start %s outside %s..%s of %s",
				d.validityStart.Format("2006-01-02"),
				p.ValidityStart().Format("2006-01-02"),
				p.ValidityEnd().Format("2006-01-02"),
				p.Number())
		}
		return
	}

	var parent *resolutionDraft
	if d.parentNumber != "" {
		parent = batchParents[d.ruc+"/"+d.parentNumber]
	} else {
		// No explicit parent: take the batch parent for the same company
		// whose window covers the child.
		for _, cand := range b.drafts {
			if cand.valid() && cand.kind == resolution.KindParent && cand.companyID == d.companyID &&
				cand.state == resolution.StateCurrent && containsDate(cand, d.validityStart) {
				parent = cand
				break
			}
		}
	}
	if parent == nil {
		d.fail(ErrParentNotFound, "no parent resolution for %s", d.number)
		return
	}
	if !containsDate(parent, d.validityStart) {
		d.fail(ErrParentWindow, "start %s outside %s..%s of %s",
			d.validityStart.Format("2006-01-02"),
			parent.validityStart.Format("2006-01-02"),
			parent.validityEnd().Format("2006-01-02"),
			parent.number)
	}
	d.parentRow = parent
}

func containsDate(d *resolutionDraft, t time.Time) bool {
	return !t.Before(d.validityStart) && !t.After(d.validityEnd())
}

// planSupersedes enforces the single-CURRENT-parent rule. Walking the batch in
// input order, every CURRENT parent row displaces whichever CURRENT parent the
// company held before it; the displaced one is transitioned to RENEWED at
// commit time.
func (s *IngestService) planSupersedes(b *resolutionBatch) {
	type holder struct {
		persisted resolution.Resolution
		row       *resolutionDraft
	}
	pending := map[uuid.UUID]holder{}
	for companyID, p := range b.currentParents {
		pending[companyID] = holder{persisted: p}
	}

	for _, d := range b.drafts {
		if !d.valid() || d.kind != resolution.KindParent || d.state != resolution.StateCurrent {
			continue
		}
		h := pending[d.companyID]
		switch {
		case h.row != nil:
			d.supersedeRow = h.row
		case !h.persisted.IsZero():
			// Updating the current parent itself is not a supersede.
			if !(d.op == opUpdate && d.existing.ID() == h.persisted.ID()) {
				d.supersede = h.persisted
			}
		}
		pending[d.companyID] = holder{row: d}
	}
}

func (s *IngestService) checkRouteInvariants(b *routeBatch) {
	s.markBatchDuplicates(routeKeys(b.drafts))
}

// markBatchDuplicates fails every repeat of a natural key after its first
// occurrence. The first row stays valid.
func (s *IngestService) markBatchDuplicates(rows []keyedRow) {
	seen := map[string]struct{}{}
	for _, r := range rows {
		if !r.base.valid() || r.key == "" {
			continue
		}
		if _, dup := seen[r.key]; dup {
			r.base.fail(ErrDuplicateInBatch, "%s", r.key)
			continue
		}
		seen[r.key] = struct{}{}
	}
}

type keyedRow struct {
	key  string
	base *rowBase
}

func resolutionKeys(drafts []*resolutionDraft) []keyedRow {
	out := make([]keyedRow, len(drafts))
	for i, d := range drafts {
		out[i] = keyedRow{key: d.key(), base: &d.rowBase}
	}
	return out
}

func routeKeys(drafts []*routeDraft) []keyedRow {
	out := make([]keyedRow, len(drafts))
	for i, d := range drafts {
		out[i] = keyedRow{key: d.key(), base: &d.rowBase}
	}
	return out
}
