package services

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/locality"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/vehicle"
)

// resolutionBatch carries one resolution sheet through the pipeline together
// with everything resolved from persisted state. All lookups are batched; the
// stages after resolution work purely in memory.
type resolutionBatch struct {
	drafts []*resolutionDraft

	companies      map[string]company.Company                      // by RUC
	parents        map[uuid.UUID]resolution.Resolution             // persisted parents by id
	currentParents map[uuid.UUID]resolution.Resolution             // CURRENT parent per company id
	existing       map[resolution.NumberKey]resolution.Resolution  // same-key persisted rows
	vehicles       map[string]vehicle.Vehicle                      // by plate
}

type routeBatch struct {
	drafts []*routeDraft

	companies   map[string]company.Company
	resolutions map[resolution.NumberKey]resolution.Resolution
}

// resolveResolutions looks up companies, same-key resolutions, referenced
// parents and vehicle plates for the whole batch, classifying each row as
// CREATE or UPDATE. Rows already invalid are skipped.
func (s *IngestService) resolveResolutions(ctx context.Context, b *resolutionBatch) error {
	rucs := make([]string, 0, len(b.drafts))
	seen := map[string]struct{}{}
	plates := make([]string, 0)
	for _, d := range b.drafts {
		if !d.valid() {
			continue
		}
		if _, ok := seen[d.ruc]; !ok {
			seen[d.ruc] = struct{}{}
			rucs = append(rucs, d.ruc)
		}
		plates = append(plates, d.plates...)
	}

	var err error
	b.companies, err = s.companies.GetByRUCs(ctx, rucs)
	if err != nil {
		return errors.Wrap(err, "resolve companies")
	}
	b.vehicles, err = s.vehicles.GetByPlates(ctx, plates)
	if err != nil {
		return errors.Wrap(err, "resolve vehicles")
	}

	keys := make([]resolution.NumberKey, 0, len(b.drafts))
	parentKeys := make([]resolution.NumberKey, 0)
	parentCompanies := map[uuid.UUID]struct{}{}
	for _, d := range b.drafts {
		if !d.valid() {
			continue
		}
		c, ok := b.companies[d.ruc]
		if !ok {
			d.fail(ErrCompanyNotFound, "RUC %s", d.ruc)
			continue
		}
		d.companyID = c.ID()
		keys = append(keys, resolution.NumberKey{CompanyID: c.ID(), Number: d.number})
		if d.parentNumber != "" {
			parentKeys = append(parentKeys, resolution.NumberKey{CompanyID: c.ID(), Number: d.parentNumber})
		}
		// CURRENT parents are needed both to supersede on renewal and to
		// attach children that omit an explicit parent number.
		if d.kind == resolution.KindParent || d.parentNumber == "" {
			parentCompanies[c.ID()] = struct{}{}
		}
	}

	b.existing, err = s.resolutions.GetByNumbers(ctx, keys)
	if err != nil {
		return errors.Wrap(err, "resolve existing resolutions")
	}
	persistedParents, err := s.resolutions.GetByNumbers(ctx, parentKeys)
	if err != nil {
		return errors.Wrap(err, "resolve parent resolutions")
	}

	b.parents = make(map[uuid.UUID]resolution.Resolution, len(persistedParents))
	for _, p := range persistedParents {
		b.parents[p.ID()] = p
	}

	companyIDs := make([]uuid.UUID, 0, len(parentCompanies))
	for companyID := range parentCompanies {
		companyIDs = append(companyIDs, companyID)
	}
	b.currentParents, err = s.resolutions.GetCurrentParents(ctx, companyIDs, resolution.FamilyAuthorization)
	if err != nil {
		return errors.Wrap(err, "resolve current parents")
	}
	for _, p := range b.currentParents {
		b.parents[p.ID()] = p
	}

	for _, d := range b.drafts {
		if !d.valid() || d.companyID == uuid.Nil {
			continue
		}

		if existing, ok := b.existing[resolution.NumberKey{CompanyID: d.companyID, Number: d.number}]; ok {
			d.op = opUpdate
			d.existing = existing
		} else {
			d.op = opCreate
		}

		if d.kind == resolution.KindChild {
			s.resolveParentRef(b, d, persistedParents)
		}
	}

	return nil
}

// resolveParentRef attaches a persisted parent to a CHILD draft. When the
// parent is not persisted the draft is left unresolved; the invariant checker
// gets a chance to find it inside the batch before declaring it orphaned.
func (s *IngestService) resolveParentRef(b *resolutionBatch, d *resolutionDraft, persisted map[resolution.NumberKey]resolution.Resolution) {
	var parent resolution.Resolution
	if d.parentNumber != "" {
		parent = persisted[resolution.NumberKey{CompanyID: d.companyID, Number: d.parentNumber}]
	} else {
		parent = b.currentParents[d.companyID]
	}
	if parent.IsZero() {
		return
	}
	if parent.Kind() != resolution.KindParent {
		d.fail(ErrParentNotParent, "%s is %s", parent.Number(), parent.Kind())
		return
	}
	if parent.State() != resolution.StateCurrent {
		if s.strict {
			d.fail(ErrParentNotCurrent, "%s is %s", parent.Number(), parent.State())
			return
		}
		d.warn(ErrParentNotCurrent, "%s is %s", parent.Number(), parent.State())
	}
	d.parentID = parent.ID()
}

// resolveRoutes looks up companies, owning resolutions, same-key routes and
// the origin/destination localities for the whole batch.
func (s *IngestService) resolveRoutes(ctx context.Context, b *routeBatch) error {
	rucs := make([]string, 0, len(b.drafts))
	seenRUC := map[string]struct{}{}
	names := make([]string, 0, 2*len(b.drafts))
	seenName := map[string]struct{}{}
	for _, d := range b.drafts {
		if !d.valid() {
			continue
		}
		if _, ok := seenRUC[d.ruc]; !ok {
			seenRUC[d.ruc] = struct{}{}
			rucs = append(rucs, d.ruc)
		}
		for _, n := range []string{d.origin, d.destination} {
			if _, ok := seenName[n]; !ok {
				seenName[n] = struct{}{}
				names = append(names, n)
			}
		}
	}

	var err error
	b.companies, err = s.companies.GetByRUCs(ctx, rucs)
	if err != nil {
		return errors.Wrap(err, "resolve companies")
	}
	localities, err := s.localities.GetByNames(ctx, names)
	if err != nil {
		return errors.Wrap(err, "resolve localities")
	}

	keys := make([]resolution.NumberKey, 0, len(b.drafts))
	for _, d := range b.drafts {
		if !d.valid() {
			continue
		}
		c, ok := b.companies[d.ruc]
		if !ok {
			d.fail(ErrCompanyNotFound, "RUC %s", d.ruc)
			continue
		}
		d.companyID = c.ID()
		keys = append(keys, resolution.NumberKey{CompanyID: c.ID(), Number: d.number})
	}

	b.resolutions, err = s.resolutions.GetByNumbers(ctx, keys)
	if err != nil {
		return errors.Wrap(err, "resolve owning resolutions")
	}

	codeKeys := make([]route.CodeKey, 0, len(b.drafts))
	for _, d := range b.drafts {
		if !d.valid() || d.companyID == uuid.Nil {
			continue
		}
		owner, ok := b.resolutions[resolution.NumberKey{CompanyID: d.companyID, Number: d.number}]
		if !ok {
			d.fail(ErrResolutionNotFound, "%s for RUC %s", d.number, d.ruc)
			continue
		}
		if owner.Kind() != resolution.KindParent {
			d.fail(ErrParentNotParent, "routes attach to parent resolutions, %s is %s", owner.Number(), owner.Kind())
			continue
		}
		if owner.State() != resolution.StateCurrent {
			d.fail(ErrParentNotCurrent, "%s is %s", owner.Number(), owner.State())
			continue
		}
		d.resolutionID = owner.ID()
		codeKeys = append(codeKeys, route.CodeKey{ResolutionID: owner.ID(), Code: d.code})

		s.checkLocality(d, localities, d.origin)
		s.checkLocality(d, localities, d.destination)
	}

	existing, err := s.routes.GetByCodes(ctx, codeKeys)
	if err != nil {
		return errors.Wrap(err, "resolve existing routes")
	}
	for _, d := range b.drafts {
		if !d.valid() || d.resolutionID == uuid.Nil {
			continue
		}
		if r, ok := existing[route.CodeKey{ResolutionID: d.resolutionID, Code: d.code}]; ok {
			d.op = opUpdate
			d.existing = r
		} else {
			d.op = opCreate
		}
	}

	return nil
}

// checkLocality flags unknown endpoints. A miss is a warning, not an error:
// the raw string is recorded on the route and reconciled later.
func (s *IngestService) checkLocality(d *routeDraft, known map[string]locality.Locality, name string) {
	if name == "" {
		return
	}
	if _, ok := known[name]; !ok {
		d.warn(ErrLocalityNotFound, "%q", name)
	}
}
