package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/company"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/resolution"
	"github.com/sirta-dev/sirta/modules/registry/domain/aggregates/route"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/locality"
	"github.com/sirta-dev/sirta/modules/registry/domain/entities/vehicle"
	"github.com/sirta-dev/sirta/modules/registry/domain/events"
	"github.com/sirta-dev/sirta/pkg/eventbus"
	"github.com/sirta-dev/sirta/pkg/excel"
)

// IngestService is the spreadsheet ingest engine: it validates, normalizes,
// cross-references and, unless running dry, materializes resolution and route
// batches. One call handles one batch; concurrent batches are independent.
type IngestService struct {
	companies   company.Repository
	resolutions resolution.Repository
	routes      route.Repository
	localities  locality.Repository
	vehicles    vehicle.Repository
	publisher   eventbus.EventBus
	log         *logrus.Logger

	maxRows int
	strict  bool
}

type IngestConfig struct {
	// MaxRows caps the data rows accepted per batch. <= 0 means no cap.
	MaxRows int
	// Strict escalates the warnings that tolerate historical data (for
	// example a non-CURRENT parent) into row errors.
	Strict bool
}

func NewIngestService(
	companies company.Repository,
	resolutions resolution.Repository,
	routes route.Repository,
	localities locality.Repository,
	vehicles vehicle.Repository,
	publisher eventbus.EventBus,
	log *logrus.Logger,
	conf IngestConfig,
) *IngestService {
	return &IngestService{
		companies:   companies,
		resolutions: resolutions,
		routes:      routes,
		localities:  localities,
		vehicles:    vehicles,
		publisher:   publisher,
		log:         log,
		maxRows:     conf.MaxRows,
		strict:      conf.Strict,
	}
}

// Validate runs the full pipeline without the commit phase. It never writes.
func (s *IngestService) Validate(ctx context.Context, data []byte, kind BatchKind) (*Report, error) {
	return s.run(ctx, data, kind, true)
}

// Process runs the full pipeline and, when dryRun is false, commits every
// valid row. A dry run produces a report identical to Validate.
func (s *IngestService) Process(ctx context.Context, data []byte, kind BatchKind, dryRun bool) (*Report, error) {
	return s.run(ctx, data, kind, dryRun)
}

func (s *IngestService) run(ctx context.Context, data []byte, kind BatchKind, dryRun bool) (*Report, error) {
	batchID := uuid.New()
	now := time.Now().UTC()

	table, err := excel.ReadTable(data, s.maxRows)
	if err != nil {
		return nil, err
	}

	var report *Report
	switch kind {
	case BatchResolutions:
		report, err = s.runResolutions(ctx, table, batchID, dryRun, now)
	case BatchRoutes:
		report, err = s.runRoutes(ctx, table, batchID, dryRun)
	default:
		return nil, ErrBadFormat.WithMessage("unknown batch kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"batch":   batchID,
		"kind":    kind,
		"total":   report.TotalRows,
		"valid":   report.Valid,
		"invalid": report.Invalid,
		"dry_run": dryRun,
	}).Info("batch processed")
	return report, nil
}

func (s *IngestService) runResolutions(ctx context.Context, table *excel.Table, batchID uuid.UUID, dryRun bool, now time.Time) (*Report, error) {
	if err := table.Require(resolutionRequired...); err != nil {
		return nil, ErrMissingHeader.WithMessage("%s", err)
	}

	b := &resolutionBatch{drafts: make([]*resolutionDraft, 0, table.Len())}
	for i := 0; i < table.Len(); i++ {
		b.drafts = append(b.drafts, parseResolutionRow(table, i, now))
	}

	if err := s.resolveResolutions(ctx, b); err != nil {
		return nil, err
	}
	s.checkResolutionInvariants(b, now)

	report := newReport(len(b.drafts))
	for _, d := range b.drafts {
		tallyRow(report, &d.rowBase, d.key())
	}
	s.publisher.Publish(events.BatchValidated{
		BatchID:  batchID,
		Kind:     string(BatchResolutions),
		Total:    report.TotalRows,
		Valid:    report.Valid,
		Invalid:  report.Invalid,
		Warnings: report.Warnings,
	})

	if dryRun || report.Valid == 0 {
		return report, nil
	}

	s.commitResolutions(ctx, b, report, ingestReason(batchID), now)
	s.publisher.Publish(events.BatchCommitted{
		BatchID: batchID,
		Kind:    string(BatchResolutions),
		Created: len(report.Created),
		Updated: len(report.Updated),
		Failed:  len(report.CommitFailed),
	})
	return report, nil
}

func (s *IngestService) runRoutes(ctx context.Context, table *excel.Table, batchID uuid.UUID, dryRun bool) (*Report, error) {
	if err := table.Require(routeRequired...); err != nil {
		return nil, ErrMissingHeader.WithMessage("%s", err)
	}

	b := &routeBatch{drafts: make([]*routeDraft, 0, table.Len())}
	for i := 0; i < table.Len(); i++ {
		b.drafts = append(b.drafts, parseRouteRow(table, i))
	}

	if err := s.resolveRoutes(ctx, b); err != nil {
		return nil, err
	}
	s.checkRouteInvariants(b)

	report := newReport(len(b.drafts))
	for _, d := range b.drafts {
		tallyRow(report, &d.rowBase, d.key())
	}
	s.publisher.Publish(events.BatchValidated{
		BatchID:  batchID,
		Kind:     string(BatchRoutes),
		Total:    report.TotalRows,
		Valid:    report.Valid,
		Invalid:  report.Invalid,
		Warnings: report.Warnings,
	})

	if dryRun || report.Valid == 0 {
		return report, nil
	}

	s.commitRoutes(ctx, b, report, ingestReason(batchID))
	s.publisher.Publish(events.BatchCommitted{
		BatchID: batchID,
		Kind:    string(BatchRoutes),
		Created: len(report.Created),
		Updated: len(report.Updated),
		Failed:  len(report.CommitFailed),
	})
	return report, nil
}

func tallyRow(report *Report, b *rowBase, key string) {
	if b.valid() {
		report.Valid++
	} else {
		report.Invalid++
		report.Errors = append(report.Errors, RowIssue{Row: b.row, Key: key, Messages: b.errs})
	}
	if len(b.warns) > 0 {
		report.Warnings++
		report.WarningRows = append(report.WarningRows, RowIssue{Row: b.row, Key: key, Messages: b.warns})
	}
}

// ingestReason is the shared audit reason stamped on every write of a batch.
func ingestReason(batchID uuid.UUID) string {
	return "BULK_INGEST:" + batchID.String()
}
