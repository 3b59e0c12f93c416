package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sirta-dev/sirta/modules/registry/infrastructure/persistence"
	"github.com/sirta-dev/sirta/modules/registry/services"
	"github.com/sirta-dev/sirta/pkg/composables"
	"github.com/sirta-dev/sirta/pkg/configuration"
	"github.com/sirta-dev/sirta/pkg/eventbus"
)

func parseKind(raw string) (services.BatchKind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RESOLUTIONS", "RESOLUCIONES":
		return services.BatchResolutions, nil
	case "ROUTES", "RUTAS":
		return services.BatchRoutes, nil
	}
	return "", withCode(exitUsage, fmt.Errorf("unknown --kind %q (RESOLUTIONS or ROUTES)", raw))
}

// newEngine wires the ingest service against the configured database. The
// returned context carries the pool for the repository layer.
func newEngine(ctx context.Context, strict bool) (context.Context, *services.IngestService, *pgxpool.Pool, error) {
	conf := configuration.Use()

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, nil, nil, withCode(exitDB, fmt.Errorf("database pool: %w", err))
	}

	log := conf.Logger()
	svc := services.NewIngestService(
		persistence.NewCompanyRepository(),
		persistence.NewResolutionRepository(),
		persistence.NewRouteRepository(),
		persistence.NewLocalityRepository(),
		persistence.NewVehicleRepository(),
		eventbus.NewEventPublisher(log),
		log,
		services.IngestConfig{MaxRows: conf.Ingest.MaxRows, Strict: strict || conf.Ingest.Strict},
	)
	return composables.WithPool(ctx, pool), svc, pool, nil
}

func printReport(report *services.Report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Invalid > 0 || len(report.CommitFailed) > 0 {
		return withCode(exitInvalidRows,
			fmt.Errorf("%d invalid rows, %d failed commits", report.Invalid, len(report.CommitFailed)))
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	var file, kindFlag string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a spreadsheet batch without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return withCode(exitUsage, err)
			}

			ctx, svc, pool, err := newEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := svc.Validate(ctx, data, kind)
			if err != nil {
				return err
			}
			return printReport(report)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet to validate (required)")
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Batch kind: RESOLUTIONS or ROUTES (required)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newProcessCmd() *cobra.Command {
	var file, kindFlag string
	var dryRun, strict bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Validate and commit a spreadsheet batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return withCode(exitUsage, err)
			}

			ctx, svc, pool, err := newEngine(cmd.Context(), strict)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := svc.Process(ctx, data, kind, dryRun)
			if err != nil {
				return err
			}
			return printReport(report)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet to process (required)")
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Batch kind: RESOLUTIONS or ROUTES (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the full pipeline without committing")
	cmd.Flags().BoolVar(&strict, "strict", false, "Escalate tolerated warnings into errors")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var out, kindFlag string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the spreadsheet template for a batch kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}

			// Template generation never touches the database.
			log := configuration.Use().Logger()
			svc := services.NewIngestService(nil, nil, nil, nil, nil,
				eventbus.NewEventPublisher(log), log, services.IngestConfig{})

			data, err := svc.GenerateTemplate(kind)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return withCode(exitUsage, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template written to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output path for the template (required)")
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Batch kind: RESOLUTIONS or ROUTES (required)")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
