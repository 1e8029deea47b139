package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/courseo/logistics_backend/config"
	"bitbucket.org/courseo/logistics_backend/migration"
	"bitbucket.org/courseo/logistics_backend/models"
	"bitbucket.org/courseo/logistics_backend/tablesource"
	"bitbucket.org/courseo/logistics_backend/utils"
	"github.com/google/uuid"
)

func main() {
	entities := flag.String("entities", "", "Optional: comma-separated entity kinds to migrate (stores,clients,drivers,orders). Empty migrates everything.")
	fromDir := flag.String("from-dir", "", "Optional: read <table>.json export files from this directory instead of the external API.")
	recreate := flag.Bool("recreate", false, "Delete previously migrated rows for the selected kinds before migrating.")
	updateExisting := flag.Bool("update-existing", false, "Re-map and update already-migrated records instead of skipping them.")
	dryRun := flag.Bool("dry-run", false, "Map and count without writing anything.")
	reportOnly := flag.Bool("report-only", false, "Skip the migration entirely and print the reconciliation report.")
	xlsxOut := flag.String("xlsx", "", "Optional: also save the reconciliation report as an .xlsx file at this path.")
	pause := flag.Duration("pause", 0, "Optional pause between records, e.g. 200ms, to stay inside source rate limits.")
	flag.Parse()

	logger := config.GetLogger()

	kinds, err := migration.ParseKinds(*entities)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	ctx = utils.SetActorNameInContext(ctx, "MigrateCLI")

	var source migration.Source
	if *fromDir != "" {
		source = migration.DirSource{Dir: *fromDir}
	} else {
		client, err := tablesource.NewClient()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		source = migration.APISource{Client: client}
	}

	if !*reportOnly {
		engine := migration.NewEngine(db, logger, source, nil)
		summary, err := engine.Run(ctx, migration.Options{
			Kinds:          kinds,
			Recreate:       *recreate,
			UpdateExisting: *updateExisting || config.MigrationUpdateExisting(),
			DryRun:         *dryRun,
			Pause:          *pause,
			TriggeredBy:    models.MigrationTriggeredSystem,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		if err := migration.WriteRunText(os.Stdout, summary); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println()
	}

	auditor := migration.NewAuditor(db, source)
	audit, err := auditor.AuditAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}
	if err := migration.WriteAuditText(os.Stdout, audit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *xlsxOut != "" {
		if err := migration.WriteAuditXlsx(audit, *xlsxOut); err != nil {
			fmt.Fprintf(os.Stderr, "saving xlsx report failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report saved to %s\n", *xlsxOut)
	}
	if !audit.Conserved {
		os.Exit(2)
	}
}
