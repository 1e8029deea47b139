package migration

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"github.com/xuri/excelize/v2"
)

const reportCacheKey = "migration:last_audit"
const reportCacheTTL = 24 * time.Hour

// CacheAudit stores the latest reconciliation report so the service can serve
// it without recomputing. Best effort: a cold cache just means recompute.
func CacheAudit(audit *GlobalAudit) error {
	return config.SetRedisObject(reportCacheKey, audit, reportCacheTTL)
}

func CachedAudit() (*GlobalAudit, bool, error) {
	var audit GlobalAudit
	found, err := config.GetRedisObject(reportCacheKey, &audit)
	if err != nil || !found {
		return nil, false, err
	}
	return &audit, true, nil
}

// InvalidateCachedAudit drops the cached report. Called after a run that
// wrote anything, otherwise the report endpoint keeps serving stale counts.
func InvalidateCachedAudit() error {
	return config.RemoveRedisKey(reportCacheKey)
}

// WriteAuditText renders the reconciliation report as an aligned console
// table.
func WriteAuditText(w io.Writer, audit *GlobalAudit) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tEXPORTED\tINTERNAL\tMIGRATED\tMISSING\tRATE\tFLAGS")
	for _, ea := range audit.Entities {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.1f%%\t%s\n",
			ea.Kind, ea.ExportedCount, ea.InternalCount, ea.MigratedCount,
			ea.MissingCount, ea.MigrationRate, auditFlags(ea))
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t\t%d\t%d\t\t\n",
		audit.ExportedTotal, audit.MigratedTotal, audit.MissingTotal)
	if err := tw.Flush(); err != nil {
		return err
	}

	if audit.Conserved {
		fmt.Fprintln(w, "conservation: OK")
	} else {
		fmt.Fprintln(w, "conservation: FAILED")
	}

	for _, ea := range audit.Entities {
		for _, c := range ea.Collisions {
			fmt.Fprintf(w, "collision [%s] external id %s -> internal rows %v\n", ea.Kind, c.ExternalId, c.InternalIds)
		}
		if ea.SourceError != "" {
			fmt.Fprintf(w, "source error [%s]: %s\n", ea.Kind, ea.SourceError)
		}
	}
	// Display cap only; the structured report keeps the full list.
	const maxOrphanLines = 50
	for i, o := range audit.Orphans {
		if i == maxOrphanLines {
			fmt.Fprintf(w, "... and %d more orphan orders\n", len(audit.Orphans)-maxOrphanLines)
			break
		}
		fmt.Fprintf(w, "orphan order %s (%s): unresolved %s\n", o.ExternalId, o.Number, strings.Join(o.UnresolvedRefs, ", "))
	}
	for i, d := range audit.Dangling {
		if i == maxOrphanLines {
			fmt.Fprintf(w, "... and %d more dangling orders\n", len(audit.Dangling)-maxOrphanLines)
			break
		}
		fmt.Fprintf(w, "dangling order #%d (%s): %s\n", d.OrderId, d.Number, d.Reason)
	}
	return nil
}

func auditFlags(ea EntityAudit) string {
	var flags []string
	if ea.Anomaly {
		flags = append(flags, "ANOMALY")
	}
	if len(ea.Collisions) > 0 {
		flags = append(flags, fmt.Sprintf("%d collisions", len(ea.Collisions)))
	}
	if ea.SourceError != "" {
		flags = append(flags, "source error")
	}
	return strings.Join(flags, ", ")
}

// WriteAuditXlsx saves the reconciliation report as a spreadsheet for the
// operations team.
func WriteAuditXlsx(audit *GlobalAudit, filename string) error {
	f := excelize.NewFile()
	sheetName := "Reconciliation"
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	// Add headers
	f.SetCellValue(sheetName, "A1", "Entity")
	f.SetCellValue(sheetName, "B1", "Exported")
	f.SetCellValue(sheetName, "C1", "Internal")
	f.SetCellValue(sheetName, "D1", "Migrated")
	f.SetCellValue(sheetName, "E1", "Missing")
	f.SetCellValue(sheetName, "F1", "Rate")
	f.SetCellValue(sheetName, "G1", "Anomaly")

	// Add data
	for i, ea := range audit.Entities {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, string(ea.Kind))
		f.SetCellValue(sheetName, "B"+row, ea.ExportedCount)
		f.SetCellValue(sheetName, "C"+row, ea.InternalCount)
		f.SetCellValue(sheetName, "D"+row, ea.MigratedCount)
		f.SetCellValue(sheetName, "E"+row, ea.MissingCount)
		f.SetCellValue(sheetName, "F"+row, ea.MigrationRate/100)
		f.SetCellValue(sheetName, "G"+row, ea.Anomaly)
	}

	if len(audit.Orphans) > 0 {
		orphanSheet := "Orphans"
		if _, err := f.NewSheet(orphanSheet); err != nil {
			return err
		}
		f.SetCellValue(orphanSheet, "A1", "ExternalId")
		f.SetCellValue(orphanSheet, "B1", "Number")
		f.SetCellValue(orphanSheet, "C1", "Unresolved references")
		for i, o := range audit.Orphans {
			row := fmt.Sprint(i + 2)
			f.SetCellValue(orphanSheet, "A"+row, o.ExternalId)
			f.SetCellValue(orphanSheet, "B"+row, o.Number)
			f.SetCellValue(orphanSheet, "C"+row, strings.Join(o.UnresolvedRefs, ", "))
		}
	}

	if len(audit.Dangling) > 0 {
		danglingSheet := "Dangling"
		if _, err := f.NewSheet(danglingSheet); err != nil {
			return err
		}
		f.SetCellValue(danglingSheet, "A1", "OrderId")
		f.SetCellValue(danglingSheet, "B1", "Number")
		f.SetCellValue(danglingSheet, "C1", "Reason")
		for i, d := range audit.Dangling {
			row := fmt.Sprint(i + 2)
			f.SetCellValue(danglingSheet, "A"+row, d.OrderId)
			f.SetCellValue(danglingSheet, "B"+row, d.Number)
			f.SetCellValue(danglingSheet, "C"+row, d.Reason)
		}
	}

	return f.SaveAs(filename)
}

// WriteRunText renders one migration run's summary for the console.
func WriteRunText(w io.Writer, summary *RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tEXPORTED\tCREATED\tUPDATED\tDUPLICATES\tSKIPPED\tERRORS")
	for _, kind := range DependencyOrder() {
		ks, ok := summary.Kinds[kind]
		if !ok {
			continue
		}
		errs := ks.WriteErrors
		if ks.SourceFailed {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\tsource unreachable\n", kind)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			kind, ks.Exported, ks.Created, ks.Updated, ks.Duplicates, ks.skippedTotal(), errs)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "run %d finished: %s (%s)\n", summary.RunId, summary.Status,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	for _, c := range summary.Collisions {
		fmt.Fprintf(w, "collision: external id %s -> internal rows %v\n", c.ExternalId, c.InternalIds)
	}
	return nil
}
