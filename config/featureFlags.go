package config

import (
	"os"
	"strings"
)

// RetentionSweepEnabled controls whether the daily retention sweep loop is
// started by the migration service.
//
// Set via env:
// - RETENTION_SWEEP_ENABLED=false to disable (default: enabled)
func RetentionSweepEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("RETENTION_SWEEP_ENABLED")))
	return v != "0" && v != "false" && v != "no"
}

// MigrationUpdateExisting makes a re-run update already-migrated records in
// place instead of counting them as duplicates and skipping.
//
// Set via env:
// - MIGRATION_UPDATE_EXISTING=true
func MigrationUpdateExisting() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MIGRATION_UPDATE_EXISTING")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
