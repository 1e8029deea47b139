package models

import "time"

const (
	MigrationRunStatusQueued  = "queued"
	MigrationRunStatusRunning = "running"
	MigrationRunStatusSuccess = "success"
	MigrationRunStatusFailed  = "failed"
	MigrationRunStatusPartial = "partial"
)

const (
	MigrationTriggeredManual = "manual"
	MigrationTriggeredSystem = "system"
)

// MigrationRun is the persisted audit row for one migration run. The
// in-memory summary is richer; this is what survives for run history.
type MigrationRun struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	Status          string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy     string     `gorm:"size:20" json:"triggered_by"`
	Actor           string     `gorm:"size:64" json:"actor"`
	EntitiesJSON    []byte     `gorm:"type:json" json:"entities"`
	StatsJSON       []byte     `gorm:"type:json" json:"stats"`
	RecordsMigrated int        `json:"records_migrated"`
	ErrorCount      int        `json:"error_count"`
	DuplicateCount  int        `json:"duplicate_count"`
	SkippedCount    int        `json:"skipped_count"`
	CorrelationId   string     `gorm:"size:64" json:"correlation_id"`
	StartedAt       *time.Time `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	DurationMs      int64      `json:"duration_ms"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MigrationError records one skipped or failed record within a run.
type MigrationError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	RunId       uint      `gorm:"index;not null" json:"run_id"`
	EntityKind  string    `gorm:"size:50" json:"entity_kind"`
	ExternalId  string    `gorm:"size:128" json:"external_id"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
