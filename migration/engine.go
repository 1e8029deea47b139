package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"bitbucket.org/courseo/logistics_backend/models"
	"bitbucket.org/courseo/logistics_backend/tablesource"
	"bitbucket.org/courseo/logistics_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Write-path error codes, complementing the mapper's reject codes.
const (
	ErrCodeAlreadyMigrated      = "already_migrated"
	ErrCodeDuplicateBusinessKey = "duplicate_business_key"
	ErrCodeDuplicateExternalId  = "duplicate_external_id"
	ErrCodeSourceUnreachable    = "external_source_unreachable"
	ErrCodeWriteFailure         = "write_failure"
)

// migrationLockKey guards against two concurrent runs racing the
// check-then-insert duplicate guard. Best effort: the system still assumes a
// single runner as its operating mode.
const migrationLockKey = "migration:run"

// ErrRunInProgress is returned when the run lock is held by another runner.
// Callers map it to a conflict; every other Run error is an infrastructure
// failure.
var ErrRunInProgress = errors.New("another migration run is in progress")

// ErrStoreUnavailable means the database did not answer at run start, the
// only fatal condition a run has.
var ErrStoreUnavailable = errors.New("store unreachable")

// Source abstracts where exports come from: a directory of JSON array files
// or the paginated HTTP API.
type Source interface {
	Load(ctx context.Context, table string) ([]tablesource.Record, error)
}

// DirSource reads one <table>.json per entity kind from a local directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Load(_ context.Context, table string) ([]tablesource.Record, error) {
	return tablesource.LoadExportDir(s.Dir, table)
}

// APISource pulls exports straight from the third-party API.
type APISource struct {
	Client *tablesource.Client
}

func (s APISource) Load(ctx context.Context, table string) ([]tablesource.Record, error) {
	return s.Client.FetchTable(ctx, table)
}

// Options controls one migration run.
type Options struct {
	Kinds          []EntityKind
	Recreate       bool
	UpdateExisting bool
	DryRun         bool
	// Pause between records, respecting the source's rate limits.
	Pause       time.Duration
	TriggeredBy string
}

// KindSummary tallies one entity kind within a run.
type KindSummary struct {
	Kind         EntityKind     `json:"kind"`
	Exported     int            `json:"exported"`
	Created      int            `json:"created"`
	Updated      int            `json:"updated"`
	Duplicates   int            `json:"duplicates"`
	Mangled      int            `json:"mangled"`
	Skipped      map[string]int `json:"skipped"`
	WriteErrors  int            `json:"write_errors"`
	SourceFailed bool           `json:"source_failed"`
}

func (s *KindSummary) skip(code string) {
	if s.Skipped == nil {
		s.Skipped = map[string]int{}
	}
	s.Skipped[code]++
}

func (s *KindSummary) skippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// RunSummary is the full outcome of one run. A run never ends silently: the
// caller renders this even when everything succeeded.
type RunSummary struct {
	RunId      uint                        `json:"run_id"`
	Status     string                      `json:"status"`
	Kinds      map[EntityKind]*KindSummary `json:"kinds"`
	Collisions []Collision                 `json:"collisions"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
}

func (s *RunSummary) Created() int {
	n := 0
	for _, ks := range s.Kinds {
		n += ks.Created
	}
	return n
}

func (s *RunSummary) Duplicates() int {
	n := 0
	for _, ks := range s.Kinds {
		n += ks.Duplicates
	}
	return n
}

func (s *RunSummary) Errors() int {
	n := 0
	for _, ks := range s.Kinds {
		n += ks.WriteErrors
		if ks.SourceFailed {
			n++
		}
	}
	return n
}

func (s *RunSummary) SkippedTotal() int {
	n := 0
	for _, ks := range s.Kinds {
		n += ks.skippedTotal()
	}
	return n
}

// Engine drives the migration write path: load export, map, resolve,
// create-or-skip, one record to completion at a time.
type Engine struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Source Source
	Locker *redislock.Client
	Mapper *Mapper
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, source Source, locker *redislock.Client) *Engine {
	return &Engine{
		DB:     db,
		Logger: logger,
		Source: source,
		Locker: locker,
		Mapper: NewMapper(),
	}
}

// Run executes one migration run. Only store connectivity at run start is
// fatal; everything after is tallied per entity or per record.
func (e *Engine) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	if e.DB == nil {
		return nil, errors.New("database not initialized")
	}
	sqlDB, err := e.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.Locker != nil {
		lock, err := e.Locker.Obtain(ctx, migrationLockKey, 30*time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, ErrRunInProgress
			}
			return nil, err
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = DependencyOrder()
	}

	now := time.Now()
	summary := &RunSummary{
		Status:    models.MigrationRunStatusQueued,
		Kinds:     map[EntityKind]*KindSummary{},
		StartedAt: now,
	}

	var run *models.MigrationRun
	if !opts.DryRun {
		run, err = e.createRun(ctx, opts, now)
		if err != nil {
			return nil, err
		}
		summary.RunId = run.ID
	}

	if opts.Recreate && !opts.DryRun {
		if err := e.recreate(ctx, kinds); err != nil {
			e.finishRun(ctx, run, summary, models.MigrationRunStatusFailed)
			return summary, err
		}
	}

	// All mappings load up front so a filtered run (orders only) still
	// resolves references against previously migrated kinds. Mappings stay
	// current during the run via Mapping.Add on each create.
	resolver := NewResolver()
	if err := resolver.Build(ctx, e.DB, DependencyOrder()...); err != nil {
		e.finishRun(ctx, run, summary, models.MigrationRunStatusFailed)
		return summary, err
	}

	// Preparation done, the run row leaves the queued state.
	summary.Status = models.MigrationRunStatusRunning
	if run != nil {
		if err := e.DB.WithContext(ctx).Model(run).Update("status", models.MigrationRunStatusRunning).Error; err != nil {
			config.LogError(e.Logger, "engine.go", "Run", "marking run as running", run.ID, err)
		}
	}

	for _, kind := range kinds {
		ks := &KindSummary{Kind: kind}
		summary.Kinds[kind] = ks
		e.runKind(ctx, kind, ks, resolver, opts, summary)
	}

	summary.FinishedAt = time.Now()
	summary.Status = runStatus(summary)
	if run != nil {
		e.finishRun(ctx, run, summary, summary.Status)
	}
	if !opts.DryRun {
		if err := InvalidateCachedAudit(); err != nil {
			config.LogError(e.Logger, "engine.go", "Run", "dropping cached reconciliation report", nil, err)
		}
	}
	return summary, nil
}

func runStatus(summary *RunSummary) string {
	errs := summary.Errors()
	if errs > 0 && summary.Created() == 0 && summary.Duplicates() == 0 {
		return models.MigrationRunStatusFailed
	}
	if errs > 0 {
		return models.MigrationRunStatusPartial
	}
	return models.MigrationRunStatusSuccess
}

func (e *Engine) runKind(ctx context.Context, kind EntityKind, ks *KindSummary, resolver *Resolver, opts Options, summary *RunSummary) {
	records, err := e.Source.Load(ctx, kind.SourceTable())
	if err != nil {
		ks.SourceFailed = true
		e.recordError(ctx, summary.RunId, kind, "", ErrCodeSourceUnreachable, err.Error(), nil, true)
		config.LogError(e.Logger, "engine.go", "runKind", "loading export for "+string(kind), nil, err)
		return
	}
	ks.Exported = len(records)

	// The kind's own mapping provides the already-migrated check.
	own := resolver.Mapping(kind)
	for _, collision := range own.Collisions {
		summary.Collisions = append(summary.Collisions, collision)
		e.recordError(ctx, summary.RunId, kind, collision.ExternalId, ErrCodeDuplicateExternalId,
			fmt.Sprintf("%d internal rows share this external id", len(collision.InternalIds)), nil, false)
	}

	seenNumbers := map[string]bool{}
	numberTaken := func(number string) (bool, error) {
		if seenNumbers[number] {
			return true, nil
		}
		if opts.DryRun {
			return false, nil
		}
		return models.OrderNumberExists(ctx, number)
	}

	for _, rec := range records {
		if opts.Pause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(opts.Pause):
			}
		}

		if _, migrated := own.Resolve(rec.ID); migrated && rec.ID != "" {
			if opts.UpdateExisting {
				e.updateRecord(ctx, kind, rec, resolver, ks, summary)
			} else {
				ks.Duplicates++
			}
			continue
		}

		payload, err := e.Mapper.Map(kind, rec, resolver, numberTaken)
		if err != nil {
			var rej *Reject
			if errors.As(err, &rej) {
				ks.skip(rej.Code)
				e.recordError(ctx, summary.RunId, kind, rec.ID, rej.Code, rej.Error(), rawPayload(rec), false)
			} else {
				ks.WriteErrors++
				e.recordError(ctx, summary.RunId, kind, rec.ID, ErrCodeWriteFailure, err.Error(), rawPayload(rec), true)
			}
			continue
		}
		if payload.MangledNumber {
			ks.Mangled++
			e.Logger.WithFields(logrus.Fields{
				"module":      "migration",
				"entity_kind": kind,
				"external_id": rec.ID,
				"number":      payload.Order.Number,
			}).Warn(ErrCodeDuplicateBusinessKey + ": order number suffixed to preserve both records")
			e.recordError(ctx, summary.RunId, kind, rec.ID, ErrCodeDuplicateBusinessKey, "order number suffixed: "+payload.Order.Number, nil, false)
		}

		if opts.DryRun {
			ks.Created++
			if payload.Kind == KindOrder {
				seenNumbers[payload.Order.Number] = true
			}
			continue
		}

		internalId, err := e.create(ctx, payload)
		if err != nil {
			ks.WriteErrors++
			e.recordError(ctx, summary.RunId, kind, rec.ID, ErrCodeWriteFailure, err.Error(), rawPayload(rec), true)
			config.LogError(e.Logger, "engine.go", "runKind", "creating "+string(kind)+" record", rec.ID, err)
			continue
		}
		ks.Created++
		own.Add(rec.ID, internalId)
		if payload.Kind == KindOrder {
			seenNumbers[payload.Order.Number] = true
		}
	}
}

func (e *Engine) create(ctx context.Context, payload *Payload) (int, error) {
	switch payload.Kind {
	case KindStore:
		store, err := models.CreateStore(ctx, payload.Store)
		if err != nil {
			return 0, err
		}
		return store.ID, nil
	case KindClient:
		client, err := models.CreateClient(ctx, payload.Client)
		if err != nil {
			return 0, err
		}
		return client.ID, nil
	case KindDriver:
		driver, err := models.CreateDriver(ctx, payload.Driver)
		if err != nil {
			return 0, err
		}
		return driver.ID, nil
	case KindOrder:
		order, err := models.CreateOrder(ctx, payload.Order)
		if err != nil {
			return 0, err
		}
		return order.ID, nil
	}
	return 0, fmt.Errorf("unknown payload kind %q", payload.Kind)
}

// updateRecord re-maps and updates an already-migrated record in place
// (MIGRATION_UPDATE_EXISTING / --update-existing re-runs).
func (e *Engine) updateRecord(ctx context.Context, kind EntityKind, rec tablesource.Record, resolver *Resolver, ks *KindSummary, summary *RunSummary) {
	internalId, _ := resolver.Resolve(kind, rec.ID)
	payload, err := e.Mapper.Map(kind, rec, resolver, nil)
	if err != nil {
		var rej *Reject
		if errors.As(err, &rej) {
			ks.skip(rej.Code)
			e.recordError(ctx, summary.RunId, kind, rec.ID, rej.Code, rej.Error(), rawPayload(rec), false)
			return
		}
		ks.WriteErrors++
		e.recordError(ctx, summary.RunId, kind, rec.ID, ErrCodeWriteFailure, err.Error(), rawPayload(rec), true)
		return
	}

	switch payload.Kind {
	case KindStore:
		_, err = models.UpdateStore(ctx, internalId, payload.Store)
	case KindClient:
		_, err = models.UpdateClient(ctx, internalId, payload.Client)
	case KindDriver:
		_, err = models.UpdateDriver(ctx, internalId, payload.Driver)
	case KindOrder:
		// Orders are immutable after migration; re-runs count them as
		// duplicates rather than rewriting delivered history.
		ks.Duplicates++
		return
	}
	if err != nil {
		ks.WriteErrors++
		e.recordError(ctx, summary.RunId, kind, rec.ID, ErrCodeWriteFailure, err.Error(), rawPayload(rec), true)
		return
	}
	ks.Updated++
}

// recreate deletes previously migrated rows for the selected kinds, reverse
// dependency order first so no order outlives its relations. Manually
// created rows (null external_id) are never touched.
func (e *Engine) recreate(ctx context.Context, kinds []EntityKind) error {
	selected := map[EntityKind]bool{}
	for _, k := range kinds {
		selected[k] = true
	}
	order := DependencyOrder()
	for i := len(order) - 1; i >= 0; i-- {
		kind := order[i]
		if !selected[kind] {
			continue
		}
		if kind == KindOrder {
			if err := e.DB.WithContext(ctx).
				Exec("DELETE FROM order_assignments WHERE order_id IN (SELECT id FROM orders WHERE external_id IS NOT NULL)").Error; err != nil {
				return err
			}
		}
		// Table names come from the kind enum, never from input.
		if err := e.DB.WithContext(ctx).
			Exec("DELETE FROM " + kind.DBTable() + " WHERE external_id IS NOT NULL").Error; err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) createRun(ctx context.Context, opts Options, startedAt time.Time) (*models.MigrationRun, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = DependencyOrder()
	}
	entitiesJSON, _ := json.Marshal(kinds)
	triggeredBy := opts.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.MigrationTriggeredManual
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	actor, _ := utils.GetActorNameFromContext(ctx)
	run := models.MigrationRun{
		Status:        models.MigrationRunStatusQueued,
		TriggeredBy:   triggeredBy,
		Actor:         actor,
		EntitiesJSON:  entitiesJSON,
		CorrelationId: cid,
		StartedAt:     &startedAt,
	}
	if err := e.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (e *Engine) finishRun(ctx context.Context, run *models.MigrationRun, summary *RunSummary, status string) {
	if run == nil {
		return
	}
	finishedAt := time.Now()
	statsJSON, _ := json.Marshal(summary.Kinds)
	err := e.DB.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":           status,
		"finished_at":      finishedAt,
		"duration_ms":      finishedAt.Sub(summary.StartedAt).Milliseconds(),
		"records_migrated": summary.Created(),
		"error_count":      summary.Errors(),
		"duplicate_count":  summary.Duplicates(),
		"skipped_count":    summary.SkippedTotal(),
		"stats_json":       statsJSON,
	}).Error
	if err != nil {
		config.LogError(e.Logger, "engine.go", "finishRun", "updating migration run", run.ID, err)
	}
}

func (e *Engine) recordError(ctx context.Context, runId uint, kind EntityKind, externalId string, code string, message string, payload []byte, retryable bool) {
	if runId == 0 {
		return
	}
	errRec := models.MigrationError{
		RunId:       runId,
		EntityKind:  string(kind),
		ExternalId:  externalId,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	if err := e.DB.WithContext(ctx).Create(&errRec).Error; err != nil {
		config.LogError(e.Logger, "engine.go", "recordError", "persisting migration error", code, err)
	}
}

func rawPayload(rec tablesource.Record) []byte {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return b
}
