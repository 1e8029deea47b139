package migration

import (
	"context"
	"fmt"

	"bitbucket.org/courseo/logistics_backend/tablesource"
	"gorm.io/gorm"
)

// EntityAudit reconciles one entity kind between the export and the store.
// Counts are reported as computed: a negative MissingCount is an anomaly
// (more migrated rows than exported records) and is surfaced, never clamped.
type EntityAudit struct {
	Kind          EntityKind  `json:"kind"`
	ExportedCount int         `json:"exported_count"`
	InternalCount int         `json:"internal_count"`
	MigratedCount int         `json:"migrated_count"`
	MissingCount  int         `json:"missing_count"`
	MigrationRate float64     `json:"migration_rate"`
	Anomaly       bool        `json:"anomaly"`
	Collisions    []Collision `json:"collisions,omitempty"`
	SourceError   string      `json:"source_error,omitempty"`
}

// OrphanRecord is an exported order that was not migrated and cannot be:
// one or more of its external references never resolves. These records
// stay missing on every re-run until the referenced store, client or
// driver is migrated or fixed at the source.
type OrphanRecord struct {
	ExternalId     string   `json:"external_id"`
	Number         string   `json:"number,omitempty"`
	UnresolvedRefs []string `json:"unresolved_refs"`
}

// DanglingOrder is a persisted order whose store or client row is gone. The
// schema forbids creating these; they indicate writes that bypassed the
// application or partial manual cleanup.
type DanglingOrder struct {
	OrderId int    `json:"order_id"`
	Number  string `json:"number"`
	Reason  string `json:"reason"`
}

// GlobalAudit is the full reconciliation picture across all entity kinds.
type GlobalAudit struct {
	Entities      []EntityAudit   `json:"entities"`
	Orphans       []OrphanRecord  `json:"orphans"`
	Dangling      []DanglingOrder `json:"dangling,omitempty"`
	ExportedTotal int             `json:"exported_total"`
	MigratedTotal int             `json:"migrated_total"`
	MissingTotal  int             `json:"missing_total"`
	Conserved     bool            `json:"conserved"`
}

// Auditor computes the reconciliation report. It never writes.
type Auditor struct {
	DB     *gorm.DB
	Source Source
}

func NewAuditor(db *gorm.DB, source Source) *Auditor {
	return &Auditor{DB: db, Source: source}
}

// AuditAll reconciles every entity kind in dependency order, classifies
// unmigratable exported orders as orphans, then checks persisted orders for
// dangling references. A failed export load degrades that kind's audit
// instead of aborting the whole report.
func (a *Auditor) AuditAll(ctx context.Context) (*GlobalAudit, error) {
	global := &GlobalAudit{}
	resolver := NewResolver()
	for _, kind := range DependencyOrder() {
		records, audit, err := a.auditKind(ctx, kind, resolver)
		if err != nil {
			return nil, err
		}
		global.Entities = append(global.Entities, *audit)
		global.ExportedTotal += audit.ExportedCount
		global.MigratedTotal += audit.MigratedCount
		global.MissingTotal += audit.MissingCount

		if kind == KindOrder {
			global.Orphans = OrphanedOrders(records, resolver)
		}
	}
	// Conservation: every exported record is either migrated or accounted
	// missing, with no anomalies anywhere.
	global.Conserved = global.ExportedTotal == global.MigratedTotal+global.MissingTotal
	for _, ea := range global.Entities {
		if ea.Anomaly || ea.SourceError != "" {
			global.Conserved = false
		}
	}

	dangling, err := a.FindDanglingOrders(ctx)
	if err != nil {
		return nil, err
	}
	global.Dangling = dangling
	return global, nil
}

// AuditKind reconciles one entity kind in isolation.
func (a *Auditor) AuditKind(ctx context.Context, kind EntityKind) (*EntityAudit, error) {
	_, audit, err := a.auditKind(ctx, kind, NewResolver())
	return audit, err
}

// auditKind loads the export and the persisted mapping for one kind. The
// mapping is registered on the shared resolver so orphan classification can
// resolve order references after all kinds are audited.
func (a *Auditor) auditKind(ctx context.Context, kind EntityKind, resolver *Resolver) ([]tablesource.Record, *EntityAudit, error) {
	records, srcErr := a.Source.Load(ctx, kind.SourceTable())

	mapping, err := BuildMapping(ctx, a.DB, kind)
	if err != nil {
		return nil, nil, err
	}
	resolver.Set(kind, mapping)

	var internal int64
	if err := a.DB.WithContext(ctx).Table(kind.DBTable()).Count(&internal).Error; err != nil {
		return nil, nil, err
	}

	audit := computeAudit(kind, records, mapping, int(internal))
	if srcErr != nil {
		audit.SourceError = srcErr.Error()
	}
	return records, audit, nil
}

// computeAudit is the pure reconciliation core. MigratedCount counts internal
// rows whose external id appears in the export; manually created rows (null
// external id) never inflate it, while colliding rows each count, which is
// what drives MissingCount negative on a collision.
func computeAudit(kind EntityKind, records []tablesource.Record, mapping *Mapping, internalCount int) *EntityAudit {
	collisionRows := map[string]int{}
	for _, c := range mapping.Collisions {
		collisionRows[c.ExternalId] = len(c.InternalIds)
	}

	migrated := 0
	seen := map[string]bool{}
	for _, rec := range records {
		if rec.ID == "" || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		if _, ok := mapping.Resolve(rec.ID); ok {
			if n := collisionRows[rec.ID]; n > 1 {
				migrated += n
			} else {
				migrated++
			}
		}
	}

	audit := &EntityAudit{
		Kind:          kind,
		ExportedCount: len(records),
		InternalCount: internalCount,
		MigratedCount: migrated,
		MissingCount:  len(records) - migrated,
		Collisions:    mapping.Collisions,
	}
	if audit.MissingCount < 0 {
		audit.Anomaly = true
	}
	if len(mapping.Collisions) > 0 {
		audit.Anomaly = true
	}
	if audit.ExportedCount > 0 {
		audit.MigrationRate = float64(audit.MigratedCount) / float64(audit.ExportedCount) * 100
	}
	return audit
}

// OrphanedOrders classifies exported order records that are not migrated and
// carry at least one external reference that does not resolve against the
// store, client and driver mappings. This separates "can never migrate" from
// plain "not yet migrated" inside MissingCount. Pure, no store access.
func OrphanedOrders(records []tablesource.Record, res *Resolver) []OrphanRecord {
	orders := res.Mapping(KindOrder)
	var orphans []OrphanRecord
	seen := map[string]bool{}
	for _, rec := range records {
		if rec.ID == "" || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		if _, migrated := orders.Resolve(rec.ID); migrated {
			continue
		}

		var unresolved []string
		if ref := rec.First(fieldStoreRef); ref != "" {
			if _, ok := res.Resolve(KindStore, ref); !ok {
				unresolved = append(unresolved, fieldStoreRef+":"+ref)
			}
		}
		if ref := rec.First(fieldClientRef); ref != "" {
			if _, ok := res.Resolve(KindClient, ref); !ok {
				unresolved = append(unresolved, fieldClientRef+":"+ref)
			}
		}
		for _, ref := range rec.Strings(fieldDriverRef) {
			if _, ok := res.Resolve(KindDriver, ref); !ok {
				unresolved = append(unresolved, fieldDriverRef+":"+ref)
			}
		}
		if len(unresolved) > 0 {
			orphans = append(orphans, OrphanRecord{
				ExternalId:     rec.ID,
				Number:         rec.String(fieldOrderNumber),
				UnresolvedRefs: unresolved,
			})
		}
	}
	return orphans
}

// FindDanglingOrders lists persisted orders whose store or client row is
// gone.
func (a *Auditor) FindDanglingOrders(ctx context.Context) ([]DanglingOrder, error) {
	type row struct {
		Id       int
		Number   string
		StoreId  int
		ClientId int
		NoStore  bool
		NoClient bool
	}
	var rows []row
	err := a.DB.WithContext(ctx).Raw(`
		SELECT o.id, o.number, o.store_id, o.client_id,
		       s.id IS NULL AS no_store,
		       c.id IS NULL AS no_client
		FROM orders o
		LEFT JOIN stores s ON s.id = o.store_id
		LEFT JOIN clients c ON c.id = o.client_id
		WHERE s.id IS NULL OR c.id IS NULL
		ORDER BY o.id`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var dangling []DanglingOrder
	for _, r := range rows {
		reason := ""
		switch {
		case r.NoStore && r.NoClient:
			reason = fmt.Sprintf("store %d and client %d not found", r.StoreId, r.ClientId)
		case r.NoStore:
			reason = fmt.Sprintf("store %d not found", r.StoreId)
		case r.NoClient:
			reason = fmt.Sprintf("client %d not found", r.ClientId)
		}
		dangling = append(dangling, DanglingOrder{OrderId: r.Id, Number: r.Number, Reason: reason})
	}
	return dangling, nil
}
