package migration

import (
	"context"

	"gorm.io/gorm"
)

// Collision is two or more internal rows claiming the same external id.
// These are surfaced as their own audit category instead of silently keeping
// whichever row the query returned last.
type Collision struct {
	ExternalId  string `json:"external_id"`
	InternalIds []int  `json:"internal_ids"`
}

// Mapping is the in-memory externalId -> internalId lookup for one entity
// kind. It is a cache of joins already persisted in the externalId columns,
// rebuilt per run and never stored.
type Mapping struct {
	Kind       EntityKind
	byExternal map[string]int
	Collisions []Collision
}

type mappingRow struct {
	ID         int
	ExternalId string
}

func newMapping(kind EntityKind, rows []mappingRow) *Mapping {
	m := &Mapping{Kind: kind, byExternal: make(map[string]int, len(rows))}
	seen := map[string][]int{}
	for _, row := range rows {
		if row.ExternalId == "" {
			continue
		}
		seen[row.ExternalId] = append(seen[row.ExternalId], row.ID)
		if _, dup := m.byExternal[row.ExternalId]; !dup {
			m.byExternal[row.ExternalId] = row.ID
		}
	}
	for extId, ids := range seen {
		if len(ids) > 1 {
			m.Collisions = append(m.Collisions, Collision{ExternalId: extId, InternalIds: ids})
		}
	}
	return m
}

// Resolve returns the internal id for an external id. Absence is a normal
// outcome, not an error.
func (m *Mapping) Resolve(externalId string) (int, bool) {
	if m == nil {
		return 0, false
	}
	id, ok := m.byExternal[externalId]
	return id, ok
}

func (m *Mapping) Add(externalId string, internalId int) {
	if externalId == "" {
		return
	}
	m.byExternal[externalId] = internalId
}

func (m *Mapping) Len() int {
	return len(m.byExternal)
}

// BuildMapping reads the persisted externalId column for one kind. Pure read,
// no side effects.
func BuildMapping(ctx context.Context, db *gorm.DB, kind EntityKind) (*Mapping, error) {
	var rows []mappingRow
	err := db.WithContext(ctx).
		Table(kind.DBTable()).
		Select("id", "external_id").
		Where("external_id IS NOT NULL").
		Order("id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return newMapping(kind, rows), nil
}

// Resolver holds the mappings for every kind an entity may reference.
type Resolver struct {
	mappings map[EntityKind]*Mapping
}

func NewResolver() *Resolver {
	return &Resolver{mappings: map[EntityKind]*Mapping{}}
}

func (r *Resolver) Set(kind EntityKind, m *Mapping) {
	r.mappings[kind] = m
}

func (r *Resolver) Mapping(kind EntityKind) *Mapping {
	return r.mappings[kind]
}

// Build loads mappings for the given kinds from the database.
func (r *Resolver) Build(ctx context.Context, db *gorm.DB, kinds ...EntityKind) error {
	for _, kind := range kinds {
		m, err := BuildMapping(ctx, db, kind)
		if err != nil {
			return err
		}
		r.mappings[kind] = m
	}
	return nil
}

// Resolve looks up one external reference. Never errors; absence is expected.
func (r *Resolver) Resolve(kind EntityKind, externalId string) (int, bool) {
	m, ok := r.mappings[kind]
	if !ok {
		return 0, false
	}
	return m.Resolve(externalId)
}
