package migration

import (
	"bitbucket.org/courseo/logistics_backend/utils"
)

// EntityKind identifies one migratable entity family. Kinds are processed in
// dependency order: orders need store/client/driver mappings to resolve.
type EntityKind string

const (
	KindStore  EntityKind = "stores"
	KindClient EntityKind = "clients"
	KindDriver EntityKind = "drivers"
	KindOrder  EntityKind = "orders"
)

// DependencyOrder lists every kind, referenced entities first.
func DependencyOrder() []EntityKind {
	return []EntityKind{KindStore, KindClient, KindDriver, KindOrder}
}

// SourceTable returns the export table name used by the third-party source.
func (k EntityKind) SourceTable() string {
	switch k {
	case KindStore:
		return "Commerces"
	case KindClient:
		return "Clients"
	case KindDriver:
		return "Livreurs"
	case KindOrder:
		return "Commandes"
	}
	return string(k)
}

// DBTable returns the internal table holding the kind's rows.
func (k EntityKind) DBTable() string {
	switch k {
	case KindStore:
		return "stores"
	case KindClient:
		return "clients"
	case KindDriver:
		return "drivers"
	case KindOrder:
		return "orders"
	}
	return string(k)
}

func (k EntityKind) Valid() bool {
	switch k {
	case KindStore, KindClient, KindDriver, KindOrder:
		return true
	}
	return false
}

// ParseKinds turns a comma-separated filter into a kind list in dependency
// order. Empty input means every kind.
func ParseKinds(csv string) ([]EntityKind, error) {
	parts := utils.SplitAndTrim(csv)
	if len(parts) == 0 {
		return DependencyOrder(), nil
	}
	wanted := map[EntityKind]bool{}
	for _, p := range parts {
		k := EntityKind(p)
		if !k.Valid() {
			return nil, &Reject{Code: RejectDataInvalid, Field: "entities", Message: "unknown entity kind: " + p}
		}
		wanted[k] = true
	}
	var out []EntityKind
	for _, k := range DependencyOrder() {
		if wanted[k] {
			out = append(out, k)
		}
	}
	return out, nil
}
