package migration

import "testing"

func TestNewMapping_FirstRowWinsAndCollisionSurfaces(t *testing.T) {
	m := newMapping(KindStore, []mappingRow{
		{ID: 1, ExternalId: "recA"},
		{ID: 2, ExternalId: "recB"},
		{ID: 3, ExternalId: "recA"},
		{ID: 4, ExternalId: ""},
	})

	if got, ok := m.Resolve("recA"); !ok || got != 1 {
		t.Fatalf("expected recA to resolve to first row 1, got %d (ok=%v)", got, ok)
	}
	if got, ok := m.Resolve("recB"); !ok || got != 2 {
		t.Fatalf("expected recB -> 2, got %d (ok=%v)", got, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("blank external ids must not be indexed, got len %d", m.Len())
	}

	if len(m.Collisions) != 1 {
		t.Fatalf("expected 1 collision, got %d", len(m.Collisions))
	}
	c := m.Collisions[0]
	if c.ExternalId != "recA" || len(c.InternalIds) != 2 || c.InternalIds[0] != 1 || c.InternalIds[1] != 3 {
		t.Fatalf("unexpected collision %+v", c)
	}
}

func TestMapping_ResolveAbsentAndNil(t *testing.T) {
	m := newMapping(KindClient, nil)
	if _, ok := m.Resolve("recGhost"); ok {
		t.Fatal("absent external id should not resolve")
	}
	var nilMapping *Mapping
	if _, ok := nilMapping.Resolve("recGhost"); ok {
		t.Fatal("nil mapping should not resolve")
	}
}

func TestMapping_AddDuringRun(t *testing.T) {
	m := newMapping(KindDriver, nil)
	m.Add("recD1", 7)
	m.Add("", 8)
	if got, ok := m.Resolve("recD1"); !ok || got != 7 {
		t.Fatalf("expected recD1 -> 7, got %d (ok=%v)", got, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("blank id should be ignored, got len %d", m.Len())
	}
}

func TestResolver_UnknownKind(t *testing.T) {
	res := NewResolver()
	if _, ok := res.Resolve(KindStore, "recA"); ok {
		t.Fatal("resolver without mappings should not resolve")
	}
	res.Set(KindStore, newMapping(KindStore, []mappingRow{{ID: 5, ExternalId: "recA"}}))
	if got, ok := res.Resolve(KindStore, "recA"); !ok || got != 5 {
		t.Fatalf("expected recA -> 5, got %d (ok=%v)", got, ok)
	}
}

func TestParseKinds(t *testing.T) {
	all, err := ParseKinds("")
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if len(all) != 4 || all[0] != KindStore || all[3] != KindOrder {
		t.Fatalf("empty filter should return every kind in dependency order, got %v", all)
	}

	// Selection comes back in dependency order regardless of input order.
	kinds, err := ParseKinds("orders, stores")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != KindStore || kinds[1] != KindOrder {
		t.Fatalf("expected [stores orders], got %v", kinds)
	}

	if _, err := ParseKinds("stores,warehouses"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
