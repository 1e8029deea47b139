package tablesource

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordString_CoercesScalars(t *testing.T) {
	rec := Record{Fields: map[string]any{
		"NOM":       "  Chez Momo  ",
		"TARIF":     json.Number("12.5"),
		"PREMIUM":   true,
		"STATUT":    []any{"ACTIF"},
		"VIDE":      "",
		"NIL":       nil,
		"NUMERIQUE": float64(7),
	}}

	cases := []struct {
		key      string
		expected string
	}{
		{"NOM", "Chez Momo"},
		{"TARIF", "12.5"},
		{"PREMIUM", "true"},
		{"STATUT", "ACTIF"},
		{"VIDE", ""},
		{"NIL", ""},
		{"NUMERIQUE", "7"},
		{"ABSENT", ""},
	}
	for _, tc := range cases {
		if got := rec.String(tc.key); got != tc.expected {
			t.Fatalf("String(%q) expected %q, got %q", tc.key, tc.expected, got)
		}
	}
}

func TestRecordHas_EmptyValuesAreAbsent(t *testing.T) {
	rec := Record{Fields: map[string]any{
		"NOM":    "x",
		"VIDE":   "   ",
		"LISTE0": []any{},
		"LISTE1": []any{"a"},
		"NIL":    nil,
	}}

	if !rec.Has("NOM") {
		t.Fatal("expected NOM present")
	}
	if rec.Has("VIDE") {
		t.Fatal("blank string should count as absent")
	}
	if rec.Has("LISTE0") {
		t.Fatal("empty array should count as absent")
	}
	if !rec.Has("LISTE1") {
		t.Fatal("expected non-empty array present")
	}
	if rec.Has("NIL") || rec.Has("ABSENT") {
		t.Fatal("nil and missing fields should be absent")
	}
}

func TestRecordStrings_SingletonAndArray(t *testing.T) {
	rec := Record{Fields: map[string]any{
		"SEUL":  "alimentation",
		"LISTE": []any{" alimentation ", "boulangerie", "", 42},
	}}

	single := rec.Strings("SEUL")
	if len(single) != 1 || single[0] != "alimentation" {
		t.Fatalf("expected singleton list, got %v", single)
	}

	list := rec.Strings("LISTE")
	if len(list) != 2 || list[0] != "alimentation" || list[1] != "boulangerie" {
		t.Fatalf("expected trimmed string elements only, got %v", list)
	}

	if rec.Strings("ABSENT") != nil {
		t.Fatal("absent field should return nil")
	}
}

func TestRecordFloat_CommaDecimals(t *testing.T) {
	rec := Record{Fields: map[string]any{
		"A": json.Number("12.5"),
		"B": "8,90",
		"C": float64(3),
		"D": "pas un nombre",
	}}

	cases := []struct {
		key      string
		expected float64
	}{
		{"A", 12.5},
		{"B", 8.9},
		{"C", 3},
		{"D", 0},
		{"ABSENT", 0},
	}
	for _, tc := range cases {
		if got := rec.Float(tc.key); got != tc.expected {
			t.Fatalf("Float(%q) expected %v, got %v", tc.key, tc.expected, got)
		}
	}
}

func TestRecordFirst_StatusColumns(t *testing.T) {
	rec := Record{Fields: map[string]any{
		"ARRAY": []any{"EN ATTENTE", "LIVREE"},
		"PLAIN": "ACTIF",
	}}
	if got := rec.First("ARRAY"); got != "EN ATTENTE" {
		t.Fatalf("expected first element, got %q", got)
	}
	if got := rec.First("PLAIN"); got != "ACTIF" {
		t.Fatalf("expected plain string, got %q", got)
	}
	if got := rec.First("ABSENT"); got != "" {
		t.Fatalf("expected empty for absent field, got %q", got)
	}
}

func TestRecordCreatedTime_Unmarshals(t *testing.T) {
	raw := `{"id":"rec1","fields":{"NOM":"x"},"createdTime":"2023-04-01T10:30:00.000Z"}`
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	expected := time.Date(2023, 4, 1, 10, 30, 0, 0, time.UTC)
	if !rec.CreatedTime.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, rec.CreatedTime)
	}
}
