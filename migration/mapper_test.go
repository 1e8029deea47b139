package migration

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bitbucket.org/courseo/logistics_backend/models"
	"bitbucket.org/courseo/logistics_backend/tablesource"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}

func testMapper() *Mapper {
	return &Mapper{Now: fixedNow}
}

func testResolver() *Resolver {
	res := NewResolver()
	res.Set(KindStore, newMapping(KindStore, []mappingRow{{ID: 11, ExternalId: "recStore1"}}))
	res.Set(KindClient, newMapping(KindClient, []mappingRow{{ID: 21, ExternalId: "recClient1"}}))
	res.Set(KindDriver, newMapping(KindDriver, []mappingRow{
		{ID: 31, ExternalId: "recDriver1"},
		{ID: 32, ExternalId: "recDriver2"},
	}))
	return res
}

func rejectCode(t *testing.T, err error) string {
	t.Helper()
	var rej *Reject
	if !errors.As(err, &rej) {
		t.Fatalf("expected a reject, got %v", err)
	}
	return rej.Code
}

func TestMapStore_TranslatesFields(t *testing.T) {
	rec := tablesource.Record{
		ID: "recStore9",
		Fields: map[string]any{
			"NOM":        "  Chez Momo  ",
			"ADRESSE":    "12 rue de la Paix, Paris",
			"TELEPHONE":  "06 12 34 56 78",
			"EMAIL":      "momo@example.fr",
			"STATUT":     []any{"suspendu"},
			"CATEGORIES": []any{"alimentation", "épicerie"},
		},
	}

	payload, err := testMapper().Map(KindStore, rec, testResolver(), nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	store := payload.Store
	if store == nil || payload.Kind != KindStore {
		t.Fatal("expected a store payload")
	}
	if store.Name != "Chez Momo" {
		t.Fatalf("expected trimmed name, got %q", store.Name)
	}
	if store.Phone != "+33612345678" {
		t.Fatalf("expected E.164 phone, got %q", store.Phone)
	}
	if store.Status != models.StoreStatusSuspended {
		t.Fatalf("expected suspended status, got %v", store.Status)
	}
	if len(store.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %v", store.Categories)
	}
	if store.ExternalId == nil || *store.ExternalId != "recStore9" {
		t.Fatal("expected external id carried over")
	}
}

func TestMapStore_UnknownStatusDefaultsActive(t *testing.T) {
	rec := tablesource.Record{
		ID:     "recStore9",
		Fields: map[string]any{"NOM": "Chez Momo", "STATUT": []any{"FERMÉ"}},
	}
	payload, err := testMapper().Map(KindStore, rec, testResolver(), nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if payload.Store.Status != models.StoreStatusActive {
		t.Fatalf("unknown status should default to active, got %v", payload.Store.Status)
	}
}

func TestMapStore_KeepsUnparseablePhoneRaw(t *testing.T) {
	rec := tablesource.Record{
		ID:     "recStore9",
		Fields: map[string]any{"NOM": "Chez Momo", "TELEPHONE": "voir accueil"},
	}
	payload, err := testMapper().Map(KindStore, rec, testResolver(), nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if payload.Store.Phone != "voir accueil" {
		t.Fatalf("unparseable phone should stay raw, got %q", payload.Store.Phone)
	}
}

func TestMap_MissingExternalIdRejects(t *testing.T) {
	rec := tablesource.Record{Fields: map[string]any{"NOM": "Sans Id"}}
	_, err := testMapper().Map(KindClient, rec, testResolver(), nil)
	if code := rejectCode(t, err); code != RejectDataInvalid {
		t.Fatalf("expected data_invalid, got %s", code)
	}
}

func TestMap_MissingRequiredFieldRejects(t *testing.T) {
	rec := tablesource.Record{ID: "recClient9", Fields: map[string]any{"PRENOM": "Marie"}}
	_, err := testMapper().Map(KindClient, rec, testResolver(), nil)
	if code := rejectCode(t, err); code != RejectDataInvalid {
		t.Fatalf("expected data_invalid, got %s", code)
	}
}

func orderRecord(overrides map[string]any) tablesource.Record {
	fields := map[string]any{
		"N° COMMANDE":       "CMD-001",
		"DATE COMMANDE":     "2023-05-10",
		"DATE DE LIVRAISON": "12/05/2023",
		"STATUT":            []any{"LIVREE"},
		"TARIF":             "8,90",
		"PREMIUM":           "OUI",
		"COMMERCES":         []any{"recStore1"},
		"CLIENTS":           []any{"recClient1"},
		"LIVREURS":          []any{"recDriver1", "recDriver2"},
	}
	for k, v := range overrides {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	return tablesource.Record{ID: "recOrder1", Fields: fields}
}

func TestMapOrder_ResolvesReferences(t *testing.T) {
	payload, err := testMapper().Map(KindOrder, orderRecord(nil), testResolver(), nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	order := payload.Order
	if order.StoreId != 11 || order.ClientId != 21 {
		t.Fatalf("expected resolved store 11 and client 21, got %d/%d", order.StoreId, order.ClientId)
	}
	if len(order.DriverIds) != 2 || order.DriverIds[0] != 31 || order.DriverIds[1] != 32 {
		t.Fatalf("expected resolved drivers [31 32], got %v", order.DriverIds)
	}
	if order.Status != models.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %v", order.Status)
	}
	if !order.Premium {
		t.Fatal("expected premium flag set for OUI")
	}
	if order.Tariff.String() != "8.9" {
		t.Fatalf("expected tariff 8.9, got %s", order.Tariff.String())
	}
	expectedDelivery := time.Date(2023, 5, 12, 0, 0, 0, 0, time.UTC)
	if !order.DeliveryDate.Equal(expectedDelivery) {
		t.Fatalf("expected delivery %v, got %v", expectedDelivery, order.DeliveryDate)
	}
}

func TestMapOrder_PremiumIsStrictEquality(t *testing.T) {
	for _, raw := range []string{"oui", "NON", "true", "1", ""} {
		payload, err := testMapper().Map(KindOrder, orderRecord(map[string]any{"PREMIUM": raw}), testResolver(), nil)
		if err != nil {
			t.Fatalf("map with PREMIUM=%q: %v", raw, err)
		}
		if payload.Order.Premium {
			t.Fatalf("PREMIUM=%q should not set the flag", raw)
		}
	}
}

func TestMapOrder_MissingOrderDateDefaultsToNow(t *testing.T) {
	payload, err := testMapper().Map(KindOrder, orderRecord(map[string]any{"DATE COMMANDE": nil}), testResolver(), nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !payload.Order.OrderDate.Equal(fixedNow()) {
		t.Fatalf("expected order date defaulted to now, got %v", payload.Order.OrderDate)
	}
}

func TestMapOrder_UnresolvedReferencesReject(t *testing.T) {
	cases := []struct {
		field    string
		value    any
		expected string
	}{
		{"COMMERCES", []any{"recGhost"}, RejectStoreNotFound},
		{"CLIENTS", []any{"recGhost"}, RejectClientNotFound},
		{"LIVREURS", []any{"recDriver1", "recGhost"}, RejectDriverNotFound},
	}
	for _, tc := range cases {
		_, err := testMapper().Map(KindOrder, orderRecord(map[string]any{tc.field: tc.value}), testResolver(), nil)
		if code := rejectCode(t, err); code != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.field, tc.expected, code)
		}
	}
}

func TestMapOrder_MissingDeliveryDateRejects(t *testing.T) {
	_, err := testMapper().Map(KindOrder, orderRecord(map[string]any{"DATE DE LIVRAISON": nil}), testResolver(), nil)
	if code := rejectCode(t, err); code != RejectDataInvalid {
		t.Fatalf("expected data_invalid, got %s", code)
	}
}

func TestMapOrder_BusinessKeyCollisionMangles(t *testing.T) {
	taken := func(number string) (bool, error) { return number == "CMD-001", nil }
	payload, err := testMapper().Map(KindOrder, orderRecord(nil), testResolver(), taken)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !payload.MangledNumber {
		t.Fatal("expected mangled flag")
	}
	expected := MangleOrderNumber("CMD-001", fixedNow())
	if payload.Order.Number != expected {
		t.Fatalf("expected %q, got %q", expected, payload.Order.Number)
	}
	if !strings.HasPrefix(payload.Order.Number, "CMD-001"+MigratedSuffix) {
		t.Fatalf("mangled number should keep the original prefix, got %q", payload.Order.Number)
	}
}

func TestMapOrder_SameSecondCollisionsStayUnique(t *testing.T) {
	// Three source records share one number and map within the same second.
	// Every resulting key must still be distinct.
	seen := map[string]bool{"CMD-001": true}
	taken := func(number string) (bool, error) { return seen[number], nil }

	numbers := map[string]bool{}
	for i := 0; i < 3; i++ {
		payload, err := testMapper().Map(KindOrder, orderRecord(nil), testResolver(), taken)
		if err != nil {
			t.Fatalf("map %d: %v", i, err)
		}
		if !payload.MangledNumber {
			t.Fatalf("map %d: expected mangled flag", i)
		}
		if !strings.HasPrefix(payload.Order.Number, "CMD-001"+MigratedSuffix) {
			t.Fatalf("map %d: unexpected key %q", i, payload.Order.Number)
		}
		if numbers[payload.Order.Number] {
			t.Fatalf("map %d: key %q issued twice", i, payload.Order.Number)
		}
		numbers[payload.Order.Number] = true
		seen[payload.Order.Number] = true
	}
}

func TestMapDriver_InvalidEmailDropped(t *testing.T) {
	rec := tablesource.Record{
		ID:     "recDriver9",
		Fields: map[string]any{"NOM": "Karim", "EMAIL": "pas-un-email"},
	}
	payload, err := testMapper().Map(KindDriver, rec, testResolver(), nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if payload.Driver.Email != "" {
		t.Fatalf("malformed email must not be persisted, got %q", payload.Driver.Email)
	}
}

func TestMapOrder_NoCollisionKeepsNumber(t *testing.T) {
	taken := func(string) (bool, error) { return false, nil }
	payload, err := testMapper().Map(KindOrder, orderRecord(nil), testResolver(), taken)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if payload.MangledNumber || payload.Order.Number != "CMD-001" {
		t.Fatalf("expected untouched number, got %q (mangled=%v)", payload.Order.Number, payload.MangledNumber)
	}
}

func TestParseDate_AcceptsKnownLayouts(t *testing.T) {
	cases := []struct {
		in       string
		expected time.Time
	}{
		{"2023-05-10", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"10/05/2023", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"2023-05-10T14:30:00Z", time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC)},
		{"2023-05-10 14:30:00", time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseDate(tc.in)
		if err != nil {
			t.Fatalf("parseDate(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.expected) {
			t.Fatalf("parseDate(%q) expected %v, got %v", tc.in, tc.expected, got)
		}
	}

	if _, err := parseDate("bientôt"); err == nil {
		t.Fatal("expected error for unparseable date")
	}
	if _, err := parseDate(""); err == nil {
		t.Fatal("expected error for empty date")
	}
}

func TestTranslateStatuses_CaseInsensitiveWithDefaults(t *testing.T) {
	if translateDriverStatus("en course") != models.DriverStatusOnRoute {
		t.Fatal("expected case-insensitive driver status translation")
	}
	if translateDriverStatus("") != models.DriverStatusAvailable {
		t.Fatal("expected available as default driver status")
	}
	if translateOrderStatus("ANNULEE") != models.OrderStatusCancelled {
		t.Fatal("expected cancelled translation")
	}
	if translateOrderStatus("inconnu") != models.OrderStatusPending {
		t.Fatal("expected pending as default order status")
	}
}
