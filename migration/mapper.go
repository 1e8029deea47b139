package migration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/courseo/logistics_backend/models"
	"bitbucket.org/courseo/logistics_backend/tablesource"
	"bitbucket.org/courseo/logistics_backend/utils"
	"github.com/shopspring/decimal"
)

// Reject codes. Together with the write-path codes in engine.go they form
// the full error taxonomy persisted to migration_errors.
const (
	RejectDataInvalid    = "data_invalid"
	RejectStoreNotFound  = "store_not_found"
	RejectClientNotFound = "client_not_found"
	RejectDriverNotFound = "driver_not_found"
)

// Reject is a mapping refusal. Rejected records are skipped and tallied,
// never retried automatically.
type Reject struct {
	Code    string
	Field   string
	Message string
}

func (r *Reject) Error() string {
	if r.Field != "" {
		return r.Code + ": " + r.Field + ": " + r.Message
	}
	return r.Code + ": " + r.Message
}

// Source column labels. The export has no schema; this table of required and
// optional labels is the schema contract.
const (
	fieldName         = "NOM"
	fieldFirstName    = "PRENOM"
	fieldPhone        = "TELEPHONE"
	fieldAddress      = "ADRESSE"
	fieldEmail        = "EMAIL"
	fieldStatus       = "STATUT"
	fieldCategories   = "CATEGORIES"
	fieldOrderNumber  = "N° COMMANDE"
	fieldOrderDate    = "DATE COMMANDE"
	fieldDeliveryDate = "DATE DE LIVRAISON"
	fieldTariff       = "TARIF"
	fieldPremium      = "PREMIUM"
	fieldStoreRef     = "COMMERCES"
	fieldClientRef    = "CLIENTS"
	fieldDriverRef    = "LIVREURS"
)

// premiumMarker is the source's sentinel for a true flag. Equality only:
// anything else, including other truthy-looking strings, is false.
const premiumMarker = "OUI"

// MigratedSuffix marks an order number that was mangled to dodge a business
// key collision during migration.
const MigratedSuffix = "_MIGRATED_"

// Status translation tables. Unknown or absent source values map to the
// documented default, never to null.
var storeStatusTable = map[string]models.StoreStatus{
	"ACTIF":    models.StoreStatusActive,
	"INACTIF":  models.StoreStatusInactive,
	"SUSPENDU": models.StoreStatusSuspended,
}

var driverStatusTable = map[string]models.DriverStatus{
	"DISPONIBLE": models.DriverStatusAvailable,
	"EN COURSE":  models.DriverStatusOnRoute,
	"INACTIF":    models.DriverStatusInactive,
}

var orderStatusTable = map[string]models.OrderStatus{
	"EN ATTENTE": models.OrderStatusPending,
	"ATTRIBUEE":  models.OrderStatusAssigned,
	"RECUPEREE":  models.OrderStatusPickedUp,
	"LIVREE":     models.OrderStatusDelivered,
	"ANNULEE":    models.OrderStatusCancelled,
}

// Payload is the mapped, ready-to-write form of one external record. Exactly
// one of the entity fields is set, matching Kind.
type Payload struct {
	Kind   EntityKind
	Store  *models.NewStore
	Client *models.NewClient
	Driver *models.NewDriver
	Order  *models.NewOrder

	// MangledNumber is set when an order's business key collided and was
	// suffixed. Logged as a warning by the engine.
	MangledNumber bool
}

// Mapper translates an external record's field bag into an entity payload.
// Mapping is pure: no writes happen here. The order business-key collision
// check is injected so the mapper stays storage-free.
type Mapper struct {
	Now func() time.Time
}

func NewMapper() *Mapper {
	return &Mapper{Now: time.Now}
}

type entitySpec struct {
	required []string
	build    func(m *Mapper, rec tablesource.Record, res *Resolver, numberTaken func(string) (bool, error)) (*Payload, *Reject)
}

// specs is the enum-indexed table of per-kind mapping rules: required source
// fields checked generically, then the kind's build function.
var specs = map[EntityKind]entitySpec{
	KindStore:  {required: []string{fieldName}, build: (*Mapper).buildStore},
	KindClient: {required: []string{fieldName}, build: (*Mapper).buildClient},
	KindDriver: {required: []string{fieldName}, build: (*Mapper).buildDriver},
	KindOrder:  {required: []string{fieldOrderNumber, fieldDeliveryDate, fieldStoreRef, fieldClientRef}, build: (*Mapper).buildOrder},
}

// Map produces a payload or a *Reject. numberTaken is consulted only for
// orders; pass nil to skip collision mangling (read-only audit mode).
func (m *Mapper) Map(kind EntityKind, rec tablesource.Record, res *Resolver, numberTaken func(string) (bool, error)) (*Payload, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, &Reject{Code: RejectDataInvalid, Message: "unknown entity kind: " + string(kind)}
	}
	if strings.TrimSpace(rec.ID) == "" {
		// No positional fallback: a stable shared key is required.
		return nil, &Reject{Code: RejectDataInvalid, Field: "id", Message: "external id missing"}
	}
	for _, field := range spec.required {
		if !rec.Has(field) {
			return nil, &Reject{Code: RejectDataInvalid, Field: field, Message: "required field missing"}
		}
	}
	payload, rej := spec.build(m, rec, res, numberTaken)
	if rej != nil {
		return nil, rej
	}
	return payload, nil
}

func (m *Mapper) buildStore(rec tablesource.Record, _ *Resolver, _ func(string) (bool, error)) (*Payload, *Reject) {
	extId := rec.ID
	return &Payload{
		Kind: KindStore,
		Store: &models.NewStore{
			ExternalId: &extId,
			Name:       rec.String(fieldName),
			Address:    rec.String(fieldAddress),
			Phone:      utils.NormalizePhone(rec.String(fieldPhone)),
			Email:      cleanEmail(rec.String(fieldEmail)),
			Status:     translateStoreStatus(rec.First(fieldStatus)),
			Categories: rec.Strings(fieldCategories),
		},
	}, nil
}

func (m *Mapper) buildClient(rec tablesource.Record, _ *Resolver, _ func(string) (bool, error)) (*Payload, *Reject) {
	extId := rec.ID
	return &Payload{
		Kind: KindClient,
		Client: &models.NewClient{
			ExternalId: &extId,
			Name:       rec.String(fieldName),
			FirstName:  rec.String(fieldFirstName),
			Phone:      utils.NormalizePhone(rec.String(fieldPhone)),
			Address:    rec.String(fieldAddress),
		},
	}, nil
}

func (m *Mapper) buildDriver(rec tablesource.Record, _ *Resolver, _ func(string) (bool, error)) (*Payload, *Reject) {
	extId := rec.ID
	return &Payload{
		Kind: KindDriver,
		Driver: &models.NewDriver{
			ExternalId: &extId,
			Name:       rec.String(fieldName),
			FirstName:  rec.String(fieldFirstName),
			Phone:      utils.NormalizePhone(rec.String(fieldPhone)),
			Email:      cleanEmail(rec.String(fieldEmail)),
			Status:     translateDriverStatus(rec.First(fieldStatus)),
		},
	}, nil
}

func (m *Mapper) buildOrder(rec tablesource.Record, res *Resolver, numberTaken func(string) (bool, error)) (*Payload, *Reject) {
	storeRef := rec.First(fieldStoreRef)
	storeId, ok := res.Resolve(KindStore, storeRef)
	if !ok {
		return nil, &Reject{Code: RejectStoreNotFound, Field: fieldStoreRef, Message: "unresolved store reference " + storeRef}
	}
	clientRef := rec.First(fieldClientRef)
	clientId, ok := res.Resolve(KindClient, clientRef)
	if !ok {
		return nil, &Reject{Code: RejectClientNotFound, Field: fieldClientRef, Message: "unresolved client reference " + clientRef}
	}

	// Driver assignments resolve individually; an unknown driver rejects the
	// record rather than dropping the assignment silently.
	var driverIds []int
	for _, driverRef := range rec.Strings(fieldDriverRef) {
		driverId, ok := res.Resolve(KindDriver, driverRef)
		if !ok {
			return nil, &Reject{Code: RejectDriverNotFound, Field: fieldDriverRef, Message: "unresolved driver reference " + driverRef}
		}
		driverIds = append(driverIds, driverId)
	}

	deliveryDate, err := parseDate(rec.String(fieldDeliveryDate))
	if err != nil {
		return nil, &Reject{Code: RejectDataInvalid, Field: fieldDeliveryDate, Message: err.Error()}
	}
	orderDate := m.Now()
	if rec.Has(fieldOrderDate) {
		if parsed, err := parseDate(rec.String(fieldOrderDate)); err == nil {
			orderDate = parsed
		}
	}

	number := rec.String(fieldOrderNumber)
	mangled := false
	if numberTaken != nil {
		taken, err := numberTaken(number)
		if err != nil {
			return nil, &Reject{Code: RejectDataInvalid, Field: fieldOrderNumber, Message: err.Error()}
		}
		if taken {
			// The timestamp bumps until the suffixed key is free, so three
			// records sharing one number within the same second still get
			// three distinct keys.
			ts := m.Now().Unix()
			for {
				candidate := mangleOrderNumberAt(number, ts)
				inUse, err := numberTaken(candidate)
				if err != nil {
					return nil, &Reject{Code: RejectDataInvalid, Field: fieldOrderNumber, Message: err.Error()}
				}
				if !inUse {
					number = candidate
					break
				}
				ts++
			}
			mangled = true
		}
	}

	extId := rec.ID
	return &Payload{
		Kind: KindOrder,
		Order: &models.NewOrder{
			ExternalId:   &extId,
			Number:       number,
			StoreId:      storeId,
			ClientId:     clientId,
			OrderDate:    orderDate,
			DeliveryDate: deliveryDate,
			Status:       translateOrderStatus(rec.First(fieldStatus)),
			Premium:      rec.String(fieldPremium) == premiumMarker,
			Tariff:       decimal.NewFromFloat(rec.Float(fieldTariff)),
			DriverIds:    driverIds,
		},
		MangledNumber: mangled,
	}, nil
}

// MangleOrderNumber appends the migration marker and a timestamp so both
// colliding source records survive with distinct business keys.
func MangleOrderNumber(number string, now time.Time) string {
	return mangleOrderNumberAt(number, now.Unix())
}

func mangleOrderNumberAt(number string, ts int64) string {
	return number + MigratedSuffix + strconv.FormatInt(ts, 10)
}

// cleanEmail drops malformed addresses instead of persisting them. Same
// stance as NormalizePhone: the export is too dirty to reject records over
// a contact field.
func cleanEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !utils.IsValidEmail(raw) {
		return ""
	}
	return raw
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"2006-01-02 15:04:05",
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

func translateStoreStatus(raw string) models.StoreStatus {
	if status, ok := storeStatusTable[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return models.StoreStatusActive
}

func translateDriverStatus(raw string) models.DriverStatus {
	if status, ok := driverStatusTable[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return models.DriverStatusAvailable
}

func translateOrderStatus(raw string) models.OrderStatus {
	if status, ok := orderStatusTable[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return models.OrderStatusPending
}
