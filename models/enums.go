package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type StoreStatus string

const (
	StoreStatusActive    StoreStatus = "Active"
	StoreStatusInactive  StoreStatus = "Inactive"
	StoreStatusSuspended StoreStatus = "Suspended"
)

func (t StoreStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *StoreStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t = StoreStatus(v)
	case []byte:
		*t = StoreStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into StoreStatus", value)
	}
	return nil
}

type DriverStatus string

const (
	DriverStatusAvailable DriverStatus = "Available"
	DriverStatusOnRoute   DriverStatus = "OnRoute"
	DriverStatusInactive  DriverStatus = "Inactive"
)

func (t DriverStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *DriverStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t = DriverStatus(v)
	case []byte:
		*t = DriverStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into DriverStatus", value)
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusAssigned  OrderStatus = "Assigned"
	OrderStatusPickedUp  OrderStatus = "PickedUp"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

func (t OrderStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *OrderStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t = OrderStatus(v)
	case []byte:
		*t = OrderStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into OrderStatus", value)
	}
	return nil
}

var errInvalidStatus = errors.New("invalid status value")

// ParseOrderStatus accepts the canonical value only; source-side status
// strings go through the migration translation table instead.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusAssigned, OrderStatusPickedUp,
		OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", errInvalidStatus
}
