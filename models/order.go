package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Order struct {
	ID           int               `gorm:"primary_key" json:"id"`
	ExternalId   *string           `gorm:"uniqueIndex;size:128" json:"external_id"`
	Number       string            `gorm:"uniqueIndex;size:100;not null" json:"number"`
	StoreId      int               `gorm:"index;not null" json:"store_id"`
	ClientId     int               `gorm:"index;not null" json:"client_id"`
	OrderDate    time.Time         `json:"order_date"`
	DeliveryDate time.Time         `gorm:"not null" json:"delivery_date"`
	Status       OrderStatus       `gorm:"type:enum('Pending','Assigned','PickedUp','Delivered','Cancelled');not null;default:'Pending'" json:"status"`
	Premium      bool              `gorm:"not null;default:false" json:"premium"`
	Tariff       decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"tariff"`
	Assignments  []OrderAssignment `gorm:"foreignKey:OrderId" json:"assignments"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderAssignment struct {
	ID       int `gorm:"primary_key" json:"id"`
	OrderId  int `gorm:"uniqueIndex:idx_order_driver,priority:1;not null" json:"order_id"`
	DriverId int `gorm:"uniqueIndex:idx_order_driver,priority:2;not null" json:"driver_id"`
}

type NewOrder struct {
	ExternalId   *string         `json:"external_id"`
	Number       string          `json:"number" binding:"required"`
	StoreId      int             `json:"store_id" binding:"required"`
	ClientId     int             `json:"client_id" binding:"required"`
	OrderDate    time.Time       `json:"order_date"`
	DeliveryDate time.Time       `json:"delivery_date" binding:"required"`
	Status       OrderStatus     `json:"status"`
	Premium      bool            `json:"premium"`
	Tariff       decimal.Decimal `json:"tariff"`
	DriverIds    []int           `json:"driver_ids"`
}

func (input *NewOrder) validate(ctx context.Context, db *gorm.DB) error {
	if input.Number == "" {
		return errors.New("order number is required")
	}
	if input.DeliveryDate.IsZero() {
		return errors.New("delivery date is required")
	}
	// An order is never created with a dangling relation.
	var n int64
	if err := db.WithContext(ctx).Model(&Store{}).Where("id = ?", input.StoreId).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return errors.New("store not found")
	}
	if err := db.WithContext(ctx).Model(&Client{}).Where("id = ?", input.ClientId).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return errors.New("client not found")
	}
	return nil
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	if err := input.validate(ctx, db); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = OrderStatusPending
	}
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now()
	}

	order := Order{
		ExternalId:   input.ExternalId,
		Number:       input.Number,
		StoreId:      input.StoreId,
		ClientId:     input.ClientId,
		OrderDate:    orderDate,
		DeliveryDate: input.DeliveryDate,
		Status:       status,
		Premium:      input.Premium,
		Tariff:       input.Tariff,
	}
	for _, driverId := range input.DriverIds {
		order.Assignments = append(order.Assignments, OrderAssignment{DriverId: driverId})
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	if err := db.WithContext(ctx).Preload("Assignments").Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// OrderNumberExists reports whether a business key is already taken. Used by
// the migration mapper's collision check before accepting an order number.
func OrderNumberExists(ctx context.Context, number string) (bool, error) {
	db := config.GetDB()
	var n int64
	if err := db.WithContext(ctx).Model(&Order{}).Where("number = ?", number).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
