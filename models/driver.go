package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
)

type Driver struct {
	ID         int          `gorm:"primary_key" json:"id"`
	ExternalId *string      `gorm:"uniqueIndex;size:128" json:"external_id"`
	Name       string       `gorm:"size:100;not null" json:"name"`
	FirstName  string       `gorm:"size:100" json:"first_name"`
	Phone      string       `gorm:"size:20" json:"phone"`
	Email      string       `gorm:"size:100" json:"email"`
	Status     DriverStatus `gorm:"type:enum('Available','OnRoute','Inactive');not null;default:'Available'" json:"status"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDriver struct {
	ExternalId *string      `json:"external_id"`
	Name       string       `json:"name" binding:"required"`
	FirstName  string       `json:"first_name"`
	Phone      string       `json:"phone"`
	Email      string       `json:"email"`
	Status     DriverStatus `json:"status"`
}

func CreateDriver(ctx context.Context, input *NewDriver) (*Driver, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	if input.Name == "" {
		return nil, errors.New("driver name is required")
	}
	status := input.Status
	if status == "" {
		status = DriverStatusAvailable
	}
	driver := Driver{
		ExternalId: input.ExternalId,
		Name:       input.Name,
		FirstName:  input.FirstName,
		Phone:      input.Phone,
		Email:      input.Email,
		Status:     status,
	}
	if err := db.WithContext(ctx).Create(&driver).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}

func UpdateDriver(ctx context.Context, id int, input *NewDriver) (*Driver, error) {
	db := config.GetDB()
	var driver Driver
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&driver).Error; err != nil {
		return nil, notFound(err)
	}
	updates := map[string]interface{}{
		"name":       input.Name,
		"first_name": input.FirstName,
		"phone":      input.Phone,
		"email":      input.Email,
	}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if err := db.WithContext(ctx).Model(&driver).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}

func GetDriver(ctx context.Context, id int) (*Driver, error) {
	db := config.GetDB()
	var driver Driver
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&driver).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}
