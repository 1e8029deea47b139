package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
)

// RetentionYears is the legal retention window applied to client identifying
// data, counted from the client's last activity.
const RetentionYears = 2

// Fixed masked values written by the retention sweep. Pseudonymization is
// irreversible: the original values are not kept anywhere.
const (
	MaskedName    = "ANONYMISE"
	MaskedPhone   = "0000000000"
	MaskedAddress = ""
)

type Client struct {
	ID                int        `gorm:"primary_key" json:"id"`
	ExternalId        *string    `gorm:"uniqueIndex;size:128" json:"external_id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	FirstName         string     `gorm:"size:100" json:"first_name"`
	Phone             string     `gorm:"size:20" json:"phone"`
	Address           string     `gorm:"size:255" json:"address"`
	LastActivityAt    *time.Time `json:"last_activity_at"`
	RetentionUntil    *time.Time `gorm:"index" json:"retention_until"`
	DeletionRequested bool       `gorm:"not null;default:false" json:"deletion_requested"`
	Pseudonymized     bool       `gorm:"not null;default:false" json:"pseudonymized"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	ExternalId *string `json:"external_id"`
	Name       string  `json:"name" binding:"required"`
	FirstName  string  `json:"first_name"`
	Phone      string  `json:"phone"`
	Address    string  `json:"address"`
}

// RetentionUntilFrom computes the retention deadline from a last-activity
// timestamp. Every code path that recomputes the window goes through here.
func RetentionUntilFrom(lastActivity time.Time) time.Time {
	return lastActivity.AddDate(RetentionYears, 0, 0)
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	if input.Name == "" {
		return nil, errors.New("client name is required")
	}

	now := time.Now()
	retentionUntil := RetentionUntilFrom(now)
	client := Client{
		ExternalId:     input.ExternalId,
		Name:           input.Name,
		FirstName:      input.FirstName,
		Phone:          input.Phone,
		Address:        input.Address,
		LastActivityAt: &now,
		RetentionUntil: &retentionUntil,
	}
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	db := config.GetDB()
	var client Client
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&client).Error; err != nil {
		return nil, err
	}
	if client.Pseudonymized {
		return nil, errors.New("client is pseudonymized; identifying fields are frozen")
	}
	if err := db.WithContext(ctx).Model(&client).Updates(map[string]interface{}{
		"name":       input.Name,
		"first_name": input.FirstName,
		"phone":      input.Phone,
		"address":    input.Address,
	}).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	db := config.GetDB()
	var client Client
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&client).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}
