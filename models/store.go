package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"bitbucket.org/courseo/logistics_backend/utils"
	"gorm.io/gorm"
)

type Store struct {
	ID             int         `gorm:"primary_key" json:"id"`
	ExternalId     *string     `gorm:"uniqueIndex;size:128" json:"external_id"`
	Name           string      `gorm:"size:100;not null" json:"name" binding:"required"`
	Address        string      `gorm:"size:255" json:"address"`
	Phone          string      `gorm:"size:20" json:"phone"`
	Email          string      `gorm:"size:100" json:"email"`
	Status         StoreStatus `gorm:"type:enum('Active','Inactive','Suspended');not null;default:'Active'" json:"status"`
	CategoriesJSON []byte      `gorm:"type:json" json:"categories"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStore struct {
	ExternalId *string     `json:"external_id"`
	Name       string      `json:"name" binding:"required"`
	Address    string      `json:"address"`
	Phone      string      `json:"phone"`
	Email      string      `json:"email"`
	Status     StoreStatus `json:"status"`
	Categories []string    `json:"categories"`
}

func (s *Store) Categories() []string {
	if len(s.CategoriesJSON) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(s.CategoriesJSON, &out); err != nil {
		return nil
	}
	return out
}

func CreateStore(ctx context.Context, input *NewStore) (*Store, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	if input.Name == "" {
		return nil, errors.New("store name is required")
	}
	status := input.Status
	if status == "" {
		status = StoreStatusActive
	}
	categoriesJSON, _ := json.Marshal(input.Categories)

	store := Store{
		ExternalId:     input.ExternalId,
		Name:           input.Name,
		Address:        input.Address,
		Phone:          input.Phone,
		Email:          input.Email,
		Status:         status,
		CategoriesJSON: categoriesJSON,
	}
	if err := db.WithContext(ctx).Create(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func UpdateStore(ctx context.Context, id int, input *NewStore) (*Store, error) {
	db := config.GetDB()
	var store Store
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&store).Error; err != nil {
		return nil, err
	}
	categoriesJSON, _ := json.Marshal(input.Categories)
	updates := map[string]interface{}{
		"name":            input.Name,
		"address":         input.Address,
		"phone":           input.Phone,
		"email":           input.Email,
		"categories_json": categoriesJSON,
	}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if err := db.WithContext(ctx).Model(&store).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func GetStore(ctx context.Context, id int) (*Store, error) {
	db := config.GetDB()
	var store Store
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&store).Error; err != nil {
		return nil, notFound(err)
	}
	return &store, nil
}

// notFound translates gorm's sentinel so callers outside the storage layer
// never import gorm just to check an error.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}
