package models

import (
	"gorm.io/gorm"
)

// AfterCreate moves the client's activity window forward whenever a new order
// lands. Retention deadlines are recomputed here, never by the sweeper.
func (o *Order) AfterCreate(tx *gorm.DB) error {
	retentionUntil := RetentionUntilFrom(o.OrderDate)
	return tx.Model(&Client{}).
		Where("id = ? AND (last_activity_at IS NULL OR last_activity_at < ?)", o.ClientId, o.OrderDate).
		Updates(map[string]interface{}{
			"last_activity_at": o.OrderDate,
			"retention_until":  retentionUntil,
		}).Error
}
