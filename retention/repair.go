package retention

import (
	"context"
	"time"

	"bitbucket.org/courseo/logistics_backend/models"
	"gorm.io/gorm"
)

// RepairResult tallies one repair pass.
type RepairResult struct {
	Repaired int `json:"repaired"`
}

// RepairRetentionDates gives every non-pseudonymized client with a null or
// already-past retention deadline a fresh window from now. After a pass, no
// sweepable client is left with `retention_until < now OR retention_until IS
// NULL`. Last-activity timestamps stay untouched: the repair fixes deadlines,
// it does not invent activity.
func RepairRetentionDates(ctx context.Context, db *gorm.DB, now time.Time) (*RepairResult, error) {
	until := models.RetentionUntilFrom(now)
	res := db.WithContext(ctx).Model(&models.Client{}).
		Where("pseudonymized = ?", false).
		Where("retention_until IS NULL OR retention_until < ?", now).
		Update("retention_until", until)
	if res.Error != nil {
		return nil, res.Error
	}
	return &RepairResult{Repaired: int(res.RowsAffected)}, nil
}
