package retention

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"bitbucket.org/courseo/logistics_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RetentionState classifies a client against the retention window.
type RetentionState string

const (
	StateActive        RetentionState = "ACTIVE"
	StateExpired       RetentionState = "EXPIRED"
	StatePseudonymized RetentionState = "PSEUDONYMIZED"
)

// Classify returns the client's retention state at the given instant.
// Expiry is strict: a deadline exactly equal to now is still active.
func Classify(client *models.Client, now time.Time) RetentionState {
	if client.Pseudonymized {
		return StatePseudonymized
	}
	if client.DeletionRequested {
		return StateExpired
	}
	if client.RetentionUntil != nil && client.RetentionUntil.Before(now) {
		return StateExpired
	}
	return StateActive
}

const sweepLockKey = "retention:sweep"

// ErrSweepInProgress is returned when the sweep lock is held elsewhere.
var ErrSweepInProgress = errors.New("another sweep is in progress")

// SweepResult tallies one sweep invocation.
type SweepResult struct {
	Examined      int       `json:"examined"`
	Pseudonymized int       `json:"pseudonymized"`
	Failed        int       `json:"failed"`
	SweptAt       time.Time `json:"swept_at"`
}

// Sweeper pseudonymizes expired clients on a daily schedule. Orders and
// their monetary fields are never touched; only the client's identifying
// fields are overwritten.
type Sweeper struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Locker *redislock.Client
	Now    func() time.Time
}

func NewSweeper(db *gorm.DB, logger *logrus.Logger, locker *redislock.Client) *Sweeper {
	return &Sweeper{DB: db, Logger: logger, Locker: locker, Now: time.Now}
}

// Start runs the daily sweep loop until the context is cancelled. Any error
// from one invocation is logged and the loop keeps going; a bad day never
// kills the schedule.
func (s *Sweeper) Start(ctx context.Context) {
	if !config.RetentionSweepEnabled() {
		s.Logger.WithField("module", "retention").Info("retention sweep disabled, not starting")
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"module": "retention",
		"hour":   sweepHour(),
	}).Info("retention sweeper started")

	for {
		next := s.nextRun()
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		result, err := s.SweepOnce(ctx)
		if err != nil {
			config.LogError(s.Logger, "sweeper.go", "Start", "daily retention sweep", nil, err)
			continue
		}
		s.Logger.WithFields(logrus.Fields{
			"module":        "retention",
			"examined":      result.Examined,
			"pseudonymized": result.Pseudonymized,
			"failed":        result.Failed,
		}).Info("retention sweep finished")
	}
}

func (s *Sweeper) nextRun() time.Time {
	now := s.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), sweepHour(), 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func sweepHour() int {
	if v := os.Getenv("RETENTION_SWEEP_HOUR"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h <= 23 {
			return h
		}
	}
	return 3
}

// SweepOnce pseudonymizes every client past the retention deadline plus every
// client with a pending deletion request, regardless of deadline. Per-client
// failures are tallied, not fatal.
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	if s.Locker != nil {
		lock, err := s.Locker.Obtain(ctx, sweepLockKey, 10*time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, ErrSweepInProgress
			}
			return nil, err
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	now := s.Now()
	var clients []models.Client
	err := s.DB.WithContext(ctx).
		Where("pseudonymized = ?", false).
		Where("(retention_until IS NOT NULL AND retention_until < ?) OR deletion_requested = ?", now, true).
		Order("id").
		Find(&clients).Error
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Examined: len(clients), SweptAt: now}
	for i := range clients {
		if err := s.pseudonymize(ctx, &clients[i]); err != nil {
			result.Failed++
			config.LogError(s.Logger, "sweeper.go", "SweepOnce", "pseudonymizing client", clients[i].ID, err)
			continue
		}
		result.Pseudonymized++
	}
	return result, nil
}

// pseudonymize overwrites the client's identifying fields with the fixed
// masked values. The guard clause makes the write idempotent under races.
func (s *Sweeper) pseudonymize(ctx context.Context, client *models.Client) error {
	res := s.DB.WithContext(ctx).Model(&models.Client{}).
		Where("id = ? AND pseudonymized = ?", client.ID, false).
		Updates(map[string]interface{}{
			"name":          models.MaskedName,
			"first_name":    models.MaskedName,
			"phone":         models.MaskedPhone,
			"address":       models.MaskedAddress,
			"pseudonymized": true,
		})
	if res.Error != nil {
		return res.Error
	}
	return nil
}
