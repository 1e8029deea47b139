package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"bitbucket.org/courseo/logistics_backend/migration"
	"bitbucket.org/courseo/logistics_backend/models"
	"bitbucket.org/courseo/logistics_backend/retention"
	"bitbucket.org/courseo/logistics_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type triggerMigrationRequest struct {
	Entities       []string `json:"entities"`
	Recreate       bool     `json:"recreate"`
	UpdateExisting bool     `json:"update_existing"`
	DryRun         bool     `json:"dry_run"`
}

func triggerMigrationHandler(logger *logrus.Logger, newSource func() (migration.Source, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req triggerMigrationRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
				return
			}
		}

		kinds, err := migration.ParseKinds(strings.Join(req.Entities, ","))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		source, err := newSource()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		engine := migration.NewEngine(config.GetDB(), logger, source, config.GetRedisLock())
		summary, err := engine.Run(c.Request.Context(), migration.Options{
			Kinds:          kinds,
			Recreate:       req.Recreate,
			UpdateExisting: req.UpdateExisting || config.MigrationUpdateExisting(),
			DryRun:         req.DryRun,
			TriggeredBy:    models.MigrationTriggeredManual,
		})
		if err != nil {
			c.JSON(runErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// runErrorStatus maps run failures onto HTTP statuses: only a held lock is a
// conflict, an unreachable database is a 503, anything else is a 500.
func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, migration.ErrRunInProgress), errors.Is(err, retention.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, migration.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func migrationRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var runs []models.MigrationRun
		if err := db.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

func migrationRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var run models.MigrationRun
		if err := db.Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.MigrationError
		if err := db.Where("run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run": run, "errors": errs})
	}
}

func reconciliationReportHandler(newSource func() (migration.Source, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("refresh") != "true" {
			if cached, found, _ := migration.CachedAudit(); found {
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		source, err := newSource()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		auditor := migration.NewAuditor(config.GetDB(), source)
		audit, err := auditor.AuditAll(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = migration.CacheAudit(audit)
		c.JSON(http.StatusOK, audit)
	}
}

func triggerSweepHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sweeper := retention.NewSweeper(config.GetDB(), logger, config.GetRedisLock())
		result, err := sweeper.SweepOnce(c.Request.Context())
		if err != nil {
			c.JSON(runErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func retentionRepairHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := retention.RepairRetentionDates(c.Request.Context(), config.GetDB(), time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func entityJSON(c *gin.Context, entity any, err error) {
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entity)
}

func storeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		store, err := models.GetStore(c.Request.Context(), id)
		entityJSON(c, store, err)
	}
}

func clientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		client, err := models.GetClient(c.Request.Context(), id)
		entityJSON(c, client, err)
	}
}

func driverHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		driver, err := models.GetDriver(c.Request.Context(), id)
		entityJSON(c, driver, err)
	}
}

func orderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		order, err := models.GetOrder(c.Request.Context(), id)
		entityJSON(c, order, err)
	}
}

func ordersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		q := config.GetDB().WithContext(c.Request.Context())
		if v := strings.TrimSpace(c.Query("status")); v != "" {
			status, err := models.ParseOrderStatus(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status " + v})
				return
			}
			q = q.Where("status = ?", status)
		}

		var orders []models.Order
		if err := q.Order("id desc").Limit(limit).Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": orders})
	}
}
