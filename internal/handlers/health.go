package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/internal/services"
)

// HealthHandler provides the health check endpoint.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Metadata database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Analytics engine check. Degraded, not unhealthy: the API still serves
	// previously generated reports without it.
	analyticsStatus := "ok"
	if adb := models.GetAnalyticsDB(); adb == nil {
		analyticsStatus = "not configured"
		if overall == "healthy" {
			overall = "degraded"
		}
	} else if sqlADB, err := adb.DB(); err != nil {
		analyticsStatus = "error: " + err.Error()
		if overall == "healthy" {
			overall = "degraded"
		}
	} else if err := sqlADB.Ping(); err != nil {
		analyticsStatus = "error: " + err.Error()
		if overall == "healthy" {
			overall = "degraded"
		}
	}

	// Queue mode
	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	// Async worker, only present when Redis is enabled
	workerStatus := "disabled"
	if w := services.GetWorker(); w != nil {
		workerStatus = "stopped"
		if w.IsRunning() {
			workerStatus = "running"
		}
	}

	// In-flight report count
	var runningCount int64
	models.GetDB().Model(&models.ChatReport{}).
		Where("status = ?", models.ReportStatusRunning).
		Count(&runningCount)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "ibkchat-insight",
		"components": gin.H{
			"database":        dbStatus,
			"analytics":       analyticsStatus,
			"queue_mode":      queueMode,
			"worker":          workerStatus,
			"running_reports": runningCount,
		},
	})
}
