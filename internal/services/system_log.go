package services

import (
	"encoding/json"
	"time"

	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/pkg/logger"
	"gorm.io/gorm"
)

var systemLogDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	systemLogDB = db
}

func LogInfo(module, action, message string, extra interface{}) {
	writeLog("info", module, action, message, extra)
}

func LogWarning(module, action, message string, extra interface{}) {
	writeLog("warning", module, action, message, extra)
}

func LogError(module, action, message string, extra interface{}) {
	writeLog("error", module, action, message, extra)
}

func writeLog(level, module, action, message string, extra interface{}) {
	if systemLogDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	systemLogDB.Create(entry)
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Level    string `form:"level"`
	Module   string `form:"module"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{})
	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOldLogs deletes logs older than the specified number of days.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *SystemLogService) GetRetentionDays() int {
	return NewSystemConfigService(s.db).GetInt("log_retention_days", 30)
}

var logCleanupStop chan struct{}

// StartLogCleanupScheduler periodically prunes old system logs and AI usage
// entries. Runs once on startup, then every 24 hours.
func StartLogCleanupScheduler(db *gorm.DB) {
	logCleanupStop = make(chan struct{})

	go func() {
		service := NewSystemLogService(db)
		usageService := NewAIUsageService(db)

		runLogCleanup(service, usageService)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runLogCleanup(service, usageService)
			case <-logCleanupStop:
				return
			}
		}
	}()
}

// StopLogCleanupScheduler stops the cleanup goroutine.
func StopLogCleanupScheduler() {
	if logCleanupStop != nil {
		close(logCleanupStop)
		logCleanupStop = nil
	}
}

func runLogCleanup(service *SystemLogService, usageService *AIUsageService) {
	retentionDays := service.GetRetentionDays()
	if retentionDays <= 0 {
		logger.Infof("[SystemLog] Log cleanup disabled (retention_days <= 0)")
		return
	}

	deleted, err := service.CleanupOldLogs(retentionDays)
	if err != nil {
		logger.Errorf("[SystemLog] Failed to cleanup old logs: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[SystemLog] Cleaned up %d logs older than %d days", deleted, retentionDays)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if deleted, err := usageService.CleanupBefore(cutoff); err == nil && deleted > 0 {
		logger.Infof("[SystemLog] Cleaned up %d AI usage entries", deleted)
	}
}
