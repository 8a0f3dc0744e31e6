package services

import (
	"time"

	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/pkg/logger"
	"gorm.io/gorm"
)

// AIUsageService manages LLM usage tracking.
type AIUsageService struct {
	db *gorm.DB
}

func NewAIUsageService(db *gorm.DB) *AIUsageService {
	return &AIUsageService{db: db}
}

// Record saves a usage log entry asynchronously.
func (s *AIUsageService) Record(usage *models.AIUsageLog) {
	go func() {
		if err := s.db.Create(usage).Error; err != nil {
			logger.Warnf("[AIUsage] Failed to record usage: %v", err)
		}
	}()
}

// UsageStats holds aggregated LLM usage statistics.
type UsageStats struct {
	TotalCalls       int64   `json:"total_calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	SuccessCount     int64   `json:"success_count"`
	FailureCount     int64   `json:"failure_count"`
}

// GetStats returns aggregated usage statistics for the given time range.
func (s *AIUsageService) GetStats(startDate, endDate string) (*UsageStats, error) {
	base := func() *gorm.DB {
		q := s.db.Model(&models.AIUsageLog{})
		if startDate != "" {
			q = q.Where("created_at >= ?", startDate)
		}
		if endDate != "" {
			q = q.Where("created_at <= ?", endDate+" 23:59:59")
		}
		return q
	}

	var stats UsageStats
	base().Count(&stats.TotalCalls)
	base().Select("COALESCE(SUM(prompt_tokens), 0)").Scan(&stats.PromptTokens)
	base().Select("COALESCE(SUM(completion_tokens), 0)").Scan(&stats.CompletionTokens)
	base().Select("COALESCE(AVG(latency_ms), 0)").Scan(&stats.AvgLatencyMs)
	base().Where("success = ?", true).Count(&stats.SuccessCount)
	stats.FailureCount = stats.TotalCalls - stats.SuccessCount

	return &stats, nil
}

// CleanupBefore deletes usage entries older than the cutoff.
func (s *AIUsageService) CleanupBefore(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.AIUsageLog{})
	return result.RowsAffected, result.Error
}
