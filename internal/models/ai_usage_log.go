package models

import "time"

// AIUsageLog records token accounting for one LLM completion call.
type AIUsageLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Provider         string    `gorm:"size:50;index" json:"provider"`
	Model            string    `gorm:"size:100" json:"model"`
	Purpose          string    `gorm:"size:50;index" json:"purpose"` // e.g. chat_report
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	Success          bool      `gorm:"index" json:"success"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (AIUsageLog) TableName() string { return "ai_usage_logs" }
