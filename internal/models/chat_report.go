package models

import "time"

// Chat report lifecycle states. RUNNING is the only non-terminal state;
// it is resolved by the run itself or by startup recovery.
const (
	ReportStatusRunning   = "RUNNING"
	ReportStatusCompleted = "COMPLETED"
	ReportStatusFailed    = "FAILED"
	ReportStatusSkipped   = "SKIPPED"
)

// ChatReport represents one daily chatbot interaction report.
// TargetDate is normalized to UTC midnight and is the sole date-equality
// key; the unique index enforces at most one record per calendar day.
type ChatReport struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TargetDate time.Time `gorm:"uniqueIndex;not null" json:"target_date"`
	Status     string    `gorm:"size:20;index;not null" json:"status"`

	RowCount int64 `json:"row_count"`

	ReportMarkdown string `gorm:"type:text" json:"report_markdown,omitempty"`
	ReportMetadata string `gorm:"type:text" json:"report_metadata,omitempty"`

	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (ChatReport) TableName() string { return "chat_reports" }

// IsTerminal reports whether the record will not transition again.
func (r *ChatReport) IsTerminal() bool {
	return r.Status == ReportStatusCompleted ||
		r.Status == ReportStatusFailed ||
		r.Status == ReportStatusSkipped
}
