package models

import (
	"time"

	"gorm.io/gorm"
)

// IMBot represents an IM notification endpoint.
type IMBot struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Type         string         `gorm:"size:50;not null" json:"type"` // wechat_work, dingtalk, feishu, slack
	Webhook      string         `gorm:"size:500;not null" json:"webhook"`
	Secret       string         `gorm:"size:255" json:"-"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	ReportNotify bool           `gorm:"default:true" json:"report_notify"`  // receives info-level report notifications
	CriticalOnly bool           `gorm:"default:false" json:"critical_only"` // only receives critical notifications
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (IMBot) TableName() string { return "im_bots" }
