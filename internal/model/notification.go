package model

import "time"

// Alert severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityDanger  = "danger"
)

// AdminNotification is a persisted operator alert.
type AdminNotification struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Severity  string    `gorm:"size:16;not null" json:"severity"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
