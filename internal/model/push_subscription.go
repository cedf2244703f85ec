package model

import "time"

// PushSubscription holds an operator browser's push endpoint for alerts.
type PushSubscription struct {
	Endpoint    string    `gorm:"primaryKey"`
	P256DH      string    `gorm:"column:p256dh;not null"`
	Auth        string    `gorm:"not null"`
	MinSeverity string    `gorm:"size:16;not null;default:warning"`
	CreatedAt   time.Time `gorm:"not null"`
}
