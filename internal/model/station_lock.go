package model

import "time"

// StationLockID is the primary key of the single station lock row.
const StationLockID int64 = 1

// StationLock is the gate-wide lockout record. Writers compare-and-swap on Version.
type StationLock struct {
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Locked     bool   `gorm:"not null;default:false"`
	Reason     string `gorm:"size:512"`
	LockedAt   *time.Time
	UnlockedAt *time.Time
	Version    int64 `gorm:"not null;default:0"`
}
