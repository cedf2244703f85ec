package model

import "time"

// Capture modes.
const (
	CaptureIn  = "IN"
	CaptureOut = "OUT"
)

// GateCapture references the images recorded around a gate decision.
type GateCapture struct {
	ID             int64  `gorm:"primaryKey"`
	Mode           string `gorm:"size:8;not null"`
	Plate          string `gorm:"size:32"`
	ResidentID     *int64
	GuestSessionID *int64
	PlateImageKey  string `gorm:"size:256"`
	FaceImageKey   string `gorm:"size:256"`
	SceneImageKey  string `gorm:"size:256"`
	UsedBackupCode bool
	CreatedAt      time.Time `gorm:"not null;index"`
}
