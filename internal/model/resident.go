package model

import "time"

// Resident status values.
const (
	ResidentActive   = "active"
	ResidentInactive = "inactive"
)

// Resident is a registered occupant of the building.
type Resident struct {
	ID        int64     `gorm:"primaryKey"`
	FullName  string    `gorm:"size:128;not null"`
	Status    string    `gorm:"size:16;not null;default:active"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Vehicles []ResidentVehicle `gorm:"foreignKey:ResidentID"`
}

// ResidentVehicle binds a normalized plate to exactly one resident.
// Occupied is true while the vehicle is inside the gate.
type ResidentVehicle struct {
	ID         int64     `gorm:"primaryKey"`
	ResidentID int64     `gorm:"index;not null"`
	Plate      string    `gorm:"uniqueIndex;size:32;not null"`
	Occupied   bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`

	// Associations
	Resident Resident `gorm:"constraint:OnDelete:CASCADE"`
}

// BackupCode is a resident's fallback exit code. Only the bcrypt hash is stored.
// Old codes are deactivated, never deleted.
type BackupCode struct {
	ID         int64     `gorm:"primaryKey"`
	ResidentID int64     `gorm:"index;not null"`
	CodeHash   string    `gorm:"size:72;not null"`
	Active     bool      `gorm:"index;not null;default:true"`
	CreatedAt  time.Time `gorm:"not null"`
}

// FaceReference is the stored face embedding a live sample is compared against.
type FaceReference struct {
	ResidentID int64     `gorm:"primaryKey"`
	Embedding  []float64 `gorm:"serializer:json;type:text;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
