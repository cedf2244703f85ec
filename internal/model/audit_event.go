package model

import "time"

// Audit event kinds.
const (
	EventResidentIn  = "resident_in"
	EventResidentOut = "resident_out"
	EventGuestIn     = "guest_in"
	EventGuestOut    = "guest_out"
)

// Audit actor kinds.
const (
	ActorResident = "resident"
	ActorGuest    = "guest"
)

// AuditEvent is an append-only record of one accepted gate transition.
// Exactly one of ResidentID and GuestSessionID is set.
type AuditEvent struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	At             time.Time `gorm:"not null;index" json:"at"`
	Kind           string    `gorm:"size:16;not null;index" json:"kind"`
	Actor          string    `gorm:"size:16;not null" json:"actor"`
	ResidentID     *int64    `gorm:"index" json:"resident_id,omitempty"`
	GuestSessionID *int64    `gorm:"index" json:"guest_session_id,omitempty"`
	Plate          string    `gorm:"size:32;not null" json:"plate"`
}
