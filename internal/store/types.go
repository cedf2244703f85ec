package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStationLocked is returned when a mutation finds the station lock engaged.
	ErrStationLocked = errors.New("station is locked")
	// ErrSessionClosed is returned when a guest session was closed concurrently.
	ErrSessionClosed = errors.New("guest session is not open")
	// ErrOccupancyChanged is returned when a vehicle's occupancy no longer matches the expected state.
	ErrOccupancyChanged = errors.New("vehicle occupancy changed concurrently")
	// ErrLockContention is returned when the station lock version kept moving under a writer.
	ErrLockContention = errors.New("station lock update lost to concurrent writers")
)

// ResidentMatch is the Plate Directory answer for a registered vehicle.
type ResidentMatch struct {
	VehicleID  int64
	ResidentID int64
	Occupied   bool
	Active     bool
}

// ActiveVehicle is a resident vehicle currently inside the parking area.
type ActiveVehicle struct {
	VehicleID  int64      `json:"vehicle_id"`
	ResidentID int64      `json:"resident_id"`
	FullName   string     `json:"full_name"`
	Plate      string     `json:"plate"`
	EnteredAt  *time.Time `json:"entered_at"`
}

// AttemptResult describes the counter state after a wrong ticket code.
type AttemptResult struct {
	WrongCount int
	// Locked is true when the station lock was already engaged; nothing was counted.
	Locked bool
	// LockEngaged is true when this attempt reached the threshold and engaged the lock.
	LockEngaged   bool
	LockExpiresAt *time.Time
}

// WrongAttempt carries the inputs of RecordWrongAttempt.
type WrongAttempt struct {
	SessionID int64
	Threshold int
	At        time.Time
	Cooldown  time.Duration
	// LockReason is written to the station lock when the threshold is reached.
	LockReason string
}

// GuestSessionFilter narrows the guest session listing. Zero fields are ignored.
type GuestSessionFilter struct {
	From       time.Time
	To         time.Time
	Plate      string
	TicketCode string
	Status     string
	Limit      int
}

// DailyReport aggregates one day of gate activity.
type DailyReport struct {
	GuestCount     int64 `json:"guest_count"`
	GuestRevenue   int64 `json:"guest_revenue"`
	GuestEvents    int64 `json:"guest_events"`
	ResidentEvents int64 `json:"resident_events"`
}
