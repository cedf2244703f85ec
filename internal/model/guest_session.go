package model

import "time"

// Guest session status values.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// GuestSession is one paid visit of an unregistered vehicle.
// CheckoutAt and Fee stay nil until the session is closed.
type GuestSession struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	Plate      string     `gorm:"size:32;not null;index" json:"plate"`
	TicketCode string     `gorm:"size:6;not null;index" json:"ticket_code"`
	CheckinAt  time.Time  `gorm:"not null;index" json:"checkin_at"`
	CheckoutAt *time.Time `json:"checkout_at"`
	Fee        *int64     `json:"fee"`
	Status     string     `gorm:"size:16;not null;index" json:"status"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"-"`
}

// TicketAttempt counts wrong ticket codes entered against one session.
type TicketAttempt struct {
	SessionID     int64      `gorm:"primaryKey"`
	WrongCount    int        `gorm:"not null;default:0"`
	LockExpiresAt *time.Time // advisory only, the station lock never auto-clears
	LastAttemptAt time.Time  `gorm:"not null"`
}
