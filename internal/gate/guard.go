package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/model"
	"gate-access-backend/internal/notification"
	"gate-access-backend/internal/store"
)

// TicketResult is the verdict of a ticket verification.
type TicketResult int

const (
	TicketAccepted TicketResult = iota
	TicketWrong
	TicketLocked
	// TicketSessionClosed means another request closed the session first.
	TicketSessionClosed
)

func (r TicketResult) String() string {
	switch r {
	case TicketAccepted:
		return "accepted"
	case TicketWrong:
		return "wrong"
	case TicketLocked:
		return "locked"
	case TicketSessionClosed:
		return "session_closed"
	}
	return "unknown"
}

// TicketOutcome is returned by Guard.Verify.
type TicketOutcome struct {
	Result TicketResult
	// Remaining is set for TicketWrong.
	Remaining int
	// Session is the closed session for TicketAccepted.
	Session *model.GuestSession
	Fee     int64
	// LockEngaged is true when this verification engaged the station lock.
	LockEngaged bool
}

// Notifier receives operator alerts. Notify must not block.
type Notifier interface {
	Notify(alert notification.Alert)
}

// Guard verifies guest ticket codes on exit and locks the station after
// too many wrong codes against one session.
type Guard struct {
	store     store.Store
	lock      *StationLock
	notifier  Notifier
	threshold int
	cooldown  time.Duration
	unitRate  int64
	loc       *time.Location
	log       *slog.Logger
}

// Verify checks supplied against the session's ticket code. The caller holds the plate lock.
func (g *Guard) Verify(ctx context.Context, session *model.GuestSession, supplied string, at time.Time) (TicketOutcome, error) {
	locked, err := g.lock.IsLocked(ctx)
	if err != nil {
		return TicketOutcome{}, persistence("read station lock", err)
	}
	if locked {
		metrics.TicketVerificationsTotal.WithLabelValues(TicketLocked.String()).Inc()
		return TicketOutcome{Result: TicketLocked}, nil
	}

	if subtle.ConstantTimeCompare([]byte(supplied), []byte(session.TicketCode)) == 1 {
		return g.accept(ctx, session, at)
	}
	return g.reject(ctx, session, at)
}

func (g *Guard) accept(ctx context.Context, session *model.GuestSession, at time.Time) (TicketOutcome, error) {
	fee := Fee(session.CheckinAt, at, g.unitRate)
	closed, err := g.store.CloseGuestSession(ctx, session.ID, at, fee)
	switch {
	case errors.Is(err, store.ErrStationLocked):
		metrics.TicketVerificationsTotal.WithLabelValues(TicketLocked.String()).Inc()
		return TicketOutcome{Result: TicketLocked}, nil
	case errors.Is(err, store.ErrSessionClosed):
		return TicketOutcome{Result: TicketSessionClosed}, nil
	case err != nil:
		return TicketOutcome{}, persistence("close guest session", err)
	}

	metrics.TicketVerificationsTotal.WithLabelValues(TicketAccepted.String()).Inc()
	g.log.Info("guest session closed", "session_id", closed.ID, "plate", closed.Plate, "fee", fee)
	return TicketOutcome{Result: TicketAccepted, Session: closed, Fee: fee}, nil
}

func (g *Guard) reject(ctx context.Context, session *model.GuestSession, at time.Time) (TicketOutcome, error) {
	res, err := g.store.RecordWrongAttempt(ctx, store.WrongAttempt{
		SessionID:  session.ID,
		Threshold:  g.threshold,
		At:         at,
		Cooldown:   g.cooldown,
		LockReason: fmt.Sprintf("Wrong ticket code %d times for plate %s (session %d)", g.threshold, session.Plate, session.ID),
	})
	switch {
	case errors.Is(err, store.ErrSessionClosed):
		return TicketOutcome{Result: TicketSessionClosed}, nil
	case err != nil:
		return TicketOutcome{}, persistence("record wrong attempt", err)
	}

	if res.Locked {
		metrics.TicketVerificationsTotal.WithLabelValues(TicketLocked.String()).Inc()
		return TicketOutcome{Result: TicketLocked}, nil
	}

	if res.LockEngaged {
		metrics.TicketVerificationsTotal.WithLabelValues(TicketLocked.String()).Inc()
		metrics.LockoutsTotal.Inc()
		metrics.SetStationLocked(true)
		g.log.Warn("station lock engaged after wrong ticket codes",
			"session_id", session.ID, "plate", session.Plate, "wrong_count", res.WrongCount)
		g.notifier.Notify(notification.Alert{
			Severity: model.SeverityDanger,
			Title:    fmt.Sprintf("Wrong ticket code entered %d times", res.WrongCount),
			Body: fmt.Sprintf("Plate: %s | Session ID: %d | Wrong attempts: %d | Time: %s",
				session.Plate, session.ID, res.WrongCount, at.In(g.loc).Format("02/01/2006 15:04:05")),
		})
		return TicketOutcome{Result: TicketLocked, LockEngaged: true}, nil
	}

	metrics.TicketVerificationsTotal.WithLabelValues(TicketWrong.String()).Inc()
	remaining := g.threshold - res.WrongCount
	if remaining < 0 {
		remaining = 0
	}
	return TicketOutcome{Result: TicketWrong, Remaining: remaining}, nil
}
