package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/model"
	"gate-access-backend/internal/store"
)

// StationLock is the gate-wide lock engaged after repeated wrong ticket codes.
// The state lives in the store; this type only adds logging and metrics.
type StationLock struct {
	store store.Store
	log   *slog.Logger
}

func newStationLock(s store.Store, logger *slog.Logger) *StationLock {
	return &StationLock{store: s, log: logger}
}

// IsLocked reports whether the lock is engaged.
func (l *StationLock) IsLocked(ctx context.Context) (bool, error) {
	lock, err := l.store.GetStationLock(ctx)
	if err != nil {
		return false, err
	}
	metrics.SetStationLocked(lock.Locked)
	return lock.Locked, nil
}

// Status returns the lock record.
func (l *StationLock) Status(ctx context.Context) (*model.StationLock, error) {
	lock, err := l.store.GetStationLock(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SetStationLocked(lock.Locked)
	return lock, nil
}

// Engage sets the lock. Engaging an engaged lock only refreshes its reason.
func (l *StationLock) Engage(ctx context.Context, reason string, at time.Time) error {
	if _, err := l.store.EngageStationLock(ctx, reason, at); err != nil {
		return fmt.Errorf("failed to engage station lock: %w", err)
	}
	metrics.SetStationLocked(true)
	l.log.Warn("station lock engaged", "reason", reason)
	return nil
}

// Clear releases the lock and resets every non-zero attempt counter.
func (l *StationLock) Clear(ctx context.Context, at time.Time) (int64, error) {
	reset, err := l.store.ClearStationLock(ctx, at)
	if err != nil {
		return 0, fmt.Errorf("failed to clear station lock: %w", err)
	}
	metrics.SetStationLocked(false)
	l.log.Info("station lock cleared", "reset_counters", reset)
	return reset, nil
}
