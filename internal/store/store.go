package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-access-backend/internal/model"
)

// casRetries bounds compare-and-swap loops on the station lock row.
const casRetries = 5

// Store defines the interface for all database operations.
type Store interface {
	ClassifyPlate(ctx context.Context, plate string) (*ResidentMatch, error)
	ActiveResidentVehicles(ctx context.Context) ([]ActiveVehicle, error)
	GetResident(ctx context.Context, residentID int64) (*model.Resident, error)
	RecordResidentEntry(ctx context.Context, match ResidentMatch, plate string, at time.Time) error
	RecordResidentExit(ctx context.Context, residentID int64, plate string, at time.Time) error

	FindOpenSessionByTicket(ctx context.Context, ticketCode string) (*model.GuestSession, error)
	FindOpenSessionByPlate(ctx context.Context, plate string) (*model.GuestSession, error)
	OpenGuestSession(ctx context.Context, plate, ticketCode string, at time.Time) (*model.GuestSession, bool, error)
	CloseGuestSession(ctx context.Context, sessionID int64, at time.Time, fee int64) (*model.GuestSession, error)
	RecordWrongAttempt(ctx context.Context, attempt WrongAttempt) (AttemptResult, error)
	ListGuestSessions(ctx context.Context, filter GuestSessionFilter) ([]model.GuestSession, error)

	GetStationLock(ctx context.Context) (*model.StationLock, error)
	EngageStationLock(ctx context.Context, reason string, at time.Time) (*model.StationLock, error)
	ClearStationLock(ctx context.Context, at time.Time) (int64, error)

	ActiveBackupCodeHash(ctx context.Context, residentID int64) (string, error)
	ReplaceBackupCode(ctx context.Context, residentID int64, codeHash string) error
	FaceReference(ctx context.Context, residentID int64) ([]float64, error)
	SaveFaceReference(ctx context.Context, residentID int64, embedding []float64) error

	ListAuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error)
	DailyReport(ctx context.Context, from, to time.Time) (*DailyReport, error)
	SaveCapture(ctx context.Context, capture *model.GateCapture) error

	SaveNotification(ctx context.Context, n *model.AdminNotification) error
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context, severities []string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// forUpdate takes a row lock where the dialect has one. sqlite serializes writers instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// --- Plate directory and resident occupancy ---

// ClassifyPlate returns the resident owning plate, or nil when the plate is unregistered.
func (s *gormStore) ClassifyPlate(ctx context.Context, plate string) (*ResidentMatch, error) {
	var row struct {
		VehicleID  int64
		ResidentID int64
		Occupied   bool
		Status     string
	}
	res := s.db.WithContext(ctx).
		Table("resident_vehicles").
		Select("resident_vehicles.id AS vehicle_id, resident_vehicles.resident_id, resident_vehicles.occupied, residents.status").
		Joins("JOIN residents ON residents.id = resident_vehicles.resident_id").
		Where("resident_vehicles.plate = ?", plate).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to classify plate %s: %w", plate, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &ResidentMatch{
		VehicleID:  row.VehicleID,
		ResidentID: row.ResidentID,
		Occupied:   row.Occupied,
		Active:     row.Status == model.ResidentActive,
	}, nil
}

func (s *gormStore) GetResident(ctx context.Context, residentID int64) (*model.Resident, error) {
	var r model.Resident
	if err := s.db.WithContext(ctx).First(&r, residentID).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// RecordResidentEntry marks the vehicle inside and appends resident_in in one transaction.
func (s *gormStore) RecordResidentEntry(ctx context.Context, match ResidentMatch, plate string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ResidentVehicle{}).
			Where("id = ? AND occupied = ?", match.VehicleID, false).
			Updates(map[string]any{"occupied": true, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to set occupancy for vehicle %d: %w", match.VehicleID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOccupancyChanged
		}
		return appendEvent(tx, model.EventResidentIn, model.ActorResident, &match.ResidentID, nil, plate, at)
	})
}

// RecordResidentExit clears occupancy and appends resident_out in one transaction.
func (s *gormStore) RecordResidentExit(ctx context.Context, residentID int64, plate string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ResidentVehicle{}).
			Where("resident_id = ? AND plate = ? AND occupied = ?", residentID, plate, true).
			Updates(map[string]any{"occupied": false, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to clear occupancy for %s: %w", plate, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOccupancyChanged
		}
		return appendEvent(tx, model.EventResidentOut, model.ActorResident, &residentID, nil, plate, at)
	})
}

// ActiveResidentVehicles lists resident vehicles currently inside with the
// time of their latest resident_in event.
func (s *gormStore) ActiveResidentVehicles(ctx context.Context) ([]ActiveVehicle, error) {
	db := s.db.WithContext(ctx)

	var rows []ActiveVehicle
	err := db.Table("resident_vehicles").
		Select("resident_vehicles.id AS vehicle_id, resident_vehicles.resident_id, residents.full_name, resident_vehicles.plate").
		Joins("JOIN residents ON residents.id = resident_vehicles.resident_id").
		Where("resident_vehicles.occupied = ?", true).
		Order("resident_vehicles.plate").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active resident vehicles: %w", err)
	}

	for i := range rows {
		var last model.AuditEvent
		err := db.Where("kind = ? AND plate = ?", model.EventResidentIn, rows[i].Plate).
			Order("at DESC, id DESC").
			First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read last entry for %s: %w", rows[i].Plate, err)
		}
		at := last.At
		rows[i].EnteredAt = &at
	}
	return rows, nil
}

// appendEvent writes one audit row. It only ever runs inside the mutation's transaction.
func appendEvent(tx *gorm.DB, kind, actor string, residentID, sessionID *int64, plate string, at time.Time) error {
	event := model.AuditEvent{
		At:             at,
		Kind:           kind,
		Actor:          actor,
		ResidentID:     residentID,
		GuestSessionID: sessionID,
		Plate:          plate,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to append %s event for %s: %w", kind, plate, err)
	}
	return nil
}

// --- Guest sessions ---

func (s *gormStore) FindOpenSessionByTicket(ctx context.Context, ticketCode string) (*model.GuestSession, error) {
	var gs model.GuestSession
	err := s.db.WithContext(ctx).
		Where("ticket_code = ? AND status = ?", ticketCode, model.SessionOpen).
		Order("checkin_at DESC").
		First(&gs).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &gs, nil
}

func (s *gormStore) FindOpenSessionByPlate(ctx context.Context, plate string) (*model.GuestSession, error) {
	var gs model.GuestSession
	err := s.db.WithContext(ctx).
		Where("plate = ? AND status = ?", plate, model.SessionOpen).
		First(&gs).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &gs, nil
}

// OpenGuestSession creates an open session and appends guest_in. When another
// writer won the partial unique index race, the existing open session is
// returned with created set to false.
func (s *gormStore) OpenGuestSession(ctx context.Context, plate, ticketCode string, at time.Time) (*model.GuestSession, bool, error) {
	gs := model.GuestSession{
		Plate:      plate,
		TicketCode: ticketCode,
		CheckinAt:  at,
		Status:     model.SessionOpen,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&gs).Error; err != nil {
			return err
		}
		return appendEvent(tx, model.EventGuestIn, model.ActorGuest, nil, &gs.ID, plate, at)
	})
	if err == nil {
		return &gs, true, nil
	}

	existing, findErr := s.FindOpenSessionByPlate(ctx, plate)
	if findErr == nil {
		log.Printf("Open session for %s already exists (session %d); reusing it", plate, existing.ID)
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("failed to open guest session for %s: %w", plate, err)
}

// CloseGuestSession closes an open session, resets its attempt counter and
// appends guest_out. The station lock is re-checked inside the transaction.
func (s *gormStore) CloseGuestSession(ctx context.Context, sessionID int64, at time.Time, fee int64) (*model.GuestSession, error) {
	var closed model.GuestSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := readLock(tx)
		if err != nil {
			return err
		}
		if lock.Locked {
			return ErrStationLocked
		}

		res := tx.Model(&model.GuestSession{}).
			Where("id = ? AND status = ?", sessionID, model.SessionOpen).
			Updates(map[string]any{
				"status":      model.SessionClosed,
				"checkout_at": at,
				"fee":         fee,
				"updated_at":  at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to close session %d: %w", sessionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionClosed
		}

		if err := tx.Model(&model.TicketAttempt{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{"wrong_count": 0, "lock_expires_at": nil}).Error; err != nil {
			return fmt.Errorf("failed to reset attempts for session %d: %w", sessionID, err)
		}

		if err := tx.First(&closed, sessionID).Error; err != nil {
			return err
		}
		return appendEvent(tx, model.EventGuestOut, model.ActorGuest, nil, &closed.ID, closed.Plate, at)
	})
	if err != nil {
		return nil, err
	}
	return &closed, nil
}

// RecordWrongAttempt atomically increments the session's wrong-code counter.
// When the post-increment count reaches the threshold the station lock is
// engaged in the same transaction. Nothing is counted while the lock is engaged.
func (s *gormStore) RecordWrongAttempt(ctx context.Context, a WrongAttempt) (AttemptResult, error) {
	var result AttemptResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := readLock(tx)
		if err != nil {
			return err
		}
		if lock.Locked {
			result.Locked = true
			return nil
		}

		var open int64
		if err := tx.Model(&model.GuestSession{}).
			Where("id = ? AND status = ?", a.SessionID, model.SessionOpen).
			Count(&open).Error; err != nil {
			return err
		}
		if open == 0 {
			return ErrSessionClosed
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.TicketAttempt{SessionID: a.SessionID, LastAttemptAt: a.At}).Error; err != nil {
			return fmt.Errorf("failed to create attempt counter for session %d: %w", a.SessionID, err)
		}

		if err := tx.Model(&model.TicketAttempt{}).
			Where("session_id = ?", a.SessionID).
			Updates(map[string]any{
				"wrong_count":     gorm.Expr("wrong_count + 1"),
				"last_attempt_at": a.At,
			}).Error; err != nil {
			return fmt.Errorf("failed to increment attempts for session %d: %w", a.SessionID, err)
		}

		var counter model.TicketAttempt
		if err := tx.First(&counter, "session_id = ?", a.SessionID).Error; err != nil {
			return err
		}
		result.WrongCount = counter.WrongCount

		if counter.WrongCount < a.Threshold {
			return nil
		}

		expires := a.At.Add(a.Cooldown)
		if err := tx.Model(&model.TicketAttempt{}).
			Where("session_id = ?", a.SessionID).
			Update("lock_expires_at", expires).Error; err != nil {
			return err
		}
		if _, err := engageLock(tx, a.LockReason, a.At); err != nil {
			return err
		}
		result.LockEngaged = true
		result.LockExpiresAt = &expires
		return nil
	})
	if err != nil {
		return AttemptResult{}, err
	}
	return result, nil
}

// ListGuestSessions returns sessions newest first.
func (s *gormStore) ListGuestSessions(ctx context.Context, f GuestSessionFilter) ([]model.GuestSession, error) {
	q := s.db.WithContext(ctx).Model(&model.GuestSession{})
	if !f.From.IsZero() {
		q = q.Where("checkin_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("checkin_at < ?", f.To)
	}
	if f.Plate != "" {
		q = q.Where("plate LIKE ?", "%"+f.Plate+"%")
	}
	if f.TicketCode != "" {
		q = q.Where("ticket_code LIKE ?", "%"+f.TicketCode+"%")
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var sessions []model.GuestSession
	if err := q.Order("checkin_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// --- Station lock ---

func readLock(tx *gorm.DB) (*model.StationLock, error) {
	var lock model.StationLock
	if err := forUpdate(tx).First(&lock, model.StationLockID).Error; err != nil {
		return nil, fmt.Errorf("failed to read station lock: %w", err)
	}
	return &lock, nil
}

// engageLock sets the lock with a compare-and-swap on version. Engaging an
// engaged lock refreshes its reason and timestamp.
func engageLock(tx *gorm.DB, reason string, at time.Time) (*model.StationLock, error) {
	for i := 0; i < casRetries; i++ {
		cur, err := readLock(tx)
		if err != nil {
			return nil, err
		}
		res := tx.Model(&model.StationLock{}).
			Where("id = ? AND version = ?", model.StationLockID, cur.Version).
			Updates(map[string]any{
				"locked":    true,
				"reason":    reason,
				"locked_at": at,
				"version":   cur.Version + 1,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to engage station lock: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			cur.Locked = true
			cur.Reason = reason
			cur.LockedAt = &at
			cur.Version++
			return cur, nil
		}
	}
	return nil, ErrLockContention
}

// GetStationLock reads the lock row without taking a row lock.
func (s *gormStore) GetStationLock(ctx context.Context) (*model.StationLock, error) {
	var lock model.StationLock
	if err := s.db.WithContext(ctx).First(&lock, model.StationLockID).Error; err != nil {
		return nil, fmt.Errorf("failed to read station lock: %w", err)
	}
	return &lock, nil
}

func (s *gormStore) EngageStationLock(ctx context.Context, reason string, at time.Time) (*model.StationLock, error) {
	var lock *model.StationLock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		lock, err = engageLock(tx, reason, at)
		return err
	})
	return lock, err
}

// ClearStationLock unlocks the station and resets every non-zero attempt
// counter, locked or not. It returns the number of counters reset.
func (s *gormStore) ClearStationLock(ctx context.Context, at time.Time) (int64, error) {
	var reset int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cleared := false
		for i := 0; i < casRetries && !cleared; i++ {
			cur, err := readLock(tx)
			if err != nil {
				return err
			}
			res := tx.Model(&model.StationLock{}).
				Where("id = ? AND version = ?", model.StationLockID, cur.Version).
				Updates(map[string]any{
					"locked":      false,
					"unlocked_at": at,
					"version":     cur.Version + 1,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to clear station lock: %w", res.Error)
			}
			cleared = res.RowsAffected == 1
		}
		if !cleared {
			return ErrLockContention
		}

		res := tx.Model(&model.TicketAttempt{}).
			Where("wrong_count > 0 OR lock_expires_at IS NOT NULL").
			Updates(map[string]any{"wrong_count": 0, "lock_expires_at": nil})
		if res.Error != nil {
			return fmt.Errorf("failed to reset attempt counters: %w", res.Error)
		}
		reset = res.RowsAffected
		return nil
	})
	return reset, err
}

// --- Resident credentials ---

func (s *gormStore) ActiveBackupCodeHash(ctx context.Context, residentID int64) (string, error) {
	var code model.BackupCode
	err := s.db.WithContext(ctx).
		Where("resident_id = ? AND active = ?", residentID, true).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		return "", notFound(err)
	}
	return code.CodeHash, nil
}

// ReplaceBackupCode deactivates the resident's codes and stores a new active one.
func (s *gormStore) ReplaceBackupCode(ctx context.Context, residentID int64, codeHash string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.BackupCode{}).
			Where("resident_id = ? AND active = ?", residentID, true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate backup codes for resident %d: %w", residentID, err)
		}
		code := model.BackupCode{ResidentID: residentID, CodeHash: codeHash, Active: true}
		if err := tx.Create(&code).Error; err != nil {
			return fmt.Errorf("failed to store backup code for resident %d: %w", residentID, err)
		}
		return nil
	})
}

func (s *gormStore) FaceReference(ctx context.Context, residentID int64) ([]float64, error) {
	var ref model.FaceReference
	if err := s.db.WithContext(ctx).First(&ref, "resident_id = ?", residentID).Error; err != nil {
		return nil, notFound(err)
	}
	return ref.Embedding, nil
}

func (s *gormStore) SaveFaceReference(ctx context.Context, residentID int64, embedding []float64) error {
	ref := model.FaceReference{ResidentID: residentID, Embedding: embedding}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resident_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "updated_at"}),
	}).Create(&ref).Error
}

// --- Audit log, reports and captures ---

func (s *gormStore) ListAuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var events []model.AuditEvent
	if err := s.db.WithContext(ctx).Order("at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// DailyReport aggregates guests checked in and resident events within [from, to).
func (s *gormStore) DailyReport(ctx context.Context, from, to time.Time) (*DailyReport, error) {
	var report DailyReport
	db := s.db.WithContext(ctx)

	var guest struct {
		GuestCount   int64
		GuestRevenue int64
	}
	if err := db.Model(&model.GuestSession{}).
		Select("COUNT(*) AS guest_count, COALESCE(SUM(fee), 0) AS guest_revenue").
		Where("checkin_at >= ? AND checkin_at < ?", from, to).
		Scan(&guest).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate guest sessions: %w", err)
	}
	report.GuestCount = guest.GuestCount
	report.GuestRevenue = guest.GuestRevenue

	if err := db.Model(&model.AuditEvent{}).
		Where("at >= ? AND at < ? AND actor = ?", from, to, model.ActorResident).
		Count(&report.ResidentEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to count resident events: %w", err)
	}
	if err := db.Model(&model.AuditEvent{}).
		Where("at >= ? AND at < ? AND actor = ?", from, to, model.ActorGuest).
		Count(&report.GuestEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to count guest events: %w", err)
	}
	return &report, nil
}

func (s *gormStore) SaveCapture(ctx context.Context, capture *model.GateCapture) error {
	return s.db.WithContext(ctx).Create(capture).Error
}

// --- Notifications and subscriptions ---

func (s *gormStore) SaveNotification(ctx context.Context, n *model.AdminNotification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "min_severity"}),
	}).Create(sub).Error
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

// ListSubscriptions returns subscriptions whose minimum severity is one of severities.
func (s *gormStore) ListSubscriptions(ctx context.Context, severities []string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("min_severity IN ?", severities).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
