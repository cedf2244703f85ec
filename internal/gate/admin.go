package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gate-access-backend/internal/model"
	"gate-access-backend/internal/plate"
	"gate-access-backend/internal/store"
)

// CodeInvalidQuery rejects a malformed administrative query.
const CodeInvalidQuery = "INVALID_QUERY"

// GuestSessionQuery filters the guest session listing. Date is YYYY-MM-DD in the gate timezone.
type GuestSessionQuery struct {
	Date       string
	Plate      string
	TicketCode string
	Status     string
}

// ActiveVehicles lists what is currently inside: resident vehicles and open guest sessions.
type ActiveVehicles struct {
	Residents []store.ActiveVehicle `json:"residents"`
	Guests    []model.GuestSession  `json:"guests"`
}

// LockStatus returns the station lock record.
func (e *Engine) LockStatus(ctx context.Context) (*model.StationLock, error) {
	return e.lock.Status(ctx)
}

// Unlock clears the station lock and returns the number of attempt counters reset.
func (e *Engine) Unlock(ctx context.Context) (int64, error) {
	wctx, cancel := e.writeContext(ctx)
	defer cancel()
	return e.lock.Clear(wctx, e.now())
}

// ResetBackupCode issues a new backup code for residentID and returns it in
// plaintext. Only its hash is stored.
func (e *Engine) ResetBackupCode(ctx context.Context, residentID int64) (string, error) {
	if err := e.residentExists(ctx, residentID); err != nil {
		return "", err
	}
	code, err := e.newCode()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash backup code: %w", err)
	}

	wctx, cancel := e.writeContext(ctx)
	defer cancel()
	if err := e.store.ReplaceBackupCode(wctx, residentID, string(hash)); err != nil {
		return "", persistence("replace backup code", err)
	}
	e.log.Info("backup code reset", "resident_id", residentID)
	return code, nil
}

// SetFaceReference stores embedding as the face reference of residentID.
func (e *Engine) SetFaceReference(ctx context.Context, residentID int64, embedding []float64) error {
	if len(embedding) == 0 {
		return inputError(CodeMissingField, "embedding is required")
	}
	if err := e.residentExists(ctx, residentID); err != nil {
		return err
	}

	wctx, cancel := e.writeContext(ctx)
	defer cancel()
	if err := e.store.SaveFaceReference(wctx, residentID, embedding); err != nil {
		return persistence("save face reference", err)
	}
	e.auth.InvalidateReference(residentID)
	e.log.Info("face reference updated", "resident_id", residentID, "dimensions", len(embedding))
	return nil
}

// EnrollFace encodes image with the face encoder and stores the result as the reference.
func (e *Engine) EnrollFace(ctx context.Context, residentID int64, image []byte) error {
	if len(image) == 0 {
		return inputError(CodeMissingField, "face image is required")
	}
	if e.auth.faces == nil {
		return ErrFaceEncoderUnavailable
	}
	encodeCtx, cancel := context.WithTimeout(ctx, e.cfg.RecognitionTimeout)
	defer cancel()
	embedding, err := e.auth.faces.Encode(encodeCtx, image)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFaceEncoderUnavailable, err)
	}
	return e.SetFaceReference(ctx, residentID, embedding)
}

func (e *Engine) residentExists(ctx context.Context, residentID int64) error {
	_, err := e.store.GetResident(ctx, residentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrResidentNotFound
	}
	return err
}

// DailyReport aggregates one calendar day (YYYY-MM-DD) in the gate timezone.
func (e *Engine) DailyReport(ctx context.Context, day string) (*store.DailyReport, error) {
	from, to, err := e.dayBounds(day)
	if err != nil {
		return nil, err
	}
	return e.store.DailyReport(ctx, from, to)
}

// ActiveVehicles returns the vehicles currently inside the parking area.
func (e *Engine) ActiveVehicles(ctx context.Context) (*ActiveVehicles, error) {
	residents, err := e.store.ActiveResidentVehicles(ctx)
	if err != nil {
		return nil, err
	}
	guests, err := e.store.ListGuestSessions(ctx, store.GuestSessionFilter{Status: model.SessionOpen})
	if err != nil {
		return nil, err
	}
	return &ActiveVehicles{Residents: residents, Guests: guests}, nil
}

// AuditEvents lists the most recent audit events.
func (e *Engine) AuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	return e.store.ListAuditEvents(ctx, limit)
}

// GuestSessions lists guest sessions matching q, newest first.
func (e *Engine) GuestSessions(ctx context.Context, q GuestSessionQuery) ([]model.GuestSession, error) {
	var f store.GuestSessionFilter
	if q.Date != "" {
		from, to, err := e.dayBounds(q.Date)
		if err != nil {
			return nil, err
		}
		f.From, f.To = from, to
	}
	switch q.Status {
	case "", model.SessionOpen, model.SessionClosed:
		f.Status = q.Status
	default:
		return nil, inputError(CodeInvalidQuery, "status must be %q or %q", model.SessionOpen, model.SessionClosed)
	}
	f.Plate = plate.Normalize(q.Plate)
	f.TicketCode = q.TicketCode
	return e.store.ListGuestSessions(ctx, f)
}

// dayBounds returns the UTC bounds [from, to) of a local calendar day.
// An empty day means today.
func (e *Engine) dayBounds(day string) (time.Time, time.Time, error) {
	var start time.Time
	if day == "" {
		now := e.now().In(e.loc)
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	} else {
		d, err := time.ParseInLocation("2006-01-02", day, e.loc)
		if err != nil {
			return time.Time{}, time.Time{}, inputError(CodeInvalidQuery, "date must be YYYY-MM-DD")
		}
		start = d
	}
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}
