// Package gate decides what happens when a vehicle reaches the gate: resident
// entry and second-factor exit, guest ticketing, and the station lock.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"gate-access-backend/config"
	"gate-access-backend/internal/evidence"
	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/model"
	"gate-access-backend/internal/notification"
	"gate-access-backend/internal/plate"
	"gate-access-backend/internal/recognition"
	"gate-access-backend/internal/store"
)

// Deps are the engine's optional collaborators. Nil fields disable the capability.
type Deps struct {
	Plates   recognition.PlateReader
	Faces    recognition.FaceEncoder
	Evidence evidence.Store
	Notifier Notifier
}

// Engine is the gate decision engine.
type Engine struct {
	cfg      config.GateConfig
	store    store.Store
	plates   recognition.PlateReader
	evidence evidence.Store

	lock  *StationLock
	guard *Guard
	auth  *Authenticator

	plateLocks *keyedMutex
	loc        *time.Location
	log        *slog.Logger

	now     func() time.Time
	newCode func() (string, error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(notification.Alert) {}

// NewEngine builds an engine over s. cfg is expected to have defaults applied.
func NewEngine(cfg config.GateConfig, s store.Store, deps Deps, logger *slog.Logger) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid gate timezone %q: %w", cfg.Timezone, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gate")
	if deps.Evidence == nil {
		deps.Evidence = evidence.Nop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if cfg.RecognitionTimeout <= 0 {
		cfg.RecognitionTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	lock := newStationLock(s, logger)
	faceTTL := time.Duration(cfg.FaceCacheTTLSeconds) * time.Second
	return &Engine{
		cfg:      cfg,
		store:    s,
		plates:   deps.Plates,
		evidence: deps.Evidence,
		lock:     lock,
		guard: &Guard{
			store:     s,
			lock:      lock,
			notifier:  deps.Notifier,
			threshold: cfg.TicketAttemptThreshold,
			cooldown:  cfg.LockCooldown,
			unitRate:  cfg.FeeUnitRate,
			loc:       loc,
			log:       logger,
		},
		auth: &Authenticator{
			store:       s,
			faces:       deps.Faces,
			notifier:    deps.Notifier,
			threshold:   cfg.FaceMatchThreshold,
			timeout:     cfg.RecognitionTimeout,
			trustClient: cfg.TrustClientFaceMatch,
			backupLimit: cfg.BackupAttemptLimit,
			refs:        cache.New(faceTTL, 2*faceTTL),
			mismatches:  cache.New(time.Hour, 10*time.Minute),
			log:         logger,
		},
		plateLocks: newKeyedMutex(),
		loc:        loc,
		log:        logger,
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    NewCode,
	}, nil
}

// Location is the timezone used for report days.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// writeContext detaches a state mutation from the caller's cancellation.
func (e *Engine) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.WriteTimeout)
}

// HandleRecognition decides on a vehicle seen at the gate.
func (e *Engine) HandleRecognition(ctx context.Context, req RecognitionRequest) (*Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := e.readPlate(ctx, req)
	if p == "" {
		return nil, inputError(CodePlateUnreadable, "no plate could be read")
	}
	capture := e.saveEvidence(ctx, req.PlateImage, req.FaceImage, req.SceneImage)
	capture.Plate = p

	unlock := e.plateLocks.Lock(p)
	defer unlock()

	match, err := e.store.ClassifyPlate(ctx, p)
	if err != nil {
		e.log.Error("plate classification failed", "plate", p, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}

	wctx, cancel := e.writeContext(ctx)
	defer cancel()

	var d *Decision
	if match != nil {
		d, err = e.residentArrival(wctx, *match, p, capture)
	} else {
		d, err = e.guestArrival(wctx, p, req.TicketCode, capture)
	}
	if err != nil {
		return nil, err
	}
	metrics.DecisionsTotal.WithLabelValues(d.Flow, d.Code).Inc()
	return d, nil
}

// readPlate prefers the manual override and otherwise runs OCR within the recognition timeout.
func (e *Engine) readPlate(ctx context.Context, req RecognitionRequest) string {
	if p := plate.Normalize(req.PlateText); p != "" {
		return p
	}
	if e.plates == nil || len(req.PlateImage) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RecognitionTimeout)
	defer cancel()

	text, err := e.plates.ReadPlate(ctx, req.PlateImage)
	if err != nil {
		e.log.Warn("plate recognition failed", "error", err)
		return ""
	}
	return plate.Normalize(text)
}

// saveEvidence stores the captured images. Failures are logged and the key left empty.
func (e *Engine) saveEvidence(ctx context.Context, plateImg, faceImg, sceneImg []byte) *model.GateCapture {
	save := func(kind string, data []byte) string {
		if len(data) == 0 {
			return ""
		}
		key, err := e.evidence.Save(ctx, kind, data)
		if err != nil {
			e.log.Warn("failed to store capture image", "kind", kind, "error", err)
			return ""
		}
		return key
	}
	return &model.GateCapture{
		PlateImageKey: save("plate", plateImg),
		FaceImageKey:  save("face", faceImg),
		SceneImageKey: save("scene", sceneImg),
	}
}

func (e *Engine) recordCapture(ctx context.Context, c *model.GateCapture, mode string) {
	c.Mode = mode
	c.CreatedAt = e.now()
	if err := e.store.SaveCapture(ctx, c); err != nil {
		e.log.Error("failed to record gate capture", "plate", c.Plate, "error", err)
	}
}

func (e *Engine) residentArrival(ctx context.Context, m store.ResidentMatch, p string, capture *model.GateCapture) (*Decision, error) {
	d := &Decision{Flow: FlowResident, Plate: p, ResidentID: m.ResidentID}
	if m.Occupied {
		return secondFactorPrompt(d), nil
	}
	// Inactive residents are refused on entry only; a car already inside can still leave.
	if !m.Active {
		d.Code = CodeResidentInactive
		d.Message = "Resident account is inactive"
		return d, nil
	}

	err := e.store.RecordResidentEntry(ctx, m, p, e.now())
	if errors.Is(err, store.ErrOccupancyChanged) {
		return secondFactorPrompt(d), nil
	}
	if err != nil {
		return nil, persistence("record resident entry", err)
	}

	e.log.Info("resident entered", "resident_id", m.ResidentID, "plate", p)
	capture.ResidentID = &m.ResidentID
	e.recordCapture(ctx, capture, model.CaptureIn)

	d.Accepted = true
	d.Transition = model.EventResidentIn
	d.Code = CodeResidentIn
	d.Message = "Welcome home"
	return d, nil
}

func secondFactorPrompt(d *Decision) *Decision {
	d.Code = CodeSecondFactor
	d.NeedSecondFactor = true
	d.Message = "Vehicle is inside; confirm face or backup code to exit"
	return d
}

func (e *Engine) guestArrival(ctx context.Context, p, ticket string, capture *model.GateCapture) (*Decision, error) {
	session, err := e.findOpenSession(ctx, p, ticket)
	if err != nil {
		return nil, persistence("find guest session", err)
	}
	if session == nil {
		var created bool
		session, created, err = e.openSession(ctx, p)
		if err != nil {
			return nil, err
		}
		if created {
			capture.GuestSessionID = &session.ID
			e.recordCapture(ctx, capture, model.CaptureIn)
			return &Decision{
				Accepted:   true,
				Flow:       FlowGuest,
				Transition: model.EventGuestIn,
				Code:       CodeGuestIn,
				Message:    "Keep this ticket code to exit",
				Plate:      p,
				SessionID:  session.ID,
				TicketCode: session.TicketCode,
			}, nil
		}
	}
	return e.guestDeparture(ctx, session, ticket, capture)
}

// findOpenSession looks the session up by ticket code first, then by plate.
func (e *Engine) findOpenSession(ctx context.Context, p, ticket string) (*model.GuestSession, error) {
	if ticket != "" {
		s, err := e.store.FindOpenSessionByTicket(ctx, ticket)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	s, err := e.store.FindOpenSessionByPlate(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func (e *Engine) openSession(ctx context.Context, p string) (*model.GuestSession, bool, error) {
	code, err := e.newCode()
	if err != nil {
		return nil, false, err
	}
	s, created, err := e.store.OpenGuestSession(ctx, p, code, e.now())
	if err != nil {
		return nil, false, persistence("open guest session", err)
	}
	if created {
		e.log.Info("guest session opened", "session_id", s.ID, "plate", p)
	}
	return s, created, nil
}

func (e *Engine) guestDeparture(ctx context.Context, s *model.GuestSession, ticket string, capture *model.GateCapture) (*Decision, error) {
	d := &Decision{Flow: FlowGuest, Plate: s.Plate, SessionID: s.ID}

	locked, err := e.lock.IsLocked(ctx)
	if err != nil {
		return nil, persistence("read station lock", err)
	}
	if locked {
		return stationLocked(d), nil
	}
	if ticket == "" {
		d.Code = CodeTicketRequired
		d.NeedTicketCode = true
		d.Message = "Enter the 6-digit ticket code to exit"
		return d, nil
	}

	outcome, err := e.guard.Verify(ctx, s, ticket, e.now())
	if err != nil {
		return nil, err
	}
	switch outcome.Result {
	case TicketAccepted:
		capture.Plate = outcome.Session.Plate
		capture.GuestSessionID = &outcome.Session.ID
		e.recordCapture(ctx, capture, model.CaptureOut)
		fee := outcome.Fee
		d.Accepted = true
		d.Transition = model.EventGuestOut
		d.Code = CodeGuestOut
		d.Message = "Goodbye"
		d.TicketCode = outcome.Session.TicketCode
		d.Fee = &fee
	case TicketWrong:
		remaining := outcome.Remaining
		d.Code = CodeTicketWrong
		d.NeedTicketCode = true
		d.RemainingAttempts = &remaining
		d.Message = fmt.Sprintf("Wrong ticket code, %d attempts remaining", remaining)
	case TicketLocked:
		return stationLocked(d), nil
	case TicketSessionClosed:
		d.Code = CodeSessionClosed
		d.Message = "Guest session is already closed"
	}
	return d, nil
}

func stationLocked(d *Decision) *Decision {
	d.Code = CodeStationLocked
	d.StationLocked = true
	d.Message = "Station locked; contact the operator"
	return d
}

// AuthorizeResidentExit runs the second factor for a resident vehicle that is inside.
func (e *Engine) AuthorizeResidentExit(ctx context.Context, req SecondFactorRequest) (*Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := plate.Normalize(req.PlateText)
	face := e.auth.Encode(ctx, req.FaceImage)
	capture := e.saveEvidence(ctx, nil, req.FaceImage, nil)
	capture.Plate = p

	unlock := e.plateLocks.Lock(p)
	defer unlock()

	match, err := e.store.ClassifyPlate(ctx, p)
	if err != nil {
		e.log.Error("plate classification failed", "plate", p, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	if match == nil || match.ResidentID != req.ResidentID {
		return nil, inputError(CodeResidentPlateMismatch, "plate %s is not registered to resident %d", p, req.ResidentID)
	}

	wctx, cancel := e.writeContext(ctx)
	defer cancel()

	d, err := e.residentDeparture(wctx, *match, p, face, req, capture)
	if err != nil {
		return nil, err
	}
	metrics.DecisionsTotal.WithLabelValues(d.Flow, d.Code).Inc()
	return d, nil
}

func (e *Engine) residentDeparture(ctx context.Context, m store.ResidentMatch, p string, face []float64, req SecondFactorRequest, capture *model.GateCapture) (*Decision, error) {
	d := &Decision{Flow: FlowResident, Plate: p, ResidentID: m.ResidentID}
	if !m.Occupied {
		d.Code = CodeNotInside
		d.Message = "Vehicle is not inside"
		return d, nil
	}

	outcome, err := e.auth.Authorize(ctx, m.ResidentID, face, req.BackupCode, req.ClientFaceMatch)
	if err != nil {
		return nil, err
	}
	switch outcome.Result {
	case FactorNeedBackupCode:
		d.Code = CodeNeedBackupCode
		d.NeedBackupCode = true
		d.Message = "Face not recognised; enter the backup code"
		return d, nil
	case FactorBackupMismatch:
		d.Code = CodeBackupMismatch
		d.NeedBackupCode = true
		d.BackupMismatch = true
		d.Message = "Backup code does not match"
		return d, nil
	}

	err = e.store.RecordResidentExit(ctx, m.ResidentID, p, e.now())
	if errors.Is(err, store.ErrOccupancyChanged) {
		d.Code = CodeNotInside
		d.Message = "Vehicle is not inside"
		return d, nil
	}
	if err != nil {
		return nil, persistence("record resident exit", err)
	}

	e.log.Info("resident exited", "resident_id", m.ResidentID, "plate", p, "method", outcome.Method)
	capture.ResidentID = &m.ResidentID
	capture.UsedBackupCode = outcome.Method == MethodBackup
	e.recordCapture(ctx, capture, model.CaptureOut)

	d.Accepted = true
	d.Transition = model.EventResidentOut
	d.Code = CodeResidentOut
	d.Message = "Goodbye"
	return d, nil
}
