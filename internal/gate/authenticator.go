package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/model"
	"gate-access-backend/internal/notification"
	"gate-access-backend/internal/recognition"
	"gate-access-backend/internal/store"
)

// FactorResult is the verdict of a resident second-factor check.
type FactorResult int

const (
	FactorAccepted FactorResult = iota
	FactorNeedBackupCode
	FactorBackupMismatch
)

// Second factor methods.
const (
	MethodFace   = "face"
	MethodBackup = "backup_code"
	MethodClient = "client_face"
	MethodNone   = "none"
)

// FactorOutcome is returned by Authenticator.Authorize.
type FactorOutcome struct {
	Result FactorResult
	Method string
	// Distance is the face distance when a comparison happened, otherwise +Inf.
	Distance float64
}

// Authenticator confirms a resident's identity before their vehicle leaves,
// by face match first and backup code second.
type Authenticator struct {
	store       store.Store
	faces       recognition.FaceEncoder
	notifier    Notifier
	threshold   float64
	timeout     time.Duration
	trustClient bool
	backupLimit int

	refs       *cache.Cache
	mismatches *cache.Cache
	log        *slog.Logger
}

// Encode turns a face image into an embedding. It returns nil when there is
// no image, no encoder or the encoder fails; the caller falls back to a backup code.
func (a *Authenticator) Encode(ctx context.Context, image []byte) []float64 {
	if len(image) == 0 || a.faces == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	embedding, err := a.faces.Encode(ctx, image)
	if err != nil {
		a.log.Warn("face encoding failed", "error", err)
		return nil
	}
	return embedding
}

// Authorize checks face (an embedding, may be nil) and backupCode for residentID.
func (a *Authenticator) Authorize(ctx context.Context, residentID int64, face []float64, backupCode string, clientFaceMatch bool) (FactorOutcome, error) {
	out := FactorOutcome{Distance: math.Inf(1)}

	if a.trustClient && clientFaceMatch {
		return a.accepted(residentID, MethodClient, out), nil
	}

	if len(face) > 0 {
		if ref := a.reference(ctx, residentID); ref != nil {
			out.Distance = Distance(face, ref)
			if out.Distance <= a.threshold {
				return a.accepted(residentID, MethodFace, out), nil
			}
			metrics.SecondFactorTotal.WithLabelValues(MethodFace, "mismatch").Inc()
			a.log.Info("face did not match", "resident_id", residentID, "distance", out.Distance)
		}
	}

	if backupCode == "" {
		metrics.SecondFactorTotal.WithLabelValues(MethodNone, "need_backup_code").Inc()
		out.Result = FactorNeedBackupCode
		out.Method = MethodNone
		return out, nil
	}

	hash, err := a.store.ActiveBackupCodeHash(ctx, residentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return FactorOutcome{}, persistence("read backup code", err)
	}
	if err == nil && bcrypt.CompareHashAndPassword([]byte(hash), []byte(backupCode)) == nil {
		return a.accepted(residentID, MethodBackup, out), nil
	}

	a.recordMismatch(residentID)
	metrics.SecondFactorTotal.WithLabelValues(MethodBackup, "mismatch").Inc()
	out.Result = FactorBackupMismatch
	out.Method = MethodBackup
	return out, nil
}

// InvalidateReference drops the cached face reference of residentID.
func (a *Authenticator) InvalidateReference(residentID int64) {
	a.refs.Delete(cacheKey(residentID))
}

func (a *Authenticator) accepted(residentID int64, method string, out FactorOutcome) FactorOutcome {
	a.mismatches.Delete(cacheKey(residentID))
	metrics.SecondFactorTotal.WithLabelValues(method, "accepted").Inc()
	out.Result = FactorAccepted
	out.Method = method
	return out
}

func (a *Authenticator) reference(ctx context.Context, residentID int64) []float64 {
	key := cacheKey(residentID)
	if ref, found := a.refs.Get(key); found {
		return ref.([]float64)
	}
	ref, err := a.store.FaceReference(ctx, residentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.log.Error("failed to load face reference", "resident_id", residentID, "error", err)
		}
		return nil
	}
	a.refs.SetDefault(key, ref)
	return ref
}

// recordMismatch counts backup code mismatches. Reaching the limit alerts operators but never locks.
func (a *Authenticator) recordMismatch(residentID int64) {
	if a.backupLimit <= 0 {
		return
	}
	key := cacheKey(residentID)
	_ = a.mismatches.Add(key, 0, cache.DefaultExpiration)
	n, err := a.mismatches.IncrementInt(key, 1)
	if err != nil {
		a.log.Error("failed to count backup code mismatch", "resident_id", residentID, "error", err)
		return
	}
	if n != a.backupLimit {
		return
	}
	a.log.Warn("backup code mismatch limit reached", "resident_id", residentID, "mismatches", n)
	a.notifier.Notify(notification.Alert{
		Severity: model.SeverityWarning,
		Title:    fmt.Sprintf("Wrong backup code entered %d times", n),
		Body:     fmt.Sprintf("Resident ID: %d | Wrong backup codes: %d", residentID, n),
	})
}

func cacheKey(residentID int64) string {
	return strconv.FormatInt(residentID, 10)
}

// Distance is the Euclidean distance between two embeddings.
// Embeddings of different or zero length are infinitely far apart.
func Distance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
