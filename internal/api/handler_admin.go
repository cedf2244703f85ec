package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gate-access-backend/internal/evidence"
	"gate-access-backend/internal/gate"
)

// GetStationLock returns the station lock state.
func (h *Handler) GetStationLock(c *gin.Context) {
	lock, err := h.engine.LockStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"locked":      lock.Locked,
		"reason":      lock.Reason,
		"locked_at":   lock.LockedAt,
		"unlocked_at": lock.UnlockedAt,
	})
}

// PostUnlock clears the station lock.
func (h *Handler) PostUnlock(c *gin.Context) {
	reset, err := h.engine.Unlock(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": false, "reset_counters": reset})
}

func residentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid resident ID"})
		return 0, false
	}
	return id, true
}

// PostResetBackupCode issues a new backup code. The plaintext is only ever returned here.
func (h *Handler) PostResetBackupCode(c *gin.Context) {
	id, ok := residentID(c)
	if !ok {
		return
	}
	code, err := h.engine.ResetBackupCode(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resident_id": id, "backup_code": code})
}

type faceReferenceRequest struct {
	Image     string    `json:"image"`
	Embedding []float64 `json:"embedding"`
}

// PutFaceReference enrols a resident face from an image or a precomputed embedding.
func (h *Handler) PutFaceReference(c *gin.Context) {
	id, ok := residentID(c)
	if !ok {
		return
	}
	var body faceReferenceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, bindError(err))
		return
	}

	if body.Image != "" {
		img, err := evidence.DecodeImage(body.Image)
		if err != nil {
			h.fail(c, err)
			return
		}
		err = h.engine.EnrollFace(c.Request.Context(), id, img)
		if err != nil {
			h.fail(c, err)
			return
		}
	} else if err := h.engine.SetFaceReference(c.Request.Context(), id, body.Embedding); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDailyReport aggregates one day of gate activity.
func (h *Handler) GetDailyReport(c *gin.Context) {
	day := c.Query("date")
	report, err := h.engine.DailyReport(c.Request.Context(), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "report": report})
}

// GetAuditEvents lists recent audit events.
func (h *Handler) GetAuditEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.engine.AuditEvents(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetGuestSessions lists guest sessions, newest first.
func (h *Handler) GetGuestSessions(c *gin.Context) {
	sessions, err := h.engine.GuestSessions(c.Request.Context(), gate.GuestSessionQuery{
		Date:       c.Query("date"),
		Plate:      c.Query("plate"),
		TicketCode: c.Query("ticket_code"),
		Status:     c.Query("status"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetActiveVehicles lists resident vehicles inside and open guest sessions.
func (h *Handler) GetActiveVehicles(c *gin.Context) {
	active, err := h.engine.ActiveVehicles(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, active)
}

// GetHealth reports whether the store answers.
func (h *Handler) GetHealth(c *gin.Context) {
	if _, err := h.engine.LockStatus(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
