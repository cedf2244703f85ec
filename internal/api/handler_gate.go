package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gate-access-backend/internal/evidence"
	"gate-access-backend/internal/gate"
)

type recognitionRequest struct {
	PlateImage      string `json:"plate_image"`
	PlateTextManual string `json:"plate_text_manual"`
	FaceImage       string `json:"face_image"`
	SceneImage      string `json:"scene_image"`
	GuestTicketCode string `json:"guest_ticket_code" binding:"omitempty,digits6"`
}

// PostRecognition handles a vehicle seen by the gate camera.
func (h *Handler) PostRecognition(c *gin.Context) {
	var body recognitionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, bindError(err))
		return
	}

	req := gate.RecognitionRequest{
		PlateText:  body.PlateTextManual,
		TicketCode: body.GuestTicketCode,
	}
	var err error
	if req.PlateImage, err = evidence.DecodeImage(body.PlateImage); err != nil {
		h.fail(c, err)
		return
	}
	if req.FaceImage, err = evidence.DecodeImage(body.FaceImage); err != nil {
		h.fail(c, err)
		return
	}
	if req.SceneImage, err = evidence.DecodeImage(body.SceneImage); err != nil {
		h.fail(c, err)
		return
	}

	decision, err := h.engine.HandleRecognition(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type secondFactorRequest struct {
	ResidentID int64  `json:"resident_id" binding:"required,gt=0"`
	PlateText  string `json:"plate_text" binding:"required"`
	FaceImage  string `json:"face_image"`
	BackupCode string `json:"backup_code"`
	FaceOK     bool   `json:"face_ok"`
}

// PostSecondFactor authorizes a resident vehicle to leave.
func (h *Handler) PostSecondFactor(c *gin.Context) {
	var body secondFactorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, bindError(err))
		return
	}

	face, err := evidence.DecodeImage(body.FaceImage)
	if err != nil {
		h.fail(c, err)
		return
	}

	decision, err := h.engine.AuthorizeResidentExit(c.Request.Context(), gate.SecondFactorRequest{
		ResidentID:      body.ResidentID,
		PlateText:       body.PlateText,
		FaceImage:       face,
		BackupCode:      body.BackupCode,
		ClientFaceMatch: body.FaceOK,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
