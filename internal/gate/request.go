package gate

import "gate-access-backend/internal/plate"

// RecognitionRequest is one camera event at the gate: a plate (as an image or
// a manual override) plus whatever evidence the station captured.
type RecognitionRequest struct {
	PlateImage []byte
	// PlateText overrides OCR when set.
	PlateText  string
	FaceImage  []byte
	SceneImage []byte
	TicketCode string
}

// Validate checks the request shape. An unreadable plate is only detected after OCR.
func (r RecognitionRequest) Validate() error {
	if r.TicketCode != "" && !isSixDigits(r.TicketCode) {
		return inputError(CodeInvalidTicketFormat, "ticket code must be 6 digits")
	}
	if len(r.PlateImage) == 0 && plate.Normalize(r.PlateText) == "" {
		return inputError(CodePlateUnreadable, "a plate image or plate text is required")
	}
	return nil
}

// SecondFactorRequest authorizes the exit of a resident vehicle that is inside.
type SecondFactorRequest struct {
	ResidentID int64
	PlateText  string
	FaceImage  []byte
	BackupCode string
	// ClientFaceMatch is an upstream face verdict, honoured only when trusted by configuration.
	ClientFaceMatch bool
}

// Validate checks the request shape.
func (r SecondFactorRequest) Validate() error {
	if r.ResidentID <= 0 {
		return inputError(CodeMissingField, "resident_id is required")
	}
	if plate.Normalize(r.PlateText) == "" {
		return inputError(CodePlateUnreadable, "plate text is required")
	}
	return nil
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
