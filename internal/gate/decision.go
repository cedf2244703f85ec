package gate

// Flows.
const (
	FlowResident = "resident"
	FlowGuest    = "guest"
)

// Decision codes.
const (
	CodeResidentIn       = "RESIDENT_IN"
	CodeResidentOut      = "RESIDENT_OUT"
	CodeResidentInactive = "RESIDENT_INACTIVE"
	CodeSecondFactor     = "SECOND_FACTOR_REQUIRED"
	CodeNeedBackupCode   = "NEED_BACKUP_CODE"
	CodeBackupMismatch   = "BACKUP_MISMATCH"
	CodeNotInside        = "NOT_INSIDE"
	CodeGuestIn          = "GUEST_IN"
	CodeGuestOut         = "GUEST_OUT"
	CodeTicketRequired   = "TICKET_REQUIRED"
	CodeTicketWrong      = "TICKET_WRONG"
	CodeSessionClosed    = "SESSION_CLOSED"
	CodeStationLocked    = "STATION_LOCKED"
)

// Decision is the engine's answer to a gate request.
type Decision struct {
	Accepted          bool   `json:"accepted"`
	Flow              string `json:"flow,omitempty"`
	Transition        string `json:"transition,omitempty"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	Plate             string `json:"plate,omitempty"`
	ResidentID        int64  `json:"resident_id,omitempty"`
	SessionID         int64  `json:"session_id,omitempty"`
	TicketCode        string `json:"ticket_code,omitempty"`
	Fee               *int64 `json:"fee,omitempty"`
	NeedTicketCode    bool   `json:"need_ticket_code"`
	NeedSecondFactor  bool   `json:"need_second_factor"`
	NeedBackupCode    bool   `json:"need_backup_code"`
	BackupMismatch    bool   `json:"backup_mismatch"`
	StationLocked     bool   `json:"station_locked"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}
