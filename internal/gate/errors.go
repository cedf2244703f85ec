package gate

import (
	"errors"
	"fmt"
)

// Input error codes.
const (
	CodePlateUnreadable       = "PLATE_UNREADABLE"
	CodeInvalidTicketFormat   = "INVALID_TICKET_FORMAT"
	CodeMissingField          = "MISSING_FIELD"
	CodeResidentPlateMismatch = "RESIDENT_PLATE_MISMATCH"
)

var (
	// ErrClassificationUnavailable means the plate directory could not be read.
	// Callers should retry; the engine never guesses a flow.
	ErrClassificationUnavailable = errors.New("plate classification unavailable")
	// ErrPersistence wraps storage failures that happen after a decision was reached.
	ErrPersistence = errors.New("persistence failure")
	// ErrResidentNotFound is returned by administrative operations on unknown residents.
	ErrResidentNotFound = errors.New("resident not found")
	// ErrFaceEncoderUnavailable is returned when face enrolment has no encoder to use.
	ErrFaceEncoderUnavailable = errors.New("face encoder unavailable")
)

// InputError rejects a request before any state is touched.
type InputError struct {
	Code    string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func inputError(code, format string, args ...any) *InputError {
	return &InputError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is an *InputError and returns it.
func IsInputError(err error) (*InputError, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
