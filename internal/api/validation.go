package api

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"gate-access-backend/internal/gate"
)

var registerOnce sync.Once

// registerValidators adds the gate tags to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("digits6", digits6)
		}
	})
}

func digits6(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// bindError turns a binding failure into an input error with a stable code.
func bindError(err error) *gate.InputError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "digits6" {
				return &gate.InputError{Code: gate.CodeInvalidTicketFormat, Message: fe.Field() + " must be 6 digits"}
			}
		}
		return &gate.InputError{Code: gate.CodeMissingField, Message: verrs[0].Field() + " is " + verrs[0].Tag()}
	}
	return &gate.InputError{Code: gate.CodeMissingField, Message: "invalid request"}
}
