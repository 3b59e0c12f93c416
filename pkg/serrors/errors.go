package serrors

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Base is an error with a stable machine-readable code. Codes are part of the
// public report contract and must not change between releases.
type Base struct {
	Code    string
	Message string
}

func (e *Base) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message string) *Base {
	return &Base{Code: code, Message: message}
}

// WithMessage returns a copy of the error carrying a more specific message
// while preserving the code.
func (e *Base) WithMessage(format string, args ...any) *Base {
	return &Base{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from an error, or UNKNOWN.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if b, ok := err.(*Base); ok {
		return b.Code
	}
	return "UNKNOWN"
}

type ValidationErrors map[string]string

// ProcessValidatorErrors flattens validator.ValidationErrors into a
// field -> message map keyed by struct field name.
func ProcessValidatorErrors(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fmt.Sprintf("failed on '%s' rule", fe.Tag())
	}
	return out
}
