package handler

import (
	"regexp"
	"strings"

	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
)

const (
	maxEmailLength = 320
	maxPhoneLength = 64
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IdentifyRequest is the HTTP request body for POST /identify. The phone may
// arrive as phoneNumber or phone; phoneNumber wins when both are set.
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
	Phone       *string `json:"phone"`

	// Parsed value (populated by Validate)
	hint models.Hint
}

// Validate trims and checks the request and builds the hint.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *IdentifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	email := trimmed(r.Email)
	phone := trimmed(r.PhoneNumber)
	if phone == "" {
		phone = trimmed(r.Phone)
	}

	// Size validation (fail fast)
	if len(email) > maxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	if len(phone) > maxPhoneLength {
		return dErrors.New(dErrors.CodeValidation, "phoneNumber is too long")
	}

	if email != "" && !emailPattern.MatchString(email) {
		return dErrors.New(dErrors.CodeValidation, "invalid email format")
	}

	hint := models.Hint{Email: email, Phone: phone}
	if err := hint.Validate(); err != nil {
		return err
	}
	r.hint = hint
	return nil
}

// Hint returns the validated hint.
func (r *IdentifyRequest) Hint() models.Hint {
	return r.hint
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
