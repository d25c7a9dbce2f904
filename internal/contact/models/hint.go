package models

import (
	dErrors "reconcile/pkg/domain-errors"
)

// Hint is the partial identity submitted for reconciliation. Empty fields are
// absent and never match anything.
type Hint struct {
	Email string
	Phone string
}

func (h Hint) IsEmpty() bool {
	return h.Email == "" && h.Phone == ""
}

// Validate rejects hints that carry no match key.
func (h Hint) Validate() error {
	if h.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "either email or phoneNumber must be provided")
	}
	return nil
}
