package service

import "fmt"

// InconsistentStateError identifies the contact whose link could not be
// resolved to a live primary. It is always wrapped in an
// invariant_violation domain error; reaching it means an earlier write broke
// the graph, so operators should look at the record rather than retry.
type InconsistentStateError struct {
	ContactID int64
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("contact %d has a dangling link", e.ContactID)
}
