package models

import "time"

// ContactUpdate is a partial update. Nil fields are left untouched; stores
// always refresh UpdatedAt.
type ContactUpdate struct {
	LinkedID   *int64
	Precedence *Precedence
}

// Demote turns an absorbed primary into a secondary of primaryID.
func Demote(primaryID int64) ContactUpdate {
	secondary := PrecedenceSecondary
	return ContactUpdate{LinkedID: &primaryID, Precedence: &secondary}
}

// Relink re-points a secondary at primaryID.
func Relink(primaryID int64) ContactUpdate {
	return ContactUpdate{LinkedID: &primaryID}
}

// Apply merges the update into c and stamps UpdatedAt.
func (u ContactUpdate) Apply(c *Contact, now time.Time) {
	if u.LinkedID != nil {
		linked := *u.LinkedID
		c.LinkedID = &linked
	}
	if u.Precedence != nil {
		c.Precedence = *u.Precedence
	}
	c.UpdatedAt = now
}
