package models

import (
	"slices"
	"time"
)

// Precedence marks a contact as the canonical record of its cluster or as a
// member linked to it.
type Precedence string

const (
	PrecedencePrimary   Precedence = "primary"
	PrecedenceSecondary Precedence = "secondary"
)

func (p Precedence) IsValid() bool {
	return p == PrecedencePrimary || p == PrecedenceSecondary
}

// Contact is one identity record. Email and Phone are exact match keys; the
// empty string means the value is absent.
//
// Invariants (for non-deleted records, after every identify):
//   - a primary has LinkedID == nil
//   - a secondary's LinkedID is the id of its cluster's primary, never another secondary
//   - ID and CreatedAt never change after Create
//   - precedence only ever moves primary -> secondary, once
type Contact struct {
	ID         int64
	Email      string
	Phone      string
	LinkedID   *int64
	Precedence Precedence
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

func (c *Contact) IsPrimary() bool {
	return c.Precedence == PrecedencePrimary
}

func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// MatchesAny reports whether the contact shares the hint's email or phone.
func (c *Contact) MatchesAny(h Hint) bool {
	if h.Email != "" && c.Email == h.Email {
		return true
	}
	return h.Phone != "" && c.Phone == h.Phone
}

// Clone returns a deep copy so callers can hand records across lock
// boundaries without sharing the pointer fields.
func (c *Contact) Clone() *Contact {
	cp := *c
	if c.LinkedID != nil {
		linked := *c.LinkedID
		cp.LinkedID = &linked
	}
	if c.DeletedAt != nil {
		deleted := *c.DeletedAt
		cp.DeletedAt = &deleted
	}
	return &cp
}

// NewPrimary builds an unsaved primary record for a hint nobody has seen.
func NewPrimary(h Hint) *Contact {
	return &Contact{
		Email:      h.Email,
		Phone:      h.Phone,
		Precedence: PrecedencePrimary,
	}
}

// NewSecondary builds an unsaved secondary carrying new information for the
// cluster anchored at primaryID.
func NewSecondary(h Hint, primaryID int64) *Contact {
	return &Contact{
		Email:      h.Email,
		Phone:      h.Phone,
		LinkedID:   &primaryID,
		Precedence: PrecedenceSecondary,
	}
}

// Less orders contacts by creation time, falling back to id when timestamps
// coincide.
func Less(a, b *Contact) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortByCreation sorts contacts in place, oldest first.
func SortByCreation(contacts []*Contact) {
	slices.SortStableFunc(contacts, func(a, b *Contact) int {
		switch {
		case Less(a, b):
			return -1
		case Less(b, a):
			return 1
		default:
			return 0
		}
	})
}

// Oldest returns the earliest-created contact, or nil for an empty slice.
func Oldest(contacts []*Contact) *Contact {
	var oldest *Contact
	for _, c := range contacts {
		if oldest == nil || Less(c, oldest) {
			oldest = c
		}
	}
	return oldest
}
