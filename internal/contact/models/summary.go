package models

import (
	"slices"

	pkgstrings "reconcile/pkg/platform/strings"
)

// Summary is the public projection of one cluster.
type Summary struct {
	PrimaryID    int64
	Emails       []string
	PhoneNumbers []string
	SecondaryIDs []int64
}

// Summarize projects a cluster's members into a Summary. The primary's own
// values come first; the rest follow in creation order with exact duplicates
// removed. If no member is marked primary the earliest-created one stands in.
// The input slice is not modified.
func Summarize(members []*Contact) Summary {
	ordered := slices.Clone(members)
	SortByCreation(ordered)

	primary := primaryOf(ordered)
	if primary == nil {
		return Summary{Emails: []string{}, PhoneNumbers: []string{}, SecondaryIDs: []int64{}}
	}

	emails := []string{primary.Email}
	phones := []string{primary.Phone}
	secondaryIDs := make([]int64, 0, len(ordered))
	for _, c := range ordered {
		if c.ID == primary.ID {
			continue
		}
		emails = append(emails, c.Email)
		phones = append(phones, c.Phone)
		secondaryIDs = append(secondaryIDs, c.ID)
	}

	return Summary{
		PrimaryID:    primary.ID,
		Emails:       pkgstrings.Dedupe(emails),
		PhoneNumbers: pkgstrings.Dedupe(phones),
		SecondaryIDs: secondaryIDs,
	}
}

func primaryOf(ordered []*Contact) *Contact {
	for _, c := range ordered {
		if c.IsPrimary() {
			return c
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	return ordered[0]
}
