package handler

import "reconcile/internal/contact/models"

// IdentifyResponse is the HTTP response for POST /identify.
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

// ContactResponse is one settled cluster. The primaryContatctId spelling is
// part of the public contract and must not be corrected.
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// HealthResponse is the HTTP response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FromSummary converts a cluster summary to an HTTP response. Lists are never
// null in the JSON output.
func FromSummary(summary *models.Summary) *IdentifyResponse {
	resp := &IdentifyResponse{
		Contact: ContactResponse{
			PrimaryContactID:    summary.PrimaryID,
			Emails:              summary.Emails,
			PhoneNumbers:        summary.PhoneNumbers,
			SecondaryContactIDs: summary.SecondaryIDs,
		},
	}
	if resp.Contact.Emails == nil {
		resp.Contact.Emails = []string{}
	}
	if resp.Contact.PhoneNumbers == nil {
		resp.Contact.PhoneNumbers = []string{}
	}
	if resp.Contact.SecondaryContactIDs == nil {
		resp.Contact.SecondaryContactIDs = []int64{}
	}
	return resp
}
