package dto

import "github.com/wigshare/wigshare-api/internal/models"

// SubmitRequestInput carries the fields of a new wig request. The
// evidence document arrives as a multipart upload and is passed along as
// raw bytes.
type SubmitRequestInput struct {
	Note             string `validate:"max=2000"`
	EvidenceFilename string `validate:"required"`
	EvidenceMIME     string
	Evidence         []byte `validate:"required"`
}

// UpdateRequestNoteRequest updates the requester's free-text note.
type UpdateRequestNoteRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

// UpdateRequestStatusRequest is the legacy direct status path.
type UpdateRequestStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=2000"`
}

// RequestQuery filters request listings.
type RequestQuery struct {
	Status   []models.Status
	Page     int
	PageSize int
}

// EvidenceLink is a signed, expiring download reference.
type EvidenceLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}
