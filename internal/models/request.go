package models

import "time"

// Request is a wig request submitted by a requester, backed by a medical
// evidence document. The overall status reflects requester cancellation,
// direct institution action, or the outcome of the donation step; the
// per-institution review states live in InstitutionAnalysis rows.
type Request struct {
	ID          int64      `db:"id" json:"id"`
	RequesterID string     `db:"requester_id" json:"requester_id"`
	Note        string     `db:"note" json:"note"`
	EvidenceRef string     `db:"evidence_ref" json:"evidence_ref"`
	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	RequesterID string
	Status      []Status
	Page        int
	PageSize    int
}

// CancelledAnalysisRef identifies an analysis closed by a request
// cancellation cascade, used for notification fan-out.
type CancelledAnalysisRef struct {
	AnalysisID    int64  `db:"id"`
	InstitutionID string `db:"institution_id"`
}
