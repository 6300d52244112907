package models

import "time"

// Audit action identifiers recorded for workflow mutations.
const (
	AuditActionLogin           = "auth.login"
	AuditActionRefresh         = "auth.refresh"
	AuditActionLogout          = "auth.logout"
	AuditActionRequestSubmit   = "request.submit"
	AuditActionRequestCancel   = "request.cancel"
	AuditActionRequestDelete   = "request.delete"
	AuditActionRequestStatus   = "request.status"
	AuditActionAnalysisClaim   = "analysis.claim"
	AuditActionAnalysisAdvance = "analysis.advance"
	AuditActionDonationCreate  = "donation.create"
	AuditActionDonationRevert  = "donation.revert"
)

// AuditLog is an append-only record of a mutating call.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
