package models

// Event types emitted toward the notification collaborator. Delivery
// mechanics are out of scope; the workflow only guarantees emission.
const (
	EventRequestCancelled      = "request.cancelled"
	EventAnalysisStatusChanged = "analysis.status_changed"
	EventDonationCreated       = "donation.created"
)

// RequestCancelledEvent is emitted once per cascade-cancelled analysis
// plus once for the request owner.
type RequestCancelledEvent struct {
	RequestID     int64  `json:"request_id"`
	InstitutionID string `json:"institution_id,omitempty"`
}

// AnalysisStatusChangedEvent tells the request owner that an institution
// moved its analysis to a new state.
type AnalysisStatusChangedEvent struct {
	AnalysisID    int64  `json:"analysis_id"`
	RequestID     int64  `json:"request_id"`
	InstitutionID string `json:"institution_id"`
	NewStatus     Status `json:"new_status"`
}

// DonationCreatedEvent announces a finalized donation.
type DonationCreatedEvent struct {
	DonationID int64 `json:"donation_id"`
	RequestID  int64 `json:"request_id"`
}
