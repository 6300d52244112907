package models

// Status identifies a lifecycle state. Requests and institution analyses
// share the same registry; each keeps its own independent value.
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusUnderReview          Status = "UNDER_REVIEW"
	StatusApproved             Status = "APPROVED"
	StatusRejected             Status = "REJECTED"
	StatusCompleted            Status = "COMPLETED"
	StatusCancelledByRequester Status = "CANCELLED_BY_REQUESTER"
)

var statusNames = map[Status]string{
	StatusPending:              "Pending",
	StatusUnderReview:          "Under review",
	StatusApproved:             "Approved",
	StatusRejected:             "Rejected",
	StatusCompleted:            "Completed",
	StatusCancelledByRequester: "Cancelled by requester",
}

var terminalStatuses = map[Status]struct{}{
	StatusApproved:             {},
	StatusRejected:             {},
	StatusCompleted:            {},
	StatusCancelledByRequester: {},
}

// Statuses an institution may set on its own analysis. Completed and
// CancelledByRequester are reserved for the system.
var institutionSettable = map[Status]struct{}{
	StatusPending:     {},
	StatusUnderReview: {},
	StatusApproved:    {},
	StatusRejected:    {},
}

// DisplayName returns the human-readable name for a status, or the empty
// string when the status is unknown.
func (s Status) DisplayName() string {
	return statusNames[s]
}

// IsValid reports whether the status belongs to the registry.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether no further transition is permitted out of s.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsInstitutionSettable reports whether an institution may set s directly
// on one of its analyses.
func (s Status) IsInstitutionSettable() bool {
	_, ok := institutionSettable[s]
	return ok
}

// OpenStatuses lists the states a cascade cancellation applies to.
func OpenStatuses() []Status {
	return []Status{StatusPending, StatusUnderReview}
}

// AllStatuses lists every registry entry in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusUnderReview,
		StatusApproved,
		StatusRejected,
		StatusCompleted,
		StatusCancelledByRequester,
	}
}
