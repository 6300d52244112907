package repository

import "errors"

// Sentinel errors surfaced by guarded workflow queries. Services map
// these onto the client-facing taxonomy.
var (
	// ErrDuplicateAnalysis means the (request, institution) pair already
	// holds an analysis; raised by the unique index, not a pre-check.
	ErrDuplicateAnalysis = errors.New("analysis already exists for this request and institution")

	// ErrRequestNotOpen means the request left {PENDING, UNDER_REVIEW}
	// before the operation could apply.
	ErrRequestNotOpen = errors.New("request is not in an open status")

	// ErrRequestDecided blocks deletion once any analysis reached a
	// terminal review outcome.
	ErrRequestDecided = errors.New("request has decided analyses")

	// Donate precondition failures, ordered as checked.
	ErrWigNotOwned        = errors.New("wig not owned by institution")
	ErrWigAlreadyDonated  = errors.New("wig already donated")
	ErrWigUnavailable     = errors.New("wig is not available")
	ErrRequestNotApproved = errors.New("request is not approved")

	// Revert guards.
	ErrDonationNotOwned   = errors.New("donation not owned by institution")
	ErrRevertWindowClosed = errors.New("donation too old to revert")
)
