package models

import "time"

// Donation atomically binds one wig to one approved request. The wig id
// is unique across donations; a wig is donated at most once.
type Donation struct {
	ID            int64     `db:"id" json:"id"`
	WigID         int64     `db:"wig_id" json:"wig_id"`
	RequestID     int64     `db:"request_id" json:"request_id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Note          string    `db:"note" json:"note"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DonationFilter constrains donation listing queries.
type DonationFilter struct {
	InstitutionID string
	RequestID     int64
	Page          int
	PageSize      int
}
