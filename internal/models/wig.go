package models

import "time"

// Wig is a donatable item owned by an institution. Availability flips to
// false exactly once, inside the donation transaction.
type Wig struct {
	ID            int64     `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Available     bool      `db:"available" json:"available"`
	HairType      string    `db:"hair_type" json:"hair_type"`
	Color         string    `db:"color" json:"color"`
	Length        string    `db:"length" json:"length"`
	Size          string    `db:"size" json:"size"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// WigFilter constrains wig listing queries.
type WigFilter struct {
	InstitutionID string
	Available     *bool
	Page          int
	PageSize      int
}
