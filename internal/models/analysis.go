package models

import "time"

// InstitutionAnalysis is one institution's independent review of one
// request. At most one row exists per (request, institution) pair,
// enforced by a unique index.
type InstitutionAnalysis struct {
	ID            int64      `db:"id" json:"id"`
	RequestID     int64      `db:"request_id" json:"request_id"`
	InstitutionID string     `db:"institution_id" json:"institution_id"`
	Status        Status     `db:"status" json:"status"`
	Notes         string     `db:"notes" json:"notes"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// AnalysisFilter constrains analysis listing queries.
type AnalysisFilter struct {
	RequestID     int64
	InstitutionID string
	Status        []Status
}

// RequestAggregate summarises the review progress of one request. It is
// derived from the analysis rows on every read and never persisted.
type RequestAggregate struct {
	RequestID   int64          `json:"request_id"`
	Counts      map[Status]int `json:"counts"`
	Total       int            `json:"total"`
	HasAnalysis bool           `json:"has_analysis"`
}

// StatusCount is one GROUP BY bucket from the analysis table.
type StatusCount struct {
	Status Status `db:"status"`
	Count  int    `db:"count"`
}
