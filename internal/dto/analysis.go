package dto

// ClaimAnalysisRequest opts an institution into reviewing a request.
type ClaimAnalysisRequest struct {
	RequestID int64  `json:"request_id" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// AdvanceAnalysisRequest moves an analysis through its lifecycle.
type AdvanceAnalysisRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}
