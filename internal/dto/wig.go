package dto

// CreateWigRequest registers a wig in an institution's catalog.
type CreateWigRequest struct {
	HairType string `json:"hair_type" validate:"required,max=100"`
	Color    string `json:"color" validate:"required,max=100"`
	Length   string `json:"length" validate:"max=50"`
	Size     string `json:"size" validate:"max=50"`
}

// UpdateWigRequest edits descriptive attributes. Availability is not
// editable here; only the donation transaction flips it.
type UpdateWigRequest struct {
	HairType string `json:"hair_type" validate:"max=100"`
	Color    string `json:"color" validate:"max=100"`
	Length   string `json:"length" validate:"max=50"`
	Size     string `json:"size" validate:"max=50"`
}
