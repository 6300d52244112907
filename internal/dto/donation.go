package dto

// CreateDonationRequest finalizes a donation of one wig to one approved
// request.
type CreateDonationRequest struct {
	WigID     int64  `json:"wig_id" validate:"required,gt=0"`
	RequestID int64  `json:"request_id" validate:"required,gt=0"`
	Note      string `json:"note" validate:"max=2000"`
}
