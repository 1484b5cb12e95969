package dto

// UpdateConstraintsRequest replaces the scheduling constraint set. Zero is
// accepted for maxHoursPerDay but generation refuses to run with it.
type UpdateConstraintsRequest struct {
	MaxHoursPerDay  *int  `json:"maxHoursPerDay" validate:"required,min=0,max=24"`
	NoSameDayRepeat *bool `json:"noSameDayRepeat" validate:"required"`
}
