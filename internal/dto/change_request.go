package dto

// SubmitChangeRequest is sent by a faculty member against one of their
// allocations.
type SubmitChangeRequest struct {
	AllocationID string `json:"allocationId" validate:"required"`
	Type         string `json:"type" validate:"omitempty,oneof=change"`
	Reason       string `json:"reason" validate:"required,min=3,max=500"`
}

// ApproveChangeRequest optionally names the replacement invigilator the
// reviewer intends to assign.
type ApproveChangeRequest struct {
	ToFacultyID string `json:"toFacultyId" validate:"omitempty"`
}

// RejectChangeRequest carries an optional note for the requester.
type RejectChangeRequest struct {
	Note string `json:"note" validate:"omitempty,max=500"`
}
