package models

import "time"

// ChangeRequestStatus is the review state of a change request.
type ChangeRequestStatus string

const (
	RequestPending  ChangeRequestStatus = "pending"
	RequestApproved ChangeRequestStatus = "approved"
	RequestRejected ChangeRequestStatus = "rejected"
)

// ChangeRequestTypeChange asks to be relieved of, or moved from, an
// allocation.
const ChangeRequestTypeChange = "change"

// ChangeRequest is a faculty member's ask to change one of their allocations.
type ChangeRequest struct {
	ID                   string              `db:"id" json:"id"`
	FacultyID            string              `db:"faculty_id" json:"facultyId"`
	AllocationID         string              `db:"allocation_id" json:"allocationId"`
	Type                 string              `db:"type" json:"type"`
	Reason               string              `db:"reason" json:"reason"`
	Status               ChangeRequestStatus `db:"status" json:"status"`
	ReplacementFacultyID *string             `db:"replacement_faculty_id" json:"replacementFacultyId,omitempty"`
	ReviewNote           *string             `db:"review_note" json:"reviewNote,omitempty"`
	ReviewedBy           *string             `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time          `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt            time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updatedAt"`
}

// ChangeRequestView adds the allocation and requester details shown to
// reviewers. Allocation columns are nil when the allocation was cleared.
type ChangeRequestView struct {
	ChangeRequest
	FacultyName             *string `db:"faculty_name" json:"facultyName,omitempty"`
	FacultyEmail            *string `db:"faculty_email" json:"facultyEmail,omitempty"`
	AllocationDate          *string `db:"alloc_date" json:"date,omitempty"`
	AllocationSlot          *string `db:"alloc_slot" json:"slot,omitempty"`
	AllocationClassroom     *string `db:"alloc_classroom_code" json:"classroomCode,omitempty"`
	AllocationInvigilatorID *string `db:"alloc_invigilator_id" json:"currentInvigilatorId,omitempty"`
}

// ChangeRequestFilter narrows admin listings.
type ChangeRequestFilter struct {
	Status   ChangeRequestStatus
	Page     int
	PageSize int
}
