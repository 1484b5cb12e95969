package models

import "time"

// AllocationStatus tracks the lifecycle of an allocation.
type AllocationStatus string

const (
	AllocationScheduled  AllocationStatus = "scheduled"
	AllocationNotified   AllocationStatus = "notified"
	AllocationReassigned AllocationStatus = "reassigned"
)

// Allocation assigns one invigilator (or nobody, when TBD) to a session.
type Allocation struct {
	ID            string           `db:"id" json:"id"`
	Date          string           `db:"alloc_date" json:"date"`
	Slot          string           `db:"slot" json:"slot"`
	ClassroomCode string           `db:"classroom_code" json:"classroomCode"`
	InvigilatorID *string          `db:"invigilator_id" json:"invigilatorId"`
	Status        AllocationStatus `db:"status" json:"status"`
	NotifiedAt    *time.Time       `db:"notified_at" json:"notifiedAt,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updatedAt"`
}

// IsTBD reports whether nobody has been assigned yet.
func (a Allocation) IsTBD() bool {
	return a.InvigilatorID == nil || *a.InvigilatorID == ""
}

// AllocationView is an allocation joined with its invigilator's directory
// entry.
type AllocationView struct {
	Allocation
	InvigilatorName        *string `db:"invigilator_name" json:"invigilatorName,omitempty"`
	InvigilatorEmail       *string `db:"invigilator_email" json:"invigilatorEmail,omitempty"`
	InvigilatorDepartment  *string `db:"invigilator_department" json:"invigilatorDepartment,omitempty"`
	InvigilatorDesignation *string `db:"invigilator_designation" json:"invigilatorDesignation,omitempty"`
}

// DaySummary aggregates the allocations stored for one date.
type DaySummary struct {
	Date       string `db:"alloc_date" json:"date"`
	Count      int    `db:"total" json:"count"`
	Unassigned int    `db:"unassigned" json:"unassigned"`
}
