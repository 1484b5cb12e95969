package models

import "time"

// Faculty is a member of staff who can be assigned invigilation duty.
type Faculty struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Email       string    `db:"email" json:"email"`
	Department  string    `db:"department" json:"department"`
	Designation string    `db:"designation" json:"designation"`
	LoginID     *string   `db:"login_id" json:"loginId,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// FacultyFilter narrows directory searches.
type FacultyFilter struct {
	Search string
	Active *bool
	Limit  int
}
