package models

import "time"

// Classroom is an examination hall identified by its upper-case code.
type Classroom struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Capacity  *int      `db:"capacity" json:"capacity,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
