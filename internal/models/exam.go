package models

import (
	"time"

	"github.com/lib/pq"
)

// Exam is one course paper sitting in one or more rooms during a slot.
type Exam struct {
	ID                string         `db:"id" json:"id"`
	Date              string         `db:"exam_date" json:"date"`
	Slot              string         `db:"slot" json:"slot"`
	ClassroomCodes    pq.StringArray `db:"classroom_codes" json:"classroomCodes"`
	Course            string         `db:"course" json:"course"`
	ExpectedHeadcount *int           `db:"expected_headcount" json:"expectedHeadcount,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// ExamSession is one distinct (slot, classroom) pair on a date, derived from
// exam rows.
type ExamSession struct {
	Slot          string `db:"slot" json:"slot"`
	ClassroomCode string `db:"classroom_code" json:"classroomCode"`
}
