package models

import "time"

// ConstraintConfig is the singleton rule set read by every generation run.
type ConstraintConfig struct {
	MaxHoursPerDay  int        `db:"max_hours_per_day" json:"maxHoursPerDay"`
	NoSameDayRepeat bool       `db:"no_same_day_repeat" json:"noSameDayRepeat"`
	UpdatedBy       *string    `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
