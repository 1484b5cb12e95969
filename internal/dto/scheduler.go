package dto

import "github.com/noah-isme/invigilation-api/internal/models"

// GenerateResult is returned by generate and regenerate.
type GenerateResult struct {
	Date        string              `json:"date"`
	Allocations []models.Allocation `json:"allocations"`
	Count       int                 `json:"count"`
	Assigned    int                 `json:"assigned"`
	Unassigned  int                 `json:"unassigned"`
	Repaired    int                 `json:"repaired"`
	// Cleared is the number of rows removed first by regenerate.
	Cleared int `json:"cleared,omitempty"`
	// SkippedClassrooms lists exam rooms absent from, or inactive in, the
	// classroom roster. Their sessions are not allocated.
	SkippedClassrooms []string `json:"skippedClassrooms,omitempty"`
}

// ReassignRequest moves an allocation to another invigilator.
type ReassignRequest struct {
	ToFacultyID string `json:"toFacultyId" validate:"required"`
}

// ClearDayResult reports how many allocations a clear removed.
type ClearDayResult struct {
	Date    string `json:"date"`
	Deleted int64  `json:"deleted"`
}

// NotifyResult reports how many duty notifications were queued.
type NotifyResult struct {
	Date   string `json:"date"`
	Queued int    `json:"queued"`
}
