package dto

// AddFacultyRequest registers one faculty member in the directory.
type AddFacultyRequest struct {
	Name        string `json:"name" validate:"required,max=150"`
	Email       string `json:"email" validate:"required,email"`
	Department  string `json:"department" validate:"omitempty,max=100"`
	Designation string `json:"designation" validate:"omitempty,max=100"`
	LoginID     string `json:"loginId" validate:"omitempty,max=64"`
}

// RemoveFacultyRequest deactivates a faculty member found by any one of the
// identifiers.
type RemoveFacultyRequest struct {
	ID      string `json:"id"`
	Email   string `json:"email" validate:"omitempty,email"`
	LoginID string `json:"loginId"`
}
