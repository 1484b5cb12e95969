package dto

// ImportResult summarises one roster upload.
type ImportResult struct {
	Kind     string     `json:"kind"`
	Format   string     `json:"format"`
	Rows     int        `json:"rows"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
	Dates    []string   `json:"dates,omitempty"`
}

// RowError points at a rejected input row. Row numbers are 1-based and count
// the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// UploadStatus reports which rosters are present.
type UploadStatus struct {
	Faculty      int             `json:"faculty"`
	Classrooms   int             `json:"classrooms"`
	Exams        int             `json:"exams"`
	Date         string          `json:"date,omitempty"`
	ExamsForDate *int            `json:"examsForDate,omitempty"`
	Uploaded     map[string]bool `json:"uploaded"`
}
