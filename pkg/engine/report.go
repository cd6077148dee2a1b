package engine

import "time"

// RowReport is the final outcome of one data row.
type RowReport struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	// Err is the first error encountered in the row, empty on success.
	Err string `json:"error,omitempty"`
}

// Report summarizes a finished run.
type Report struct {
	RunID         string        `json:"run_id"`
	State         State         `json:"state"`
	TotalRows     int           `json:"total_rows"`
	CompletedRows int           `json:"completed_rows"`
	Rows          []RowReport   `json:"rows,omitempty"`
	Duration      time.Duration `json:"duration"`
	// Err carries the run-level failure, if any.
	Err string `json:"error,omitempty"`
}
