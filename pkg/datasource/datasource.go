// Package datasource abstracts the tabular data a macro iterates over. Rows
// come from a spreadsheet in production; here the contract plus an in-memory
// implementation and a YAML-backed loader.
package datasource

import "fmt"

// Source provides row data and per-row completion status. Status writes
// must be durable immediately so an interrupted run can resume with
// incomplete_only.
type Source interface {
	// RowCount returns the number of data rows.
	RowCount() (int, error)
	// Row returns the named values of the row at index (0-based).
	Row(index int) (map[string]any, error)
	// Columns returns the column names in sheet order.
	Columns() ([]string, error)
	// Status returns the completion status of the row at index.
	Status(index int) (string, error)
	// SetStatus records the completion status of the row at index.
	SetStatus(index int, status string) error
}

// Error wraps a backend failure. Any Error from a Source aborts the whole
// run regardless of step error policy.
type Error struct {
	Op    string
	Index int
	Err   error
}

func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("datasource: %s row %d: %v", e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("datasource: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
