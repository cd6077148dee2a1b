package datasource

import (
	"fmt"
	"sync"
)

// Memory is an in-memory Source. Tests and dry runs use it directly; the
// YAML loader fills one from a rows file.
type Memory struct {
	mu       sync.Mutex
	columns  []string
	rows     []map[string]any
	statuses []string
}

// NewMemory builds a Memory source. Column order is taken as given; rows may
// omit columns, which then resolve to nil.
func NewMemory(columns []string, rows []map[string]any) *Memory {
	return &Memory{
		columns:  columns,
		rows:     rows,
		statuses: make([]string, len(rows)),
	}
}

func (m *Memory) RowCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *Memory) Columns() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.columns))
	copy(out, m.columns)
	return out, nil
}

func (m *Memory) Row(index int) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.rows) {
		return nil, &Error{Op: "read", Index: index, Err: fmt.Errorf("index out of range (%d rows)", len(m.rows))}
	}
	out := make(map[string]any, len(m.rows[index]))
	for k, v := range m.rows[index] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Status(index int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.statuses) {
		return "", &Error{Op: "read status", Index: index, Err: fmt.Errorf("index out of range (%d rows)", len(m.statuses))}
	}
	return m.statuses[index], nil
}

func (m *Memory) SetStatus(index int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.statuses) {
		return &Error{Op: "write status", Index: index, Err: fmt.Errorf("index out of range (%d rows)", len(m.statuses))}
	}
	m.statuses[index] = status
	return nil
}
