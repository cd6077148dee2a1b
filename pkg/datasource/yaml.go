package datasource

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rowsFile is the on-disk shape accepted by LoadYAML:
//
//	columns: [customer, amount]
//	rows:
//	  - {customer: Acme, amount: 120}
//	  - {customer: Globex, amount: 7}
//	statuses: ["complete", ""]   # optional, for resuming
type rowsFile struct {
	Columns  []string         `yaml:"columns"`
	Rows     []map[string]any `yaml:"rows"`
	Statuses []string         `yaml:"statuses"`
}

// File is a YAML-backed Source. Status writes rewrite the file in place so
// completion survives a crash mid-run.
type File struct {
	*Memory
	path string
	doc  rowsFile
}

// LoadYAML reads a rows file into a File source.
func LoadYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "open", Index: -1, Err: err}
	}
	var doc rowsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Op: "parse", Index: -1, Err: err}
	}
	if len(doc.Columns) == 0 && len(doc.Rows) > 0 {
		return nil, &Error{Op: "parse", Index: -1, Err: fmt.Errorf("rows file %s has rows but no columns", path)}
	}
	if len(doc.Statuses) > 0 && len(doc.Statuses) != len(doc.Rows) {
		return nil, &Error{Op: "parse", Index: -1, Err: fmt.Errorf("rows file %s has %d statuses for %d rows", path, len(doc.Statuses), len(doc.Rows))}
	}

	f := &File{
		Memory: NewMemory(doc.Columns, doc.Rows),
		path:   path,
		doc:    doc,
	}
	for i, s := range doc.Statuses {
		if err := f.Memory.SetStatus(i, s); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// SetStatus records the status in memory and rewrites the backing file.
func (f *File) SetStatus(index int, status string) error {
	if err := f.Memory.SetStatus(index, status); err != nil {
		return err
	}
	n, err := f.Memory.RowCount()
	if err != nil {
		return err
	}
	statuses := make([]string, n)
	for i := range statuses {
		s, err := f.Memory.Status(i)
		if err != nil {
			return err
		}
		statuses[i] = s
	}
	f.doc.Statuses = statuses

	data, err := yaml.Marshal(f.doc)
	if err != nil {
		return &Error{Op: "write status", Index: index, Err: err}
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return &Error{Op: "write status", Index: index, Err: err}
	}
	return nil
}
