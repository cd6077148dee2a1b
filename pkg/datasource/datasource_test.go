package datasource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory([]string{"name", "amount"}, []map[string]any{
		{"name": "Acme", "amount": 120},
		{"name": "Globex", "amount": 7},
	})

	n, err := m.RowCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cols, err := m.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "amount"}, cols)

	row, err := m.Row(1)
	require.NoError(t, err)
	assert.Equal(t, "Globex", row["name"])

	st, err := m.Status(0)
	require.NoError(t, err)
	assert.Equal(t, "", st)

	require.NoError(t, m.SetStatus(0, "complete"))
	st, err = m.Status(0)
	require.NoError(t, err)
	assert.Equal(t, "complete", st)
}

func TestMemory_OutOfRange(t *testing.T) {
	m := NewMemory([]string{"a"}, []map[string]any{{"a": 1}})

	_, err := m.Row(5)
	var dsErr *Error
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, 5, dsErr.Index)

	assert.Error(t, m.SetStatus(-1, "x"))
}

func TestMemory_RowIsCopy(t *testing.T) {
	m := NewMemory([]string{"a"}, []map[string]any{{"a": 1}})
	row, err := m.Row(0)
	require.NoError(t, err)
	row["a"] = 99

	again, err := m.Row(0)
	require.NoError(t, err)
	assert.Equal(t, 1, again["a"])
}

func TestLoadYAML(t *testing.T) {
	doc := `
columns: [customer, amount]
rows:
  - {customer: Acme, amount: 120}
  - {customer: Globex, amount: 7}
statuses: ["complete", ""]
`
	path := filepath.Join(t.TempDir(), "rows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	f, err := LoadYAML(path)
	require.NoError(t, err)

	n, err := f.RowCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err := f.Status(0)
	require.NoError(t, err)
	assert.Equal(t, "complete", st)

	st, err = f.Status(1)
	require.NoError(t, err)
	assert.Equal(t, "", st)
}

func TestLoadYAML_StatusSurvivesReload(t *testing.T) {
	doc := `
columns: [customer]
rows:
  - {customer: Acme}
  - {customer: Globex}
`
	path := filepath.Join(t.TempDir(), "rows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	f, err := LoadYAML(path)
	require.NoError(t, err)
	require.NoError(t, f.SetStatus(1, "skipped"))

	// A fresh load sees the persisted status.
	again, err := LoadYAML(path)
	require.NoError(t, err)
	st, err := again.Status(1)
	require.NoError(t, err)
	assert.Equal(t, "skipped", st)
}

func TestLoadYAML_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rows:\n  - {a: 1}\n"), 0o644))

	_, err := LoadYAML(path)
	assert.Error(t, err, "rows without columns must fail")

	require.NoError(t, os.WriteFile(path, []byte("columns: [a]\nrows:\n  - {a: 1}\nstatuses: [x, y]\n"), 0o644))
	_, err = LoadYAML(path)
	assert.Error(t, err, "status count mismatch must fail")
}
