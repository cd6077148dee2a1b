package macro

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a macro/v1 YAML document.
// Returns a structural error if the YAML contains unknown fields.
//
// Saved-macro persistence (format versioning, encryption) belongs to the
// editor; this loader only consumes plain documents.
func LoadFile(path string) (*Macro, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open macro: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a macro/v1 document from a reader.
func Load(r io.Reader) (*Macro, error) {
	var m Macro
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	normalizeWorkflowPair(&m)
	m.AssignIDs()
	return &m, nil
}

// normalizeWorkflowPair back-fills a missing pair id on a lone start/end
// marker pair so hand-written documents don't have to invent one.
func normalizeWorkflowPair(m *Macro) {
	var start, end *Step
	for i := range m.Steps {
		switch m.Steps[i].Kind {
		case KindExcelRowStart:
			if start == nil {
				start = &m.Steps[i]
			}
		case KindExcelRowEnd:
			if end == nil {
				end = &m.Steps[i]
			}
		}
	}
	if start == nil || end == nil {
		return
	}
	switch {
	case start.PairID == "" && end.PairID == "":
		pair := uuid.NewString()
		start.PairID = pair
		end.PairID = pair
	case start.PairID == "":
		start.PairID = end.PairID
	case end.PairID == "":
		end.PairID = start.PairID
	}
}
