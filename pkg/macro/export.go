package macro

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// macro/v1 Go types. Used by the semantic validation phase and exported by
// `macrow schema`.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false
	s := r.Reflect(&Macro{})
	s.ID = "https://github.com/macrow/macrow/schemas/macro-v1.json"
	s.Title = "Screen Automation Macro v1"
	s.Description = "Schema for macro/v1 YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal macro schema: %w", err)
	}
	return data, nil
}

// JSONSchema describes Duration as it appears on the wire: a Go duration
// string such as "500ms" or "1.5s", or a bare number of seconds.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Description: "Go duration string, e.g. \"500ms\" or \"1.5s\""},
			{Type: "number", Description: "seconds"},
		},
	}
}
