package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/macrow/macrow/pkg/macro"
)

func validMacro() *macro.Macro {
	m := &macro.Macro{
		APIVersion: macro.APIVersionMacro,
		Name:       "test",
		Steps: []macro.Step{
			{Kind: macro.KindClick, X: 10, Y: 20},
			{Kind: macro.KindType, Text: "hello"},
		},
	}
	m.AssignIDs()
	return m
}

func TestValidateMacro_Valid(t *testing.T) {
	errs := ValidateMacro(validMacro())
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidateMacro_DomainErrors(t *testing.T) {
	m := validMacro()
	m.Steps = append(m.Steps, macro.Step{Kind: macro.KindImageSearch, Template: "x.png", Confidence: 2.0})
	errs := ValidateMacro(m)
	if !HasErrors(errs) {
		t.Fatal("expected domain errors for out-of-range confidence")
	}
	found := false
	for _, e := range errs {
		if e.Phase == "domain" {
			found = true
		}
	}
	if !found {
		t.Errorf("no domain-phase error among: %v", errs)
	}
}

func TestValidateMacro_UnknownKind(t *testing.T) {
	m := validMacro()
	m.Steps = append(m.Steps, macro.Step{Kind: "teleport"})
	errs := ValidateMacro(m)
	if !HasErrors(errs) {
		t.Fatal("expected errors for unknown kind")
	}
}

func TestValidateMacro_UnbalancedMarkers(t *testing.T) {
	m := validMacro()
	m.Steps = append(m.Steps, macro.Step{Kind: macro.KindExcelRowStart, PairID: "p"})
	errs := ValidateMacro(m)
	if !HasErrors(errs) {
		t.Fatal("expected error for unmatched row start")
	}
}

func TestValidateFile(t *testing.T) {
	doc := `
apiVersion: macro/v1
name: from disk
steps:
  - kind: click
    x: 5
    y: 5
`
	path := filepath.Join(t.TempDir(), "macro.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	m, errs := ValidateFile(path)
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if m == nil || m.Name != "from disk" {
		t.Fatalf("macro not loaded: %+v", m)
	}
}

func TestValidateFile_Structural(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.yaml")
	if err := os.WriteFile(path, []byte("steps: {not: a list}"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, errs := ValidateFile(path)
	if len(errs) == 0 || errs[0].Phase != "structural" {
		t.Fatalf("expected structural error, got %v", errs)
	}
}

func TestValidateFile_Samples(t *testing.T) {
	for _, name := range []string{"invoice-entry.yaml", "standalone-check.yaml"} {
		t.Run(name, func(t *testing.T) {
			m, errs := ValidateFile(filepath.Join("..", "..", "testdata", name))
			if HasErrors(errs) {
				t.Fatalf("sample macro invalid: %v", errs)
			}
			if m == nil || len(m.Steps) == 0 {
				t.Fatal("sample macro not loaded")
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	e := &ValidationError{Phase: "domain", Path: "steps[2]", Message: "bad", Severity: "error"}
	got := e.Error()
	want := "[domain] bad at steps[2]"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
