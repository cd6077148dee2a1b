// Package validate implements the macro/v1 3-phase validation pipeline:
// structural → semantic → domain.
package validate

import (
	"fmt"

	"github.com/macrow/macrow/pkg/macro"
)

// ValidationError represents one error or warning from the validation pipeline.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "error",
	}
}

// ValidateFile runs the full 3-phase pipeline on a macro file.
func ValidateFile(path string) (*macro.Macro, []*ValidationError) {
	// Phase 1: Structural (strict YAML decode)
	m, err := macro.LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "failed to load: %s", err)}
	}
	return m, ValidateMacro(m)
}

// ValidateMacro runs phases 2+3 on an already-loaded macro.
func ValidateMacro(m *macro.Macro) []*ValidationError {
	var errs []*ValidationError
	errs = append(errs, validateSemantic(m)...)
	if HasErrors(errs) {
		return errs
	}
	errs = append(errs, validateDomain(m)...)
	return errs
}

// HasErrors reports whether any result carries error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// validateDomain applies the hand-coded macro rules: per-step payload checks,
// the flat-branch constraint, and workflow block pairing.
func validateDomain(m *macro.Macro) []*ValidationError {
	var errs []*ValidationError

	for i := range m.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		for _, msg := range m.Steps[i].Validate() {
			errs = append(errs, errorf("domain", path, "%s", msg))
		}
	}

	if _, err := macro.FindBlock(m.Steps); err != nil {
		errs = append(errs, errorf("domain", "steps", "%s", err))
	}

	return errs
}
