package macro

import "fmt"

// Validate checks the step's kind-specific configuration and returns a list
// of problems. An empty list means the step is well formed. Structural
// concerns (unknown fields, wrong types) are caught earlier by the loader;
// these are the domain rules.
func (s *Step) Validate() []string {
	var errs []string

	switch s.Policy() {
	case PolicyStop, PolicyContinue, PolicyRetry:
	default:
		errs = append(errs, fmt.Sprintf("unknown error policy %q", s.OnError))
	}
	if s.RetryCount < 0 {
		errs = append(errs, "retry count must be non-negative")
	}

	switch s.Kind {
	case KindClick:
		if s.X < 0 || s.Y < 0 {
			errs = append(errs, "coordinates must be non-negative")
		}
		if s.Clicks < 0 {
			errs = append(errs, "click count must be non-negative")
		}
		if s.Button != "" && s.Button != ButtonLeft && s.Button != ButtonRight && s.Button != ButtonMiddle {
			errs = append(errs, fmt.Sprintf("unknown button %q", s.Button))
		}

	case KindType:
		if s.Text == "" {
			errs = append(errs, "text cannot be empty")
		}
		if s.Interval < 0 {
			errs = append(errs, "interval must be non-negative")
		}

	case KindWait:
		if s.Duration <= 0 {
			errs = append(errs, "wait duration must be positive")
		}

	case KindWaitImage:
		if s.Template == "" {
			errs = append(errs, "template path cannot be empty")
		}
		if s.Timeout < 0 {
			errs = append(errs, "timeout must be non-negative")
		}
		errs = append(errs, validateConfidence(s.Confidence)...)

	case KindWaitText:
		if s.SearchText == "" && s.ExcelColumn == "" {
			errs = append(errs, "either search text or excel column must be set")
		}
		if s.Timeout < 0 {
			errs = append(errs, "timeout must be non-negative")
		}
		errs = append(errs, validateConfidence(s.Confidence)...)

	case KindImageSearch:
		if s.Template == "" {
			errs = append(errs, "template path cannot be empty")
		}
		errs = append(errs, validateConfidence(s.Confidence)...)
		errs = append(errs, validateReaction("on_found", s.OnFound)...)
		errs = append(errs, validateReaction("on_not_found", s.OnNotFound)...)
		if len(s.ScaleRange) != 0 && len(s.ScaleRange) != 2 {
			errs = append(errs, "scale range must be [min, max]")
		}

	case KindTextSearch:
		if s.SearchText == "" && s.ExcelColumn == "" {
			errs = append(errs, "either search text or excel column must be set")
		}
		errs = append(errs, validateConfidence(s.Confidence)...)
		errs = append(errs, validateReaction("on_found", s.OnFound)...)
		errs = append(errs, validateReaction("on_not_found", s.OnNotFound)...)

	case KindCondition:
		if s.Cond == nil {
			errs = append(errs, "condition step requires a cond")
		} else {
			errs = append(errs, s.Cond.validate()...)
		}
		if len(s.Then) == 0 && len(s.Else) == 0 {
			errs = append(errs, "condition step requires a then or else branch")
		}
		errs = append(errs, validateBranch("then", s.Then)...)
		errs = append(errs, validateBranch("else", s.Else)...)

	case KindLoop:
		if s.While == nil && s.Count < 1 {
			errs = append(errs, "loop requires a count of at least 1 or a while condition")
		}
		if s.While != nil {
			errs = append(errs, s.While.validate()...)
		}
		if len(s.Body) == 0 {
			errs = append(errs, "loop body cannot be empty")
		}
		errs = append(errs, validateBranch("body", s.Body)...)

	case KindScreenshot:
		// Dir defaults at execution time; nothing to check.

	case KindExcelRowStart:
		switch s.RepeatMode {
		case "", RepeatAll, RepeatIncompleteOnly:
		case RepeatSpecificCount:
			if s.RepeatCount < 1 {
				errs = append(errs, "repeat count must be at least 1")
			}
		case RepeatRange:
			if s.StartRow < 0 {
				errs = append(errs, "start row must be non-negative")
			}
			if s.EndRow < s.StartRow {
				errs = append(errs, "end row must not precede start row")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown repeat mode %q", s.RepeatMode))
		}

	case KindExcelRowEnd:
		if s.PairID == "" {
			errs = append(errs, "row end is not linked to a row start (missing pair id)")
		}

	default:
		errs = append(errs, fmt.Sprintf("unknown step kind %q", s.Kind))
	}

	return errs
}

func validateConfidence(c float64) []string {
	if c < 0 || c > 1 {
		return []string{"confidence must be between 0 and 1"}
	}
	return nil
}

func validateReaction(field string, r *Reaction) []string {
	if r == nil {
		return nil
	}
	var errs []string
	switch r.Action {
	case ActClick, ActDoubleClick, ActContinue, ActStop, ActSkipRow:
	case ActType:
		if r.Text == "" {
			errs = append(errs, fmt.Sprintf("%s: type action requires text", field))
		}
	case ActRetry:
		if r.Retries < 1 {
			errs = append(errs, fmt.Sprintf("%s: retry action requires at least 1 retry", field))
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown action %q", field, r.Action))
	}
	return errs
}

// validateBranch enforces the flat-branch rule: condition and loop bodies may
// contain only plain action steps, never another condition, loop, or row
// marker.
func validateBranch(field string, steps []Step) []string {
	var errs []string
	for i := range steps {
		switch steps[i].Kind {
		case KindCondition, KindLoop:
			errs = append(errs, fmt.Sprintf("%s[%d]: nested %s steps are not supported", field, i, steps[i].Kind))
		case KindExcelRowStart, KindExcelRowEnd:
			errs = append(errs, fmt.Sprintf("%s[%d]: row markers cannot appear inside a branch", field, i))
		default:
			for _, e := range steps[i].Validate() {
				errs = append(errs, fmt.Sprintf("%s[%d]: %s", field, i, e))
			}
		}
	}
	return errs
}

func (c *Cond) validate() []string {
	var errs []string
	switch c.Kind {
	case CondImageExists:
		if c.Template == "" {
			errs = append(errs, "image-exists condition requires a template path")
		}
	case CondTextExists:
		if c.Text == "" {
			errs = append(errs, "text-exists condition requires text")
		}
	case CondValueCompare:
		if c.Expression == "" {
			errs = append(errs, "value-compare condition requires an expression")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown condition kind %q", c.Kind))
	}
	errs = append(errs, validateConfidence(c.Confidence)...)
	return errs
}
