// Package macro defines the macro/v1 step and macro definition types.
package macro

import (
	"fmt"

	"github.com/google/uuid"
)

// API version constant for macro/v1 documents.
const APIVersionMacro = "macro/v1"

// Kind enumerates the twelve macro step kinds.
type Kind string

const (
	KindClick         Kind = "click"
	KindType          Kind = "type"
	KindWait          Kind = "wait"
	KindWaitImage     Kind = "wait-image"
	KindWaitText      Kind = "wait-text"
	KindImageSearch   Kind = "image-search"
	KindTextSearch    Kind = "text-search"
	KindCondition     Kind = "condition"
	KindLoop          Kind = "loop"
	KindScreenshot    Kind = "screenshot"
	KindExcelRowStart Kind = "excel-row-start"
	KindExcelRowEnd   Kind = "excel-row-end"
)

// Kinds lists every step kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindClick, KindType, KindWait, KindWaitImage, KindWaitText,
		KindImageSearch, KindTextSearch, KindCondition, KindLoop,
		KindScreenshot, KindExcelRowStart, KindExcelRowEnd,
	}
}

// ErrorPolicy selects how a step failure is handled.
type ErrorPolicy string

const (
	PolicyStop     ErrorPolicy = "stop"
	PolicyContinue ErrorPolicy = "continue"
	PolicyRetry    ErrorPolicy = "retry"
)

// Button is a pointer button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// RepeatMode is the row-selection policy of an excel workflow block.
type RepeatMode string

const (
	RepeatAll            RepeatMode = "all"
	RepeatIncompleteOnly RepeatMode = "incomplete_only"
	RepeatSpecificCount  RepeatMode = "specific_count"
	RepeatRange          RepeatMode = "range"
)

// ReactionAction is the secondary action taken after an image/text search.
type ReactionAction string

const (
	ActClick       ReactionAction = "click"
	ActDoubleClick ReactionAction = "double-click"
	ActType        ReactionAction = "type"
	ActContinue    ReactionAction = "continue"
	ActStop        ReactionAction = "stop"
	ActSkipRow     ReactionAction = "skip-row"
	ActRetry       ReactionAction = "retry"
)

// CondKind selects what a condition step inspects.
type CondKind string

const (
	CondImageExists  CondKind = "image-exists"
	CondTextExists   CondKind = "text-exists"
	CondValueCompare CondKind = "value-compare"
)

// Point is a screen coordinate offset.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Region is a screen rectangle. A nil *Region means the whole screen.
type Region struct {
	X      int `yaml:"x"      json:"x"`
	Y      int `yaml:"y"      json:"y"`
	Width  int `yaml:"width"  json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Reaction describes the secondary action attached to an image/text search
// via on_found / on_not_found.
type Reaction struct {
	Action  ReactionAction `yaml:"action"            json:"action"`
	Offset  Point          `yaml:"offset,omitempty"  json:"offset,omitempty"`
	Text    string         `yaml:"text,omitempty"    json:"text,omitempty"`
	Retries int            `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// Cond is the predicate of a condition step or a loop's while clause.
type Cond struct {
	Kind       CondKind `yaml:"kind"                 json:"kind"`
	Template   string   `yaml:"template,omitempty"   json:"template,omitempty"`
	Text       string   `yaml:"text,omitempty"       json:"text,omitempty"`
	Region     *Region  `yaml:"region,omitempty"     json:"region,omitempty"`
	Confidence float64  `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	ExactMatch bool     `yaml:"exact_match,omitempty" json:"exact_match,omitempty"`
	// Expression is an expr-lang expression evaluated against the current
	// row binding, e.g. `amount > 1000 && status != "done"`.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Step is the universal step structure. Payload fields are populated based
// on Kind; kinds never share payload fields with conflicting meanings.
type Step struct {
	// Shared header
	ID         string      `yaml:"id,omitempty"          json:"id,omitempty"`
	Name       string      `yaml:"name,omitempty"        json:"name,omitempty"`
	Kind       Kind        `yaml:"kind"                  json:"kind"`
	Enabled    *bool       `yaml:"enabled,omitempty"     json:"enabled,omitempty"`
	OnError    ErrorPolicy `yaml:"on_error,omitempty"    json:"on_error,omitempty"`
	RetryCount int         `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`

	// click
	X      int    `yaml:"x,omitempty"      json:"x,omitempty"`
	Y      int    `yaml:"y,omitempty"      json:"y,omitempty"`
	Button Button `yaml:"button,omitempty" json:"button,omitempty"`
	Clicks int    `yaml:"clicks,omitempty" json:"clicks,omitempty"`

	// type
	Text     string   `yaml:"text,omitempty"     json:"text,omitempty"`
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`

	// wait
	Duration Duration `yaml:"duration,omitempty" json:"duration,omitempty"`

	// wait-image / image-search
	Template   string    `yaml:"template,omitempty"    json:"template,omitempty"`
	Region     *Region   `yaml:"region,omitempty"      json:"region,omitempty"`
	Confidence float64   `yaml:"confidence,omitempty"  json:"confidence,omitempty"`
	Timeout    Duration  `yaml:"timeout,omitempty"     json:"timeout,omitempty"`
	ScaleRange []float64 `yaml:"scale_range,omitempty" json:"scale_range,omitempty"`

	// wait-text / text-search
	SearchText  string `yaml:"search_text,omitempty"  json:"search_text,omitempty"`
	ExcelColumn string `yaml:"excel_column,omitempty" json:"excel_column,omitempty"`
	ExactMatch  bool   `yaml:"exact_match,omitempty"  json:"exact_match,omitempty"`

	// image-search / text-search reactions
	OnFound    *Reaction `yaml:"on_found,omitempty"     json:"on_found,omitempty"`
	OnNotFound *Reaction `yaml:"on_not_found,omitempty" json:"on_not_found,omitempty"`

	// condition
	Cond *Cond  `yaml:"cond,omitempty" json:"cond,omitempty"`
	Then []Step `yaml:"then,omitempty" json:"then,omitempty"`
	Else []Step `yaml:"else,omitempty" json:"else,omitempty"`

	// loop
	Count int    `yaml:"count,omitempty" json:"count,omitempty"`
	While *Cond  `yaml:"while,omitempty" json:"while,omitempty"`
	Body  []Step `yaml:"body,omitempty"  json:"body,omitempty"`

	// screenshot
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// excel-row-start / excel-row-end
	PairID           string     `yaml:"pair_id,omitempty"           json:"pair_id,omitempty"`
	RepeatMode       RepeatMode `yaml:"repeat_mode,omitempty"       json:"repeat_mode,omitempty"`
	RepeatCount      int        `yaml:"repeat_count,omitempty"      json:"repeat_count,omitempty"`
	StartRow         int        `yaml:"start_row,omitempty"         json:"start_row,omitempty"`
	EndRow           int        `yaml:"end_row,omitempty"           json:"end_row,omitempty"`
	CompletionStatus string     `yaml:"completion_status,omitempty" json:"completion_status,omitempty"`
}

// IsEnabled reports whether the step should execute. Enabled defaults to true
// when the field is absent from the document.
func (s *Step) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Label returns a human-readable identifier for logs and traces.
func (s *Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.ID != "" {
		return fmt.Sprintf("%s[%s]", s.Kind, s.ID)
	}
	return string(s.Kind)
}

// Policy returns the effective error policy (stop when unset).
func (s *Step) Policy() ErrorPolicy {
	if s.OnError == "" {
		return PolicyStop
	}
	return s.OnError
}

// Macro is the top-level macro/v1 document.
type Macro struct {
	APIVersion  string `yaml:"apiVersion"            json:"apiVersion"`
	ID          string `yaml:"id,omitempty"          json:"id,omitempty"`
	Name        string `yaml:"name"                  json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps"                 json:"steps"`
}

// AssignIDs fills in missing step and macro IDs. The editor normally assigns
// these; hand-written YAML usually omits them.
func (m *Macro) AssignIDs() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	assignStepIDs(m.Steps)
}

func assignStepIDs(steps []Step) {
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = uuid.NewString()
		}
		assignStepIDs(steps[i].Then)
		assignStepIDs(steps[i].Else)
		assignStepIDs(steps[i].Body)
	}
}
