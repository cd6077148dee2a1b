// Package trace implements the engine's append-only JSONL run log.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventStateChange  EventType = "state_change"
	EventRowStart     EventType = "row_start"
	EventRowComplete  EventType = "row_complete"
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventProgress     EventType = "progress"
)

// StepStatus is the execution status of a step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
	StatusError   StepStatus = "error"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	runID string
	enc   *json.Encoder
	owned *os.File
}

// NewWriter creates a trace writer over an io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{w: w, runID: runID, enc: json.NewEncoder(w)}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.owned = f
	return tw, nil
}

// Close closes the underlying file if the writer opened it.
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.owned != nil {
		return tw.owned.Close()
	}
	return nil
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		Data:      data,
	}
	return tw.enc.Encode(evt)
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(macroName string, totalRows int, dryRun bool) error {
	return tw.Emit(EventRunStart, map[string]any{
		"macro":      macroName,
		"total_rows": totalRows,
		"dry_run":    dryRun,
	})
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(state string, completedRows int, duration time.Duration, failure string) error {
	data := map[string]any{
		"state":          state,
		"completed_rows": completedRows,
		"duration":       duration.String(),
	}
	if failure != "" {
		data["failure"] = failure
	}
	return tw.Emit(EventRunComplete, data)
}

// EmitStateChange emits a state_change event.
func (tw *Writer) EmitStateChange(from, to string) error {
	return tw.Emit(EventStateChange, map[string]any{
		"from": from,
		"to":   to,
	})
}

// EmitRowStart emits a row_start event.
func (tw *Writer) EmitRowStart(rowIndex int) error {
	return tw.Emit(EventRowStart, map[string]any{
		"row": rowIndex,
	})
}

// EmitRowComplete emits a row_complete event.
func (tw *Writer) EmitRowComplete(rowIndex int, status string) error {
	return tw.Emit(EventRowComplete, map[string]any{
		"row":    rowIndex,
		"status": status,
	})
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(stepID, stepKind, stepName string) error {
	data := map[string]any{
		"step_id": stepID,
		"kind":    stepKind,
	}
	if stepName != "" {
		data["name"] = stepName
	}
	return tw.Emit(EventStepStart, data)
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(stepID string, status StepStatus, duration time.Duration, detail string) error {
	data := map[string]any{
		"step_id":  stepID,
		"status":   string(status),
		"duration": duration.String(),
	}
	if detail != "" {
		data["detail"] = detail
	}
	return tw.Emit(EventStepComplete, data)
}

// EmitProgress emits a progress event with a 0..1 fraction.
func (tw *Writer) EmitProgress(fraction float64, completedRows, totalRows int) error {
	return tw.Emit(EventProgress, map[string]any{
		"fraction":       fraction,
		"completed_rows": completedRows,
		"total_rows":     totalRows,
	})
}
