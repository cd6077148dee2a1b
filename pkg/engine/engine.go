// Package engine drives whole macro runs: the lifecycle state machine, data
// row iteration, pause/stop signaling and progress reporting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/datasource"
	"github.com/macrow/macrow/pkg/executor"
	"github.com/macrow/macrow/pkg/macro"
	"github.com/macrow/macrow/pkg/trace"
	"github.com/macrow/macrow/pkg/validate"
	"github.com/macrow/macrow/pkg/vars"
)

// ErrAlreadyRunning is returned by Run while another run is active.
var ErrAlreadyRunning = errors.New("a run is already active")

// Config wires a run together.
type Config struct {
	Macro     *macro.Macro
	Source    datasource.Source // required when the macro has a row block
	Executor  *executor.Executor
	Logger    *zap.Logger
	Trace     *trace.Writer // optional JSONL run log
	Observers []Observer

	// RowSettleDelay is the pause between consecutive rows so the target
	// application can settle. Defaults to 100ms.
	RowSettleDelay time.Duration
}

// Engine executes one macro run at a time.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	stopped bool
}

// New creates an idle engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RowSettleDelay == 0 {
		cfg.RowSettleDelay = 100 * time.Millisecond
	}
	e := &Engine{cfg: cfg, logger: cfg.Logger, state: StateIdle}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause suspends the run before the next step boundary. No-op unless
// running.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.setStateLocked(StatePaused)
	}
}

// Resume continues a paused run at the step where it stopped.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePaused {
		e.setStateLocked(StateRunning)
		e.cond.Broadcast()
	}
}

// TogglePause flips between running and paused. Hotkeys use this.
func (e *Engine) TogglePause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRunning:
		e.setStateLocked(StatePaused)
	case StatePaused:
		e.setStateLocked(StateRunning)
		e.cond.Broadcast()
	}
}

// Stop ends the run at the next step boundary. Steps already applied are
// not rolled back.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.terminal() {
		e.stopped = true
		e.cond.Broadcast()
	}
}

// setStateLocked transitions state and notifies observers. Caller holds mu.
func (e *Engine) setStateLocked(to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	if e.cfg.Trace != nil {
		_ = e.cfg.Trace.EmitStateChange(string(from), string(to))
	}
	for _, o := range e.cfg.Observers {
		o.StateChanged(from, to)
	}
}

func (e *Engine) setState(to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setStateLocked(to)
}

// gate blocks while paused and returns ErrStopRequested once Stop was
// called or the context ended. The executor polls it between steps.
func (e *Engine) gate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if e.stopped {
			return executor.ErrStopRequested
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.state != StatePaused {
			return nil
		}
		e.cond.Wait()
	}
}

// Run executes the macro to completion, blocking the calling goroutine.
// A second Run while one is active returns ErrAlreadyRunning.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if !e.state.terminal() {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.stopped = false
	e.setStateLocked(StatePreparing)
	e.mu.Unlock()

	// Wake the pause gate when the context ends.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
		case <-watchDone:
		}
	}()

	report := &Report{RunID: uuid.NewString(), State: StateFailed}
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
	}()

	if errPrep := e.prepare(); errPrep != nil {
		e.setState(StateFailed)
		report.Err = errPrep.Error()
		return report, errPrep
	}

	block, err := macro.FindBlock(e.cfg.Macro.Steps)
	if err != nil {
		e.setState(StateFailed)
		report.Err = err.Error()
		return report, err
	}

	e.setState(StateRunning)
	if e.cfg.Trace != nil {
		defer func() {
			_ = e.cfg.Trace.EmitRunComplete(string(e.State()), report.CompletedRows, time.Since(start), report.Err)
		}()
	}

	if block == nil {
		return e.runStandalone(ctx, report)
	}
	return e.runRows(ctx, block, report)
}

// prepare validates the macro before any execution begins.
func (e *Engine) prepare() error {
	if e.cfg.Macro == nil {
		return fmt.Errorf("no macro configured")
	}
	if e.cfg.Executor == nil {
		return fmt.Errorf("no executor configured")
	}
	if errs := validate.ValidateMacro(e.cfg.Macro); validate.HasErrors(errs) {
		return fmt.Errorf("macro failed validation: %s", errs[0].Error())
	}
	if e.cfg.Trace != nil {
		total := 0
		if e.cfg.Source != nil {
			if n, err := e.cfg.Source.RowCount(); err == nil {
				total = n
			}
		}
		_ = e.cfg.Trace.EmitRunStart(e.cfg.Macro.Name, total, false)
	}
	return nil
}

// runStandalone executes every top-level step once with an empty binding.
func (e *Engine) runStandalone(ctx context.Context, report *Report) (*Report, error) {
	steps := e.cfg.Macro.Steps
	total := max(sequenceWeight(steps), 1)
	done := 0.0
	env := &executor.Env{
		Resolver: vars.NewResolver(nil, e.warnUnresolved),
		RowIndex: -1,
		Gate:     e.gate,
		OnLoopIteration: func(_ *macro.Step, iteration, iterTotal int) {
			if iterTotal > 0 {
				e.emitProgress((done+float64(iteration)/float64(iterTotal))/total, 0, 0)
			}
		},
	}

	for i := range steps {
		e.emitProgress(done/total, 0, 0)
		if err := e.gate(ctx); err != nil {
			return e.finishSignal(report, err)
		}
		if err := e.runStep(ctx, &steps[i], env); err != nil {
			if isSignal(err) {
				return e.finishSignal(report, err)
			}
			report.Err = err.Error()
			e.setState(StateFailed)
			report.State = StateFailed
			return report, err
		}
		done += stepWeight(&steps[i])
	}

	e.emitProgress(1, 0, 0)
	e.setState(StateCompleted)
	report.State = StateCompleted
	return report, nil
}

// runRows executes the block body once per selected row, persisting each
// row's status immediately.
func (e *Engine) runRows(ctx context.Context, block *macro.Block, report *Report) (*Report, error) {
	if e.cfg.Source == nil {
		err := fmt.Errorf("macro has a row block but no data source is configured")
		e.setState(StateFailed)
		report.Err = err.Error()
		return report, err
	}

	total, err := e.cfg.Source.RowCount()
	if err != nil {
		return e.failData(report, err)
	}

	indices, err := e.selectRows(block, total)
	if err != nil {
		return e.failData(report, err)
	}
	// Progress is measured against the rows this run will actually visit.
	report.TotalRows = len(indices)
	body := block.Body(e.cfg.Macro.Steps)

	for n, idx := range indices {
		if n > 0 {
			if err := e.sleepSettle(ctx); err != nil {
				return e.finishSignal(report, err)
			}
		}
		if err := e.gate(ctx); err != nil {
			return e.finishSignal(report, err)
		}

		status, rowErr := e.runRow(ctx, idx, body, block, report)
		if rowErr != nil && isSignal(rowErr) {
			return e.finishSignal(report, rowErr)
		}
		var dsErr *datasource.Error
		if rowErr != nil && errors.As(rowErr, &dsErr) {
			return e.failData(report, rowErr)
		}

		if err := e.cfg.Source.SetStatus(idx, status); err != nil {
			return e.failData(report, err)
		}
		rr := RowReport{Index: idx, Status: status}
		if rowErr != nil {
			rr.Err = rowErr.Error()
		}
		report.Rows = append(report.Rows, rr)
		report.CompletedRows++

		if e.cfg.Trace != nil {
			_ = e.cfg.Trace.EmitRowComplete(idx, status)
		}
		for _, o := range e.cfg.Observers {
			o.RowCompleted(idx, status)
		}
		e.emitProgress(float64(report.CompletedRows)/float64(max(report.TotalRows, 1)), report.CompletedRows, report.TotalRows)
	}

	e.setState(StateCompleted)
	report.State = StateCompleted
	return report, nil
}

// runRow executes the block body against one row. The returned status is
// what gets persisted; a non-signal error marks the row failed without
// ending the run.
func (e *Engine) runRow(ctx context.Context, idx int, body []macro.Step, block *macro.Block, report *Report) (string, error) {
	row, err := e.cfg.Source.Row(idx)
	if err != nil {
		return macro.StatusFailed, err
	}
	if e.cfg.Trace != nil {
		_ = e.cfg.Trace.EmitRowStart(idx)
	}
	e.logger.Info("row started", zap.Int("row", idx))

	total := max(sequenceWeight(body), 1)
	done := 0.0
	env := &executor.Env{
		Resolver: vars.NewResolver(row, e.warnUnresolved),
		RowIndex: idx,
		Row:      row,
		Gate:     e.gate,
		OnLoopIteration: func(_ *macro.Step, iteration, iterTotal int) {
			if iterTotal > 0 {
				e.emitRowProgress(report, (done+float64(iteration)/float64(iterTotal))/total)
			}
		},
	}

	for i := range body {
		e.emitRowProgress(report, done/total)
		if err := e.gate(ctx); err != nil {
			return macro.StatusPending, err
		}
		if err := e.runStep(ctx, &body[i], env); err != nil {
			if errors.Is(err, executor.ErrSkipRow) {
				return macro.StatusSkipped, nil
			}
			if isSignal(err) {
				return macro.StatusPending, err
			}
			e.logger.Warn("row failed", zap.Int("row", idx), zap.Error(err))
			return macro.StatusFailed, err
		}
		done += stepWeight(&body[i])
	}
	return block.CompletionStatus, nil
}

// runStep executes one step with observer and trace bookkeeping.
func (e *Engine) runStep(ctx context.Context, step *macro.Step, env *executor.Env) error {
	for _, o := range e.cfg.Observers {
		o.StepStarted(step, env.RowIndex)
	}
	if e.cfg.Trace != nil {
		_ = e.cfg.Trace.EmitStepStart(step.ID, string(step.Kind), step.Name)
	}

	start := time.Now()
	res, err := e.cfg.Executor.Run(ctx, step, env)

	status := trace.StatusSuccess
	detail := ""
	if err != nil {
		status = trace.StatusError
		detail = err.Error()
	} else if res != nil {
		detail = res.Detail
		switch res.Status {
		case executor.StatusFailed:
			status = trace.StatusFailed
		case executor.StatusSkipped:
			status = trace.StatusSkipped
		}
	}
	if e.cfg.Trace != nil {
		_ = e.cfg.Trace.EmitStepComplete(step.ID, status, time.Since(start), detail)
	}
	for _, o := range e.cfg.Observers {
		o.StepCompleted(step, err == nil && (res == nil || res.Status != executor.StatusFailed))
	}
	return err
}

// selectRows computes the visiting order for the block's repeat mode.
func (e *Engine) selectRows(block *macro.Block, total int) ([]int, error) {
	switch block.RepeatMode {
	case macro.RepeatAll:
		return sequence(0, total-1), nil

	case macro.RepeatIncompleteOnly:
		var out []int
		for i := 0; i < total; i++ {
			st, err := e.cfg.Source.Status(i)
			if err != nil {
				return nil, err
			}
			if st != macro.StatusComplete {
				out = append(out, i)
			}
		}
		return out, nil

	case macro.RepeatSpecificCount:
		var out []int
		for i := 0; i < total && len(out) < block.RepeatCount; i++ {
			st, err := e.cfg.Source.Status(i)
			if err != nil {
				return nil, err
			}
			if st == macro.StatusPending {
				out = append(out, i)
			}
		}
		return out, nil

	case macro.RepeatRange:
		lo, hi := block.StartRow, block.EndRow
		if lo < 0 {
			lo = 0
		}
		if hi > total-1 {
			hi = total - 1
		}
		if lo > hi {
			return nil, nil
		}
		return sequence(lo, hi), nil

	default:
		return nil, fmt.Errorf("unknown repeat mode %q", block.RepeatMode)
	}
}

func sequence(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

// isSignal reports whether err asks the run itself to end rather than
// marking a step or row failure. Skip-row is resolved one level down and
// never surfaces here.
func isSignal(err error) bool {
	return errors.Is(err, executor.ErrStopRequested) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// stepWeight is how much of a run one step represents for progress
// accounting. A condition counts its longer branch so the total stays an
// upper bound whichever branch is taken.
func stepWeight(s *macro.Step) float64 {
	if s.Kind != macro.KindCondition {
		return 1
	}
	return 1 + max(sequenceWeight(s.Then), sequenceWeight(s.Else))
}

func sequenceWeight(steps []macro.Step) float64 {
	var w float64
	for i := range steps {
		w += stepWeight(&steps[i])
	}
	return w
}

// finishSignal resolves a stop or cancellation into the Stopped state.
func (e *Engine) finishSignal(report *Report, err error) (*Report, error) {
	e.logger.Info("run stopped", zap.Error(err))
	e.setState(StateStopped)
	report.State = StateStopped
	return report, nil
}

// failData ends the run on a data source failure. Row bookkeeping can no
// longer be trusted, so nothing else executes.
func (e *Engine) failData(report *Report, err error) (*Report, error) {
	e.logger.Error("data source failure", zap.Error(err))
	e.setState(StateFailed)
	report.State = StateFailed
	report.Err = err.Error()
	return report, err
}

func (e *Engine) sleepSettle(ctx context.Context) error {
	t := time.NewTimer(e.cfg.RowSettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) warnUnresolved(name string) {
	e.logger.Warn("unresolved variable reference", zap.String("name", name))
}

func (e *Engine) emitProgress(fraction float64, completed, total int) {
	if e.cfg.Trace != nil {
		_ = e.cfg.Trace.EmitProgress(fraction, completed, total)
	}
	for _, o := range e.cfg.Observers {
		o.Progress(fraction, completed, total)
	}
}

// emitRowProgress folds the in-row step fraction into overall progress.
func (e *Engine) emitRowProgress(report *Report, stepFraction float64) {
	total := max(report.TotalRows, 1)
	fraction := (float64(report.CompletedRows) + stepFraction) / float64(total)
	e.emitProgress(fraction, report.CompletedRows, report.TotalRows)
}
