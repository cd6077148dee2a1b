// Package executor runs individual macro steps against the vision and input
// backends, applying each step's error policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/input"
	"github.com/macrow/macrow/pkg/macro"
	"github.com/macrow/macrow/pkg/vars"
	"github.com/macrow/macrow/pkg/vision"
)

// Control-flow sentinels. These bypass the step error policy: they are
// requests, not failures.
var (
	// ErrSkipRow abandons the remaining steps of the current row and marks
	// it skipped.
	ErrSkipRow = errors.New("skip row requested")
	// ErrStopRequested ends the run at the next step boundary.
	ErrStopRequested = errors.New("stop requested")
)

// Status is the outcome of one step execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result describes one executed step.
type Result struct {
	StepID   string
	Kind     macro.Kind
	Status   Status
	Detail   string
	Found    *bool
	Match    *vision.Match
	Attempts int
	Duration time.Duration
}

func found(ok bool) *bool { return &ok }

// StepError wraps a handler failure with step identity.
type StepError struct {
	StepID string
	Label  string
	Kind   macro.Kind
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s): %v", e.Label, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Env is the per-row execution context: the variable binding plus the
// engine's pause/stop gate. All handler state flows through here, never
// through package globals.
type Env struct {
	Resolver *vars.Resolver
	RowIndex int // -1 in standalone mode
	Row      map[string]any

	// Gate is polled between steps inside branches and loop bodies. It
	// blocks while the run is paused and returns ErrStopRequested (or a
	// context error) when the run must end.
	Gate func(ctx context.Context) error

	// OnLoopIteration, if set, reports loop progress for fractional
	// step-index accounting.
	OnLoopIteration func(step *macro.Step, iteration, total int)
}

func (env *Env) resolve(s string) string {
	if env == nil || env.Resolver == nil {
		return s
	}
	return env.Resolver.Resolve(s)
}

func (env *Env) gate(ctx context.Context) error {
	if env != nil && env.Gate != nil {
		return env.Gate(ctx)
	}
	return ctx.Err()
}

type handlerFunc func(ctx context.Context, step *macro.Step, env *Env) (*Result, error)

// Executor dispatches steps to kind handlers.
type Executor struct {
	vision vision.Service
	input  input.Controller
	logger *zap.Logger

	// PollInterval is the wait between vision queries while polling.
	PollInterval time.Duration
	// RetryDelay is the fixed wait between retry attempts.
	RetryDelay time.Duration
	// WaitTimeout bounds wait-image and wait-text steps with no explicit
	// timeout.
	WaitTimeout time.Duration
	// ScreenshotDir receives screenshot step output when the step names no
	// directory.
	ScreenshotDir string

	handlers map[macro.Kind]handlerFunc
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds an executor over the given backends.
func New(vs vision.Service, in input.Controller, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		vision:        vs,
		input:         in,
		logger:        logger,
		PollInterval:  500 * time.Millisecond,
		RetryDelay:    time.Second,
		WaitTimeout:   10 * time.Second,
		ScreenshotDir: ".",
		sleep:         sleepCtx,
	}
	e.handlers = map[macro.Kind]handlerFunc{
		macro.KindClick:         e.execClick,
		macro.KindType:          e.execType,
		macro.KindWait:          e.execWait,
		macro.KindWaitImage:     e.execWaitImage,
		macro.KindWaitText:      e.execWaitText,
		macro.KindImageSearch:   e.execImageSearch,
		macro.KindTextSearch:    e.execTextSearch,
		macro.KindCondition:     e.execCondition,
		macro.KindLoop:          e.execLoop,
		macro.KindScreenshot:    e.execScreenshot,
		macro.KindExcelRowStart: e.execRowMarker,
		macro.KindExcelRowEnd:   e.execRowMarker,
	}
	return e
}

// Run executes one step under its error policy. Control-flow sentinels
// (ErrSkipRow, ErrStopRequested, context cancellation) propagate untouched;
// ordinary handler failures follow the step's on_error policy.
func (e *Executor) Run(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	if !step.IsEnabled() {
		return &Result{StepID: step.ID, Kind: step.Kind, Status: StatusSkipped, Detail: "disabled"}, nil
	}

	handler, ok := e.handlers[step.Kind]
	if !ok {
		return nil, &StepError{StepID: step.ID, Label: step.Label(), Kind: step.Kind,
			Err: fmt.Errorf("no handler for kind %q", step.Kind)}
	}

	maxAttempts := 1
	if step.Policy() == macro.PolicyRetry {
		maxAttempts = step.RetryCount + 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			e.logger.Warn("retrying step",
				zap.String("step", step.Label()),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(lastErr))
			if err := e.sleep(ctx, e.RetryDelay); err != nil {
				return nil, err
			}
		}

		res, err := handler(ctx, step, env)
		if err == nil {
			if res == nil {
				res = &Result{StepID: step.ID, Kind: step.Kind, Status: StatusSuccess}
			}
			res.Attempts = attempt
			res.Duration = time.Since(start)
			return res, nil
		}
		if isControl(err) {
			return nil, err
		}
		lastErr = err
	}

	wrapped := &StepError{StepID: step.ID, Label: step.Label(), Kind: step.Kind, Err: lastErr}
	if step.Policy() == macro.PolicyContinue {
		e.logger.Warn("step failed, continuing", zap.String("step", step.Label()), zap.Error(lastErr))
		return &Result{
			StepID:   step.ID,
			Kind:     step.Kind,
			Status:   StatusFailed,
			Detail:   wrapped.Error(),
			Attempts: maxAttempts,
			Duration: time.Since(start),
		}, nil
	}
	return nil, wrapped
}

// runSequence executes a linear branch or loop body, polling the gate
// between steps.
func (e *Executor) runSequence(ctx context.Context, steps []macro.Step, env *Env) error {
	for i := range steps {
		if err := env.gate(ctx); err != nil {
			return err
		}
		if _, err := e.Run(ctx, &steps[i], env); err != nil {
			return err
		}
	}
	return nil
}

// isControl reports whether err is a control-flow signal rather than a step
// failure.
func isControl(err error) bool {
	return errors.Is(err, ErrSkipRow) ||
		errors.Is(err, ErrStopRequested) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
