package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/macro"
	"github.com/macrow/macrow/pkg/vars"
	"github.com/macrow/macrow/pkg/vision"
)

func (e *Executor) execClick(_ context.Context, step *macro.Step, _ *Env) (*Result, error) {
	button := step.Button
	if button == "" {
		button = macro.ButtonLeft
	}
	clicks := step.Clicks
	if clicks < 1 {
		clicks = 1
	}
	if err := e.input.Click(step.X, step.Y, button, clicks); err != nil {
		return nil, fmt.Errorf("click at (%d, %d): %w", step.X, step.Y, err)
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Detail: fmt.Sprintf("clicked (%d, %d)", step.X, step.Y),
	}, nil
}

// execType types the resolved text. A trailing newline is sent as an enter
// key press so spreadsheet values can submit forms.
func (e *Executor) execType(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	text := env.resolve(step.Text)
	pressEnter := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")

	if step.Interval > 0 {
		for _, r := range text {
			if err := e.input.TypeText(string(r)); err != nil {
				return nil, fmt.Errorf("type text: %w", err)
			}
			if err := e.sleep(ctx, step.Interval.D()); err != nil {
				return nil, err
			}
		}
	} else if text != "" {
		if err := e.input.TypeText(text); err != nil {
			return nil, fmt.Errorf("type text: %w", err)
		}
	}
	if pressEnter {
		if err := e.input.KeyPress("enter"); err != nil {
			return nil, fmt.Errorf("press enter: %w", err)
		}
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Detail: fmt.Sprintf("typed %d chars", len(text)),
	}, nil
}

func (e *Executor) execWait(ctx context.Context, step *macro.Step, _ *Env) (*Result, error) {
	if err := e.sleep(ctx, step.Duration.D()); err != nil {
		return nil, err
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Detail: fmt.Sprintf("waited %s", step.Duration),
	}, nil
}

// pollUntilFound repeatedly runs find until it reports found or the timeout
// elapses. A timeout is a "not found" value, not an error.
func (e *Executor) pollUntilFound(ctx context.Context, timeout time.Duration, find func(context.Context) (vision.Match, error)) (vision.Match, error) {
	deadline := time.Now().Add(timeout)
	for {
		m, err := find(ctx)
		if err != nil {
			return vision.Match{}, err
		}
		if m.Found {
			return m, nil
		}
		if !time.Now().Add(e.PollInterval).Before(deadline) {
			return vision.Match{}, nil
		}
		if err := e.sleep(ctx, e.PollInterval); err != nil {
			return vision.Match{}, err
		}
	}
}

func (e *Executor) waitTimeout(step *macro.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout.D()
	}
	return e.WaitTimeout
}

func (e *Executor) execWaitImage(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	q := vision.ImageQuery{
		Template:   env.resolve(step.Template),
		Region:     step.Region,
		Confidence: step.Confidence,
		ScaleRange: step.ScaleRange,
	}
	timeout := e.waitTimeout(step)
	m, err := e.pollUntilFound(ctx, timeout, func(ctx context.Context) (vision.Match, error) {
		return e.vision.FindImage(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("wait for image %q: %w", q.Template, err)
	}
	if !m.Found {
		return nil, fmt.Errorf("image %q did not appear within %s", q.Template, timeout)
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Found: found(true), Match: &m,
		Detail: fmt.Sprintf("image appeared at (%d, %d)", m.Center.X, m.Center.Y),
	}, nil
}

// searchTarget resolves the text a text step looks for: an explicit
// search_text or the value of an excel_column reference. The result is
// folded to half-width before it reaches the backend.
func (e *Executor) searchTarget(step *macro.Step, env *Env) string {
	if step.ExcelColumn != "" {
		return vars.Normalize(env.resolve("${" + step.ExcelColumn + "}"))
	}
	return vars.Normalize(env.resolve(step.SearchText))
}

// findText runs one text lookup. Text the backend reports back is compared
// against the wanted text after the same half-width folding, so IME and OCR
// punctuation variants match each other.
func (e *Executor) findText(ctx context.Context, q vision.TextQuery) (vision.Match, error) {
	m, err := e.vision.FindText(ctx, q)
	if err != nil || !m.Found || m.Text == "" {
		return m, err
	}
	if !vars.TextMatches(m.Text, q.Text, q.ExactMatch) {
		return vision.Match{}, nil
	}
	return m, nil
}

func (e *Executor) execWaitText(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	target := e.searchTarget(step, env)
	q := vision.TextQuery{Text: target, Region: step.Region, ExactMatch: step.ExactMatch}
	timeout := e.waitTimeout(step)
	m, err := e.pollUntilFound(ctx, timeout, func(ctx context.Context) (vision.Match, error) {
		return e.findText(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("wait for text %q: %w", target, err)
	}
	if !m.Found {
		return nil, fmt.Errorf("text %q did not appear within %s", target, timeout)
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Found: found(true), Match: &m,
		Detail: fmt.Sprintf("text appeared at (%d, %d)", m.Center.X, m.Center.Y),
	}, nil
}

func (e *Executor) execImageSearch(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	q := vision.ImageQuery{
		Template:   env.resolve(step.Template),
		Region:     step.Region,
		Confidence: step.Confidence,
		ScaleRange: step.ScaleRange,
	}
	find := func(ctx context.Context) (vision.Match, error) {
		if step.Timeout > 0 {
			return e.pollUntilFound(ctx, step.Timeout.D(), func(ctx context.Context) (vision.Match, error) {
				return e.vision.FindImage(ctx, q)
			})
		}
		return e.vision.FindImage(ctx, q)
	}
	return e.runSearch(ctx, step, env, q.Template, find)
}

func (e *Executor) execTextSearch(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	target := e.searchTarget(step, env)
	q := vision.TextQuery{Text: target, Region: step.Region, ExactMatch: step.ExactMatch}
	find := func(ctx context.Context) (vision.Match, error) {
		if step.Timeout > 0 {
			return e.pollUntilFound(ctx, step.Timeout.D(), func(ctx context.Context) (vision.Match, error) {
				return e.findText(ctx, q)
			})
		}
		return e.findText(ctx, q)
	}
	return e.runSearch(ctx, step, env, target, find)
}

// runSearch executes the primary lookup, honoring an on_not_found retry
// reaction, then applies the matching reaction to the outcome.
func (e *Executor) runSearch(ctx context.Context, step *macro.Step, env *Env, what string, find func(context.Context) (vision.Match, error)) (*Result, error) {
	retries := 0
	if step.OnNotFound != nil && step.OnNotFound.Action == macro.ActRetry {
		retries = step.OnNotFound.Retries
	}

	var m vision.Match
	for attempt := 0; ; attempt++ {
		var err error
		m, err = find(ctx)
		if err != nil {
			return nil, fmt.Errorf("search for %q: %w", what, err)
		}
		if m.Found || attempt >= retries {
			break
		}
		e.logger.Debug("search retry", zap.String("target", what), zap.Int("attempt", attempt+1))
		if err := e.sleep(ctx, e.RetryDelay); err != nil {
			return nil, err
		}
	}

	res := &Result{StepID: step.ID, Kind: step.Kind, Found: found(m.Found)}
	if m.Found {
		res.Match = &m
		res.Status = StatusSuccess
		res.Detail = fmt.Sprintf("found %q at (%d, %d)", what, m.Center.X, m.Center.Y)
		if step.OnFound != nil {
			if err := e.react(ctx, step.OnFound, env, &m); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	if step.OnNotFound != nil && step.OnNotFound.Action != macro.ActRetry {
		if err := e.react(ctx, step.OnNotFound, env, nil); err != nil {
			return nil, err
		}
		res.Status = StatusSuccess
		res.Detail = fmt.Sprintf("%q not found, applied %s", what, step.OnNotFound.Action)
		return res, nil
	}
	return nil, fmt.Errorf("%q not found", what)
}

// react applies a reaction descriptor to a search outcome. Click-family
// actions need the match for coordinates.
func (e *Executor) react(_ context.Context, r *macro.Reaction, env *Env, m *vision.Match) error {
	switch r.Action {
	case macro.ActClick, macro.ActDoubleClick:
		if m == nil {
			return fmt.Errorf("reaction %s requires a match position", r.Action)
		}
		clicks := 1
		if r.Action == macro.ActDoubleClick {
			clicks = 2
		}
		x := m.Center.X + r.Offset.X
		y := m.Center.Y + r.Offset.Y
		if err := e.input.Click(x, y, macro.ButtonLeft, clicks); err != nil {
			return fmt.Errorf("reaction click at (%d, %d): %w", x, y, err)
		}
		return nil
	case macro.ActType:
		if err := e.input.TypeText(env.resolve(r.Text)); err != nil {
			return fmt.Errorf("reaction type: %w", err)
		}
		return nil
	case macro.ActContinue:
		return nil
	case macro.ActStop:
		return ErrStopRequested
	case macro.ActSkipRow:
		return ErrSkipRow
	case macro.ActRetry:
		// Handled by the search loop before reactions apply.
		return nil
	default:
		return fmt.Errorf("unknown reaction action %q", r.Action)
	}
}

func (e *Executor) execScreenshot(ctx context.Context, step *macro.Step, _ *Env) (*Result, error) {
	dir := step.Dir
	if dir == "" {
		dir = e.ScreenshotDir
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := e.vision.Capture(ctx, step.Region, path); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Detail: path,
	}, nil
}

// execRowMarker handles excel-row-start and excel-row-end. The engine strips
// the pair before handing steps to the executor, so reaching one here means
// the marker sits inside a branch or loop body.
func (e *Executor) execRowMarker(_ context.Context, step *macro.Step, _ *Env) (*Result, error) {
	return nil, fmt.Errorf("%s marker is only valid at the top level", step.Kind)
}
