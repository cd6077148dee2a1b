package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/macrow/macrow/pkg/macro"
	"github.com/macrow/macrow/pkg/vars"
	"github.com/macrow/macrow/pkg/vision"
)

// fakeVision returns scripted matches in call order, repeating the last one.
type fakeVision struct {
	matches []vision.Match
	err     error
	calls   int
	shots   []string
	texts   []string
}

func (f *fakeVision) next() vision.Match {
	i := f.calls
	f.calls++
	if i >= len(f.matches) {
		if len(f.matches) == 0 {
			return vision.Match{}
		}
		i = len(f.matches) - 1
	}
	return f.matches[i]
}

func (f *fakeVision) FindImage(_ context.Context, _ vision.ImageQuery) (vision.Match, error) {
	if f.err != nil {
		return vision.Match{}, f.err
	}
	return f.next(), nil
}

func (f *fakeVision) FindText(_ context.Context, q vision.TextQuery) (vision.Match, error) {
	if f.err != nil {
		return vision.Match{}, f.err
	}
	f.texts = append(f.texts, q.Text)
	return f.next(), nil
}

func (f *fakeVision) FindAllText(ctx context.Context, q vision.TextQuery) ([]vision.Match, error) {
	m, err := f.FindText(ctx, q)
	if err != nil {
		return nil, err
	}
	return []vision.Match{m}, nil
}

func (f *fakeVision) Capture(_ context.Context, _ *macro.Region, path string) error {
	f.shots = append(f.shots, path)
	return nil
}

// fakeInput records actions; fails the first failN calls.
type fakeInput struct {
	clicks []string
	typed  []string
	keys   []string
	failN  int
	calls  int
}

func (f *fakeInput) tryFail() error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("injected input failure")
	}
	return nil
}

func (f *fakeInput) Click(x, y int, button macro.Button, clicks int) error {
	if err := f.tryFail(); err != nil {
		return err
	}
	f.clicks = append(f.clicks, fmt.Sprintf("%d,%d,%s,%d", x, y, button, clicks))
	return nil
}

func (f *fakeInput) TypeText(text string) error {
	if err := f.tryFail(); err != nil {
		return err
	}
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeInput) KeyPress(key string, _ ...string) error {
	if err := f.tryFail(); err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	return nil
}

func newTestExecutor(fv *fakeVision, fi *fakeInput) *Executor {
	e := New(fv, fi, nil)
	e.PollInterval = time.Millisecond
	e.RetryDelay = 0
	e.WaitTimeout = 5 * time.Millisecond
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func env(row map[string]any) *Env {
	return &Env{Resolver: vars.NewResolver(row, nil), RowIndex: 0, Row: row}
}

func TestRun_Click(t *testing.T) {
	fi := &fakeInput{}
	e := newTestExecutor(&fakeVision{}, fi)

	res, err := e.Run(context.Background(), &macro.Step{Kind: macro.KindClick, X: 10, Y: 20}, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %v", res.Status)
	}
	if len(fi.clicks) != 1 || fi.clicks[0] != "10,20,left,1" {
		t.Errorf("clicks = %v", fi.clicks)
	}
}

func TestRun_DisabledStepSkipped(t *testing.T) {
	fi := &fakeInput{}
	e := newTestExecutor(&fakeVision{}, fi)
	off := false

	res, err := e.Run(context.Background(), &macro.Step{Kind: macro.KindClick, Enabled: &off}, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Status != StatusSkipped {
		t.Errorf("status = %v, want skipped", res.Status)
	}
	if len(fi.clicks) != 0 {
		t.Errorf("disabled step performed input: %v", fi.clicks)
	}
}

func TestRun_TypeResolvesVariables(t *testing.T) {
	fi := &fakeInput{}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{Kind: macro.KindType, Text: "hello ${name}"}
	if _, err := e.Run(context.Background(), step, env(map[string]any{"name": "Acme"})); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fi.typed) != 1 || fi.typed[0] != "hello Acme" {
		t.Errorf("typed = %v", fi.typed)
	}
}

func TestRun_TypeTrailingNewlinePressesEnter(t *testing.T) {
	fi := &fakeInput{}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{Kind: macro.KindType, Text: "value\n"}
	if _, err := e.Run(context.Background(), step, env(nil)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fi.typed) != 1 || fi.typed[0] != "value" {
		t.Errorf("typed = %v", fi.typed)
	}
	if len(fi.keys) != 1 || fi.keys[0] != "enter" {
		t.Errorf("keys = %v", fi.keys)
	}
}

func TestRun_RetryExactness(t *testing.T) {
	// A handler that always fails under retry with retry_count=N runs
	// exactly N+1 times before escalating.
	fi := &fakeInput{failN: 100}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{
		Kind: macro.KindClick, X: 1, Y: 1,
		OnError: macro.PolicyRetry, RetryCount: 3,
	}
	_, err := e.Run(context.Background(), step, env(nil))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if fi.calls != 4 {
		t.Errorf("handler invoked %d times, want 4", fi.calls)
	}
	var se *StepError
	if !errors.As(err, &se) {
		t.Errorf("error %v is not a StepError", err)
	}
}

func TestRun_RetrySucceedsMidway(t *testing.T) {
	fi := &fakeInput{failN: 2}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{
		Kind: macro.KindClick, X: 1, Y: 1,
		OnError: macro.PolicyRetry, RetryCount: 5,
	}
	res, err := e.Run(context.Background(), step, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestRun_ContinuePolicy(t *testing.T) {
	fi := &fakeInput{failN: 100}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{Kind: macro.KindClick, X: 1, Y: 1, OnError: macro.PolicyContinue}
	res, err := e.Run(context.Background(), step, env(nil))
	if err != nil {
		t.Fatalf("continue policy should swallow the failure, got %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %v, want failed", res.Status)
	}
}

func TestRun_SearchFoundClickReaction(t *testing.T) {
	fv := &fakeVision{matches: []vision.Match{{Found: true, Center: macro.Point{X: 50, Y: 60}}}}
	fi := &fakeInput{}
	e := newTestExecutor(fv, fi)

	step := &macro.Step{
		Kind:     macro.KindImageSearch,
		Template: "button.png",
		OnFound:  &macro.Reaction{Action: macro.ActClick, Offset: macro.Point{X: 5, Y: -5}},
	}
	res, err := e.Run(context.Background(), step, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("expected found result")
	}
	if len(fi.clicks) != 1 || fi.clicks[0] != "55,55,left,1" {
		t.Errorf("clicks = %v", fi.clicks)
	}
}

func TestRun_SearchNotFoundSkipRow(t *testing.T) {
	e := newTestExecutor(&fakeVision{}, &fakeInput{})

	step := &macro.Step{
		Kind:       macro.KindImageSearch,
		Template:   "missing.png",
		OnNotFound: &macro.Reaction{Action: macro.ActSkipRow},
	}
	_, err := e.Run(context.Background(), step, env(nil))
	if !errors.Is(err, ErrSkipRow) {
		t.Fatalf("err = %v, want ErrSkipRow", err)
	}
}

func TestRun_SearchNotFoundStop(t *testing.T) {
	e := newTestExecutor(&fakeVision{}, &fakeInput{})

	step := &macro.Step{
		Kind:       macro.KindTextSearch,
		SearchText: "gone",
		OnNotFound: &macro.Reaction{Action: macro.ActStop},
	}
	_, err := e.Run(context.Background(), step, env(nil))
	if !errors.Is(err, ErrStopRequested) {
		t.Fatalf("err = %v, want ErrStopRequested", err)
	}
}

func TestRun_SearchNotFoundNoReactionEscalates(t *testing.T) {
	e := newTestExecutor(&fakeVision{}, &fakeInput{})

	step := &macro.Step{Kind: macro.KindImageSearch, Template: "missing.png"}
	_, err := e.Run(context.Background(), step, env(nil))
	if err == nil {
		t.Fatal("expected not-found escalation")
	}
}

func TestRun_SearchRetryReaction(t *testing.T) {
	// Found on the third lookup; the on_not_found retry reaction re-runs
	// the primary search.
	fv := &fakeVision{matches: []vision.Match{{}, {}, {Found: true, Center: macro.Point{X: 1, Y: 2}}}}
	e := newTestExecutor(fv, &fakeInput{})

	step := &macro.Step{
		Kind:       macro.KindImageSearch,
		Template:   "slow.png",
		OnNotFound: &macro.Reaction{Action: macro.ActRetry, Retries: 5},
	}
	res, err := e.Run(context.Background(), step, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("expected found after retries")
	}
	if fv.calls != 3 {
		t.Errorf("vision calls = %d, want 3", fv.calls)
	}
}

func TestRun_WaitImageTimesOut(t *testing.T) {
	e := newTestExecutor(&fakeVision{}, &fakeInput{})

	step := &macro.Step{Kind: macro.KindWaitImage, Template: "never.png", Timeout: macro.Duration(3 * time.Millisecond)}
	_, err := e.Run(context.Background(), step, env(nil))
	if err == nil {
		t.Fatal("expected timeout failure")
	}
}

func TestRun_WaitTextAppears(t *testing.T) {
	fv := &fakeVision{matches: []vision.Match{{}, {Found: true, Center: macro.Point{X: 9, Y: 9}}}}
	e := newTestExecutor(fv, &fakeInput{})

	step := &macro.Step{Kind: macro.KindWaitText, SearchText: "Done", Timeout: macro.Duration(time.Second)}
	res, err := e.Run(context.Background(), step, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Match == nil || res.Match.Center.X != 9 {
		t.Errorf("match = %+v", res.Match)
	}
}

func TestRun_ConditionBranches(t *testing.T) {
	fi := &fakeInput{}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{
		Kind: macro.KindCondition,
		Cond: &macro.Cond{Kind: macro.CondValueCompare, Expression: `amount > 100`},
		Then: []macro.Step{{Kind: macro.KindType, Text: "big"}},
		Else: []macro.Step{{Kind: macro.KindType, Text: "small"}},
	}

	if _, err := e.Run(context.Background(), step, env(map[string]any{"amount": 150})); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if _, err := e.Run(context.Background(), step, env(map[string]any{"amount": 50})); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []string{"big", "small"}
	if len(fi.typed) != 2 || fi.typed[0] != want[0] || fi.typed[1] != want[1] {
		t.Errorf("typed = %v, want %v", fi.typed, want)
	}
}

func TestRun_ConditionImageExists(t *testing.T) {
	fv := &fakeVision{matches: []vision.Match{{Found: true}}}
	fi := &fakeInput{}
	e := newTestExecutor(fv, fi)

	step := &macro.Step{
		Kind: macro.KindCondition,
		Cond: &macro.Cond{Kind: macro.CondImageExists, Template: "dialog.png"},
		Then: []macro.Step{{Kind: macro.KindClick, X: 1, Y: 1}},
	}
	if _, err := e.Run(context.Background(), step, env(nil)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fi.clicks) != 1 {
		t.Errorf("clicks = %v", fi.clicks)
	}
}

func TestRun_LoopCount(t *testing.T) {
	fi := &fakeInput{}
	e := newTestExecutor(&fakeVision{}, fi)

	step := &macro.Step{
		Kind:  macro.KindLoop,
		Count: 3,
		Body:  []macro.Step{{Kind: macro.KindClick, X: 1, Y: 1}},
	}
	if _, err := e.Run(context.Background(), step, env(nil)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fi.clicks) != 3 {
		t.Errorf("clicks = %d, want 3", len(fi.clicks))
	}
}

func TestRun_LoopWhile(t *testing.T) {
	// Image present for two polls, gone on the third.
	fv := &fakeVision{matches: []vision.Match{{Found: true}, {Found: true}, {}}}
	fi := &fakeInput{}
	e := newTestExecutor(fv, fi)

	step := &macro.Step{
		Kind:  macro.KindLoop,
		While: &macro.Cond{Kind: macro.CondImageExists, Template: "spinner.png"},
		Body:  []macro.Step{{Kind: macro.KindClick, X: 1, Y: 1}},
	}
	if _, err := e.Run(context.Background(), step, env(nil)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fi.clicks) != 2 {
		t.Errorf("clicks = %d, want 2", len(fi.clicks))
	}
}

func TestRun_Screenshot(t *testing.T) {
	fv := &fakeVision{}
	e := newTestExecutor(fv, &fakeInput{})
	e.ScreenshotDir = "/tmp/shots"

	res, err := e.Run(context.Background(), &macro.Step{Kind: macro.KindScreenshot}, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fv.shots) != 1 {
		t.Fatalf("shots = %v", fv.shots)
	}
	if res.Detail != fv.shots[0] {
		t.Errorf("detail %q != capture path %q", res.Detail, fv.shots[0])
	}
}

func TestRun_RowMarkerInsideBody(t *testing.T) {
	e := newTestExecutor(&fakeVision{}, &fakeInput{})
	_, err := e.Run(context.Background(), &macro.Step{Kind: macro.KindExcelRowStart}, env(nil))
	if err == nil {
		t.Fatal("row marker should not execute as a step")
	}
}

func TestRun_TextSearchNormalizesTarget(t *testing.T) {
	// Full-width punctuation in the macro is folded to half-width before the
	// backend sees the query.
	fv := &fakeVision{matches: []vision.Match{{Found: true}}}
	e := newTestExecutor(fv, &fakeInput{})

	step := &macro.Step{Kind: macro.KindTextSearch, SearchText: "結果：　保存しました。"}
	if _, err := e.Run(context.Background(), step, env(nil)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(fv.texts) != 1 || fv.texts[0] != "結果: 保存しました." {
		t.Errorf("queried text = %v", fv.texts)
	}
}

func TestRun_TextSearchMatchesFullWidthObserved(t *testing.T) {
	// OCR output with full-width punctuation still satisfies a half-width
	// search text.
	fv := &fakeVision{matches: []vision.Match{{Found: true, Text: "保存しました。"}}}
	e := newTestExecutor(fv, &fakeInput{})

	step := &macro.Step{Kind: macro.KindTextSearch, SearchText: "保存しました."}
	res, err := e.Run(context.Background(), step, env(nil))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("expected found result")
	}
}

func TestRun_TextSearchObservedMismatchIsNotFound(t *testing.T) {
	// A backend match whose recognized text does not contain the wanted text
	// counts as not found.
	fv := &fakeVision{matches: []vision.Match{{Found: true, Text: "エラーが発生しました"}}}
	e := newTestExecutor(fv, &fakeInput{})

	step := &macro.Step{Kind: macro.KindTextSearch, SearchText: "保存しました"}
	if _, err := e.Run(context.Background(), step, env(nil)); err == nil {
		t.Fatal("expected not-found escalation")
	}
}

func TestRun_TextSearchExcelColumn(t *testing.T) {
	fv := &fakeVision{matches: []vision.Match{{Found: true, Text: "Acme"}}}
	e := newTestExecutor(fv, &fakeInput{})

	step := &macro.Step{Kind: macro.KindTextSearch, ExcelColumn: "customer"}
	res, err := e.Run(context.Background(), step, env(map[string]any{"customer": "Acme"}))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("expected found result")
	}
}
