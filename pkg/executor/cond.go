package executor

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/macro"
	"github.com/macrow/macrow/pkg/vars"
	"github.com/macrow/macrow/pkg/vision"
)

// maxWhileIterations bounds while-loops so a never-changing screen cannot
// hang a run.
const maxWhileIterations = 1000

func (e *Executor) execCondition(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	ok, err := e.evalCond(ctx, step.Cond, env)
	if err != nil {
		return nil, err
	}
	branch := step.Then
	label := "then"
	if !ok {
		branch = step.Else
		label = "else"
	}
	e.logger.Debug("condition evaluated",
		zap.String("step", step.Label()),
		zap.Bool("result", ok),
		zap.Int("branch_steps", len(branch)))

	if err := e.runSequence(ctx, branch, env); err != nil {
		return nil, err
	}
	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Found:  found(ok),
		Detail: fmt.Sprintf("took %s branch (%d steps)", label, len(branch)),
	}, nil
}

func (e *Executor) execLoop(ctx context.Context, step *macro.Step, env *Env) (*Result, error) {
	iterations := 0

	if step.Count >= 1 {
		for i := 0; i < step.Count; i++ {
			if err := env.gate(ctx); err != nil {
				return nil, err
			}
			if err := e.runSequence(ctx, step.Body, env); err != nil {
				return nil, err
			}
			iterations++
			if env != nil && env.OnLoopIteration != nil {
				env.OnLoopIteration(step, iterations, step.Count)
			}
		}
	} else {
		for iterations < maxWhileIterations {
			if err := env.gate(ctx); err != nil {
				return nil, err
			}
			ok, err := e.evalCond(ctx, step.While, env)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if err := e.runSequence(ctx, step.Body, env); err != nil {
				return nil, err
			}
			iterations++
			if env != nil && env.OnLoopIteration != nil {
				env.OnLoopIteration(step, iterations, 0)
			}
		}
		if iterations == maxWhileIterations {
			return nil, fmt.Errorf("while loop exceeded %d iterations", maxWhileIterations)
		}
	}

	return &Result{
		StepID: step.ID, Kind: step.Kind, Status: StatusSuccess,
		Detail: fmt.Sprintf("ran %d iterations", iterations),
	}, nil
}

// evalCond evaluates a condition against the current screen or row binding.
func (e *Executor) evalCond(ctx context.Context, c *macro.Cond, env *Env) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("condition step has no cond")
	}
	switch c.Kind {
	case macro.CondImageExists:
		m, err := e.vision.FindImage(ctx, vision.ImageQuery{
			Template:   env.resolve(c.Template),
			Region:     c.Region,
			Confidence: c.Confidence,
		})
		if err != nil {
			return false, fmt.Errorf("image-exists %q: %w", c.Template, err)
		}
		return m.Found, nil

	case macro.CondTextExists:
		target := vars.Normalize(env.resolve(c.Text))
		m, err := e.findText(ctx, vision.TextQuery{
			Text:       target,
			Region:     c.Region,
			ExactMatch: c.ExactMatch,
		})
		if err != nil {
			return false, fmt.Errorf("text-exists %q: %w", target, err)
		}
		return m.Found, nil

	case macro.CondValueCompare:
		return evalExpression(c.Expression, env)

	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// evalExpression evaluates a value-compare expression with the row's columns
// as the environment, e.g. `amount > 100 && status != "done"`.
func evalExpression(expression string, env *Env) (bool, error) {
	exprEnv := map[string]any{}
	if env != nil {
		for k, v := range env.Row {
			exprEnv[k] = v
		}
		exprEnv["row"] = env.RowIndex
	}
	program, err := expr.Compile(expression, expr.Env(exprEnv), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	output, err := expr.Run(program, exprEnv)
	if err != nil {
		return false, fmt.Errorf("eval expression %q: %w", expression, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not return bool (got %T)", expression, output)
	}
	return result, nil
}
