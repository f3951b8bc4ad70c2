package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Evaluator runs a script in the page and stores its result in res
type Evaluator interface {
	Evaluate(ctx context.Context, script string, res any) error
}

// Policy controls how far a lazily loaded page is expanded
type Policy struct {
	StepPixels  int           `yaml:"step_pixels"`
	Pause       time.Duration `yaml:"pause"`
	MaxSteps    int           `yaml:"max_steps"`
	StableSteps int           `yaml:"stable_steps"`
	LoadMoreCSS string        `yaml:"load_more_css"`
}

// Step describes the page after one scroll
type Step struct {
	Index  int
	Height float64
}

// Predicate decides after each step whether the page is fully loaded
type Predicate interface {
	Done(step Step) bool
}

// PredicateFunc adapts a function to Predicate
type PredicateFunc func(Step) bool

// Done implements Predicate
func (f PredicateFunc) Done(step Step) bool {
	return f(step)
}

// FixedBudget never stops early; only MaxSteps ends the expansion
func FixedBudget() Predicate {
	return PredicateFunc(func(Step) bool { return false })
}

// HeightStable stops once the scroll height has not grown for n
// consecutive steps.
func HeightStable(n int) Predicate {
	return &heightStable{want: n, last: -1}
}

type heightStable struct {
	want  int
	last  float64
	still int
}

func (h *heightStable) Done(step Step) bool {
	if step.Height > h.last {
		h.last = step.Height
		h.still = 0
		return false
	}
	h.still++
	return h.still >= h.want
}

// Until returns the policy's termination predicate. A fresh predicate is
// returned on every call.
func (p Policy) Until() Predicate {
	if p.StableSteps > 0 {
		return HeightStable(p.StableSteps)
	}
	return FixedBudget()
}

// StepFunc runs after every step, typically to re-query the grown page
type StepFunc func(ctx context.Context, step Step) error

// Result summarizes an expansion
type Result struct {
	Steps  int
	Height float64
	// Stable is true when the predicate ended the expansion before MaxSteps
	Stable bool
}

const heightScript = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`

// Expand scrolls the page step by step, pausing after each scroll so new
// content can render, until the predicate reports completion or MaxSteps
// is reached. A nil predicate uses the policy's own.
func Expand(ctx context.Context, ev Evaluator, p Policy, until Predicate, onStep StepFunc) (Result, error) {
	if until == nil {
		until = p.Until()
	}

	script, err := scrollScript(p)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i := 1; i <= p.MaxSteps; i++ {
		if err := ev.Evaluate(ctx, script, nil); err != nil {
			return res, fmt.Errorf("scroll step %d: %w", i, err)
		}

		if err := pause(ctx, p.Pause); err != nil {
			return res, err
		}

		var height float64
		if err := ev.Evaluate(ctx, heightScript, &height); err != nil {
			return res, fmt.Errorf("measure step %d: %w", i, err)
		}

		step := Step{Index: i, Height: height}
		res.Steps, res.Height = i, height

		if onStep != nil {
			if err := onStep(ctx, step); err != nil {
				return res, err
			}
		}

		if until.Done(step) {
			res.Stable = i < p.MaxSteps
			break
		}
	}
	return res, nil
}

func scrollScript(p Policy) (string, error) {
	if p.LoadMoreCSS == "" {
		return fmt.Sprintf(`window.scrollBy(0, %d);`, p.StepPixels), nil
	}
	selector, err := json.Marshal(p.LoadMoreCSS)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`window.scrollBy(0, %d); (function(){ const b = document.querySelector(%s); if (b) { b.click(); } })();`,
		p.StepPixels, selector), nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
