package campaign

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"quantlab/services/indicator"
	"quantlab/services/perf"
	"quantlab/services/strategy"
)

// ScreenResult is one candidate's outcome from a parallel screen. Verdict is
// nil when Err is set.
type ScreenResult struct {
	Strategy *strategy.Spec `json:"-"`
	Verdict  *perf.Verdict  `json:"verdict,omitempty"`
	Err      error          `json:"-"`
}

// Screen simulates and evaluates every candidate over the same frame using a
// bounded worker pool. Results keep the order of specs; a candidate that
// fails records its error without disturbing the others. workers <= 0 means
// one worker per CPU.
func (o *Orchestrator) Screen(ctx context.Context, frame *indicator.Frame, specs []*strategy.Spec, workers int) []ScreenResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(specs) {
		workers = len(specs)
	}

	results := make([]ScreenResult, len(specs))
	jobs := make(chan int, len(specs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = o.screenOne(ctx, frame, specs[idx])
				o.logger.Debug("screen candidate done",
					zap.Int("worker_id", id),
					zap.Int("candidate", idx),
					zap.String("strategy", specs[idx].Name),
				)
			}
		}(w)
	}

	for i := range specs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (o *Orchestrator) screenOne(ctx context.Context, frame *indicator.Frame, spec *strategy.Spec) ScreenResult {
	out := ScreenResult{Strategy: spec}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	result, err := o.simulator.Run(frame, spec)
	if err != nil {
		out.Err = err
		return out
	}
	report, err := o.evaluator.Evaluate(result)
	if err != nil {
		out.Err = err
		return out
	}
	out.Verdict = &perf.Verdict{
		Report:       report,
		Satisfactory: o.cfg.Predicate.Satisfied(report),
	}
	return out
}
