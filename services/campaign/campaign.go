// Package campaign runs the generate/simulate/evaluate retry loop that
// searches for a strategy clearing the performance predicate within a
// bounded attempt budget.
package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quantlab/services/indicator"
	"quantlab/services/perf"
	"quantlab/services/sim"
	"quantlab/services/strategy"
)

// RetryBudgetExhaustedError reports a campaign that consumed every attempt
// without a satisfactory verdict. The outcome returned alongside it still
// carries the best attempt seen.
type RetryBudgetExhaustedError struct {
	Attempts int
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("campaign: retry budget exhausted after %d attempts", e.Attempts)
}

// State is one step of the campaign loop.
type State int

// Campaign states.
const (
	StateGenerating State = iota
	StateSimulating
	StateEvaluating
	StateSatisfied
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateSimulating:
		return "simulating"
	case StateEvaluating:
		return "evaluating"
	case StateSatisfied:
		return "satisfied"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason says how a campaign terminated.
type Reason string

// Termination reasons.
const (
	ReasonSatisfied Reason = "satisfied"
	ReasonExhausted Reason = "exhausted"
)

// Attempt is the record of one loop iteration. Verdict is nil when the
// attempt failed before evaluation; Error carries the failure text.
type Attempt struct {
	Number       int           `json:"number"`
	StrategyID   uuid.UUID     `json:"strategy_id"`
	StrategyName string        `json:"strategy_name,omitempty"`
	Rule         string        `json:"rule,omitempty"`
	Verdict      *perf.Verdict `json:"verdict,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Outcome is the final campaign state: the winning strategy when satisfied,
// otherwise the best attempt by Sharpe then total return. Strategy and
// Result stay out of JSON; the verdict's report already identifies them.
type Outcome struct {
	RunID    uuid.UUID      `json:"run_id"`
	Reason   Reason         `json:"reason"`
	Verdict  *perf.Verdict  `json:"verdict,omitempty"`
	Attempts []Attempt      `json:"attempts"`
	Strategy *strategy.Spec `json:"-"`
	Result   *sim.Result    `json:"-"`
}

// Config bounds a campaign.
type Config struct {
	MaxAttempts int            `yaml:"max_attempts" json:"max_attempts"`
	Predicate   perf.Predicate `yaml:"predicate" json:"predicate"`
}

// DefaultConfig allows five attempts against the default predicate.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Predicate: perf.DefaultPredicate()}
}

// Validate rejects a config with no attempt budget.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("campaign: max attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}

// Orchestrator drives the campaign loop over fixed collaborators.
type Orchestrator struct {
	cfg       Config
	generator strategy.Generator
	simulator *sim.Simulator
	evaluator *perf.Evaluator
	logger    *zap.Logger
}

// NewOrchestrator validates cfg and requires every collaborator. A nil
// logger falls back to a no-op.
func NewOrchestrator(cfg Config, gen strategy.Generator, simulator *sim.Simulator, evaluator *perf.Evaluator, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, fmt.Errorf("campaign: generator is required")
	}
	if simulator == nil {
		return nil, fmt.Errorf("campaign: simulator is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("campaign: evaluator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		generator: gen,
		simulator: simulator,
		evaluator: evaluator,
		logger:    logger,
	}, nil
}

// Run executes the campaign over frame until an attempt satisfies the
// predicate or the budget runs out. Failed attempts (generation errors,
// invalid strategies, degenerate evaluations) consume budget and are
// recorded, never fatal. On exhaustion the returned outcome holds the best
// attempt and err unwraps to *RetryBudgetExhaustedError; ctx cancellation
// between attempts aborts the run itself.
func (o *Orchestrator) Run(ctx context.Context, frame *indicator.Frame) (*Outcome, error) {
	outcome := &Outcome{
		RunID:    uuid.New(),
		Attempts: make([]Attempt, 0, o.cfg.MaxAttempts),
	}
	o.logger.Info("campaign started",
		zap.String("run_id", outcome.RunID.String()),
		zap.Int("max_attempts", o.cfg.MaxAttempts),
	)

	var (
		state   = StateGenerating
		attempt int
		spec    *strategy.Spec
		result  *sim.Result
		verdict *perf.Verdict

		bestSpec    *strategy.Spec
		bestResult  *sim.Result
		bestVerdict *perf.Verdict
	)

	for {
		switch state {
		case StateGenerating:
			if attempt >= o.cfg.MaxAttempts {
				state = StateExhausted
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			attempt++
			var err error
			spec, err = o.generator.Generate(ctx, attempt)
			if err != nil {
				o.logger.Warn("strategy generation failed",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				outcome.Attempts = append(outcome.Attempts, Attempt{
					Number: attempt,
					Error:  err.Error(),
				})
				continue
			}
			state = StateSimulating

		case StateSimulating:
			var err error
			result, err = o.simulator.Run(frame, spec)
			if err != nil {
				o.logger.Warn("simulation failed",
					zap.Int("attempt", attempt),
					zap.String("strategy", spec.Name),
					zap.Error(err),
				)
				outcome.Attempts = append(outcome.Attempts, Attempt{
					Number:       attempt,
					StrategyID:   spec.ID,
					StrategyName: spec.Name,
					Rule:         spec.RuleText,
					Error:        err.Error(),
				})
				state = StateGenerating
				continue
			}
			state = StateEvaluating

		case StateEvaluating:
			report, err := o.evaluator.Evaluate(result)
			if err != nil {
				o.logger.Warn("evaluation failed",
					zap.Int("attempt", attempt),
					zap.String("strategy", spec.Name),
					zap.Error(err),
				)
				outcome.Attempts = append(outcome.Attempts, Attempt{
					Number:       attempt,
					StrategyID:   spec.ID,
					StrategyName: spec.Name,
					Rule:         spec.RuleText,
					Error:        err.Error(),
				})
				state = StateGenerating
				continue
			}
			verdict = &perf.Verdict{
				Report:       report,
				Satisfactory: o.cfg.Predicate.Satisfied(report),
			}
			outcome.Attempts = append(outcome.Attempts, Attempt{
				Number:       attempt,
				StrategyID:   spec.ID,
				StrategyName: spec.Name,
				Rule:         spec.RuleText,
				Verdict:      verdict,
			})
			if bestVerdict == nil || better(report, bestVerdict.Report) {
				bestSpec, bestResult, bestVerdict = spec, result, verdict
			}
			o.logger.Info("attempt evaluated",
				zap.Int("attempt", attempt),
				zap.String("strategy", spec.Name),
				zap.Float64("total_return", report.TotalReturn),
				zap.Bool("satisfactory", verdict.Satisfactory),
			)
			if verdict.Satisfactory {
				state = StateSatisfied
			} else {
				state = StateGenerating
			}

		case StateSatisfied:
			outcome.Reason = ReasonSatisfied
			outcome.Strategy = spec
			outcome.Result = result
			outcome.Verdict = verdict
			o.logger.Info("campaign satisfied",
				zap.String("run_id", outcome.RunID.String()),
				zap.Int("attempts", attempt),
				zap.String("strategy", spec.Name),
			)
			return outcome, nil

		case StateExhausted:
			outcome.Reason = ReasonExhausted
			outcome.Strategy = bestSpec
			outcome.Result = bestResult
			outcome.Verdict = bestVerdict
			o.logger.Warn("campaign exhausted",
				zap.String("run_id", outcome.RunID.String()),
				zap.Int("attempts", attempt),
			)
			return outcome, &RetryBudgetExhaustedError{Attempts: attempt}
		}
	}
}

// better prefers a defined Sharpe over none, then the higher Sharpe, then
// the higher total return.
func better(candidate, incumbent *perf.Report) bool {
	if incumbent == nil {
		return true
	}
	if candidate == nil {
		return false
	}
	switch {
	case candidate.Sharpe != nil && incumbent.Sharpe == nil:
		return true
	case candidate.Sharpe == nil && incumbent.Sharpe != nil:
		return false
	case candidate.Sharpe != nil && incumbent.Sharpe != nil && *candidate.Sharpe != *incumbent.Sharpe:
		return *candidate.Sharpe > *incumbent.Sharpe
	}
	return candidate.TotalReturn > incumbent.TotalReturn
}
