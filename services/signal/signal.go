// Package signal turns a backtested strategy into a live trading signal by
// evaluating its rule against the newest bar of an indicator frame. It runs
// the exact evaluation path the simulator uses per bar, so a signal can
// never disagree with what a simulation would have done on that row.
package signal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantlab/services/indicator"
	"quantlab/services/rule"
	"quantlab/services/sim"
	"quantlab/services/strategy"
)

// Action is the live trading decision.
type Action string

// Actions.
const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is the decision for one symbol at one bar.
type Signal struct {
	Symbol       string          `json:"symbol"`
	Action       Action          `json:"action"`
	Time         time.Time       `json:"time"`
	Close        decimal.Decimal `json:"close"`
	StrategyID   uuid.UUID       `json:"strategy_id"`
	StrategyName string          `json:"strategy_name"`
	Note         string          `json:"note,omitempty"`
}

// Generator produces live signals.
type Generator struct {
	logger *zap.Logger
}

// NewGenerator accepts a nil logger.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// Latest evaluates spec's rule on the last row of frame: true means buy,
// false means sell, and a row whose required columns are still undefined
// means hold. An empty frame yields *sim.EmptyDatasetError.
func (g *Generator) Latest(frame *indicator.Frame, spec *strategy.Spec, symbol string) (*Signal, error) {
	if frame == nil || frame.Len() == 0 {
		return nil, &sim.EmptyDatasetError{}
	}
	if err := spec.Validate(frame.Columns()); err != nil {
		return nil, err
	}

	last := frame.Len() - 1
	out := &Signal{
		Symbol:       symbol,
		Time:         frame.Time(last),
		Close:        frame.Bar(last).Close,
		StrategyID:   spec.ID,
		StrategyName: spec.Name,
	}

	switch active, err := spec.Rule.Eval(frame.Row(last)); {
	case errors.Is(err, rule.ErrUndefined):
		out.Action = ActionHold
		out.Note = "rule undefined on the latest bar"
	case err != nil:
		return nil, err
	case active:
		out.Action = ActionBuy
	default:
		out.Action = ActionSell
	}

	g.logger.Info("live signal",
		zap.String("symbol", symbol),
		zap.String("strategy", spec.Name),
		zap.String("action", string(out.Action)),
		zap.Time("bar_time", out.Time),
	)
	return out, nil
}
