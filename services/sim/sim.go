// Package sim replays strategy rules over enriched bar series and produces
// trade ledgers and equity curves. All monetary state is decimal arithmetic;
// float64 only appears on the indicator side of rule evaluation.
package sim

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantlab/services/indicator"
	"quantlab/services/strategy"
)

// ExecPolicy selects which price fills an order signalled on a bar.
type ExecPolicy string

// Execution policies.
const (
	// ExecNextOpen fills at the next bar's open. An order signalled on a bar
	// rests for one bar, and the rule is not re-evaluated while it rests.
	ExecNextOpen ExecPolicy = "next_open"
	// ExecSameClose fills immediately at the signal bar's close.
	ExecSameClose ExecPolicy = "same_close"
)

// Config holds the account and execution parameters for a simulation.
type Config struct {
	InitialCapital   decimal.Decimal
	CommissionRate   decimal.Decimal
	PositionFraction decimal.Decimal
	Execution        ExecPolicy
}

// DefaultConfig mirrors the research pipeline defaults: 100k starting
// capital, 0.1% commission per fill, 10% position sizing, next-open
// execution.
func DefaultConfig() Config {
	return Config{
		InitialCapital:   decimal.NewFromInt(100_000),
		CommissionRate:   decimal.NewFromFloat(0.001),
		PositionFraction: decimal.NewFromFloat(0.10),
		Execution:        ExecNextOpen,
	}
}

// Validate rejects configurations the simulator cannot run.
func (c Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return fmt.Errorf("sim: initial capital must be positive, got %s", c.InitialCapital)
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("sim: commission rate must be in [0, 1), got %s", c.CommissionRate)
	}
	if !c.PositionFraction.IsPositive() || c.PositionFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("sim: position fraction must be in (0, 1], got %s", c.PositionFraction)
	}
	switch c.Execution {
	case ExecNextOpen, ExecSameClose:
	default:
		return fmt.Errorf("sim: unknown execution policy %q", c.Execution)
	}
	return nil
}

// Simulator replays one strategy at a time against a frame. It holds no
// per-run state, so a single Simulator serves concurrent runs.
type Simulator struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Simulator. A nil logger falls back to a no-op logger.
func New(cfg Config, logger *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: logger}, nil
}

type pendingOrder struct {
	exit bool
}

// Run replays frame chronologically under spec's rule: enter long when flat
// and the rule is true, close when long and the rule is false. Rows where
// any referenced column is still warming up are skipped. Exits are decided
// before entries, a pending order that never reaches its fill bar is
// discarded, and a position still open after the last bar is closed at the
// final close.
func (s *Simulator) Run(frame *indicator.Frame, spec *strategy.Spec) (*Result, error) {
	if frame == nil || frame.Len() == 0 {
		return nil, &EmptyDatasetError{}
	}
	if err := spec.Validate(frame.Columns()); err != nil {
		return nil, err
	}

	n := frame.Len()
	required := spec.RequiredColumns()
	cash := s.cfg.InitialCapital

	res := &Result{
		StrategyID:    spec.ID,
		StrategyName:  spec.Name,
		InitialEquity: cash,
		Equity:        make([]EquityPoint, 0, n),
		Start:         frame.Time(0),
		End:           frame.Time(n - 1),
	}

	var pos *Position
	var pending *pendingOrder

	for i := 0; i < n; i++ {
		bar := frame.Bar(i)

		switch {
		case pending != nil:
			// Fill the resting order at this bar's open. The rule is not
			// evaluated on a fill bar.
			if pending.exit {
				cash = s.closePosition(res, pos, i, bar.Timestamp, bar.Open, cash, ExitSignal)
				pos = nil
			} else {
				pos, cash = s.openPosition(i, bar.Timestamp, bar.Open, cash)
			}
			pending = nil

		case frame.Defined(i, required...):
			long, err := spec.Rule.Eval(frame.Row(i))
			if err != nil {
				return nil, fmt.Errorf("sim: evaluate %q at bar %d: %w", spec.Name, i, err)
			}
			switch {
			case pos != nil && !long:
				if s.cfg.Execution == ExecSameClose {
					cash = s.closePosition(res, pos, i, bar.Timestamp, bar.Close, cash, ExitSignal)
					pos = nil
				} else {
					pending = &pendingOrder{exit: true}
				}
			case pos == nil && long:
				if s.cfg.Execution == ExecSameClose {
					pos, cash = s.openPosition(i, bar.Timestamp, bar.Close, cash)
				} else {
					pending = &pendingOrder{}
				}
			}
		}

		equity := cash
		if pos != nil {
			equity = equity.Add(pos.Quantity.Mul(bar.Close))
		}
		res.Equity = append(res.Equity, EquityPoint{Time: bar.Timestamp, Value: equity})
	}

	// Close out at the end of the data so every round trip is accounted for.
	if pos != nil {
		last := frame.Bar(n - 1)
		cash = s.closePosition(res, pos, n-1, last.Timestamp, last.Close, cash, ExitEndOfData)
		pos = nil
		res.Equity[n-1] = EquityPoint{Time: last.Timestamp, Value: cash}
	}

	res.FinalEquity = res.Equity[n-1].Value
	s.logger.Debug("simulation finished",
		zap.String("strategy", spec.Name),
		zap.String("strategy_id", spec.ID.String()),
		zap.Int("bars", n),
		zap.Int("trades", len(res.Trades)),
		zap.String("final_equity", res.FinalEquity.String()),
	)
	return res, nil
}

// openPosition commits the configured fraction of available cash at price.
// Entries only happen while flat, so cash equals account equity here.
func (s *Simulator) openPosition(i int, ts time.Time, price, cash decimal.Decimal) (*Position, decimal.Decimal) {
	notional := cash.Mul(s.cfg.PositionFraction)
	quantity := notional.Div(price)
	fee := notional.Mul(s.cfg.CommissionRate)
	pos := &Position{
		EntryIndex: i,
		EntryTime:  ts,
		EntryPrice: price,
		Quantity:   quantity,
		Notional:   notional,
		EntryFee:   fee,
	}
	return pos, cash.Sub(notional).Sub(fee)
}

func (s *Simulator) closePosition(res *Result, pos *Position, i int, ts time.Time, price, cash decimal.Decimal, reason ExitReason) decimal.Decimal {
	proceeds := pos.Quantity.Mul(price)
	exitFee := proceeds.Mul(s.cfg.CommissionRate)
	fees := pos.EntryFee.Add(exitFee)
	pnl := proceeds.Sub(pos.Notional).Sub(fees)

	res.Trades = append(res.Trades, Trade{
		EntryIndex: pos.EntryIndex,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		ExitIndex:  i,
		ExitTime:   ts,
		ExitPrice:  price,
		Quantity:   pos.Quantity,
		Notional:   pos.Notional,
		Fees:       fees,
		PnL:        pnl,
		Return:     pnl.Div(pos.Notional),
		ExitReason: reason,
	})
	return cash.Add(proceeds).Sub(exitFee)
}
