// Package perf derives summary performance metrics from simulation results
// and applies the satisfaction predicate that drives backtest campaigns.
package perf

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"quantlab/services/sim"
)

// DegenerateRangeError reports an equity curve spanning no elapsed time, for
// which annualized metrics are undefined.
type DegenerateRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *DegenerateRangeError) Error() string {
	return fmt.Sprintf("perf: degenerate range %s to %s",
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// Report is the immutable performance summary of one simulation. Sharpe is
// nil, and serializes as null, when the return series has no variance to
// divide by; it is never coerced to zero.
type Report struct {
	StrategyID   uuid.UUID `json:"strategy_id"`
	StrategyName string    `json:"strategy_name"`
	TotalReturn  float64   `json:"total_return"`
	AnnualReturn float64   `json:"annual_return"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	Sharpe       *float64  `json:"sharpe_ratio"`
	WinRate      float64   `json:"win_rate"`
	TradeCount   int       `json:"total_trades"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// Verdict pairs a report with the campaign's satisfaction decision.
type Verdict struct {
	Report       *Report `json:"report"`
	Satisfactory bool    `json:"satisfactory"`
}

// Evaluator computes Reports from simulation results.
type Evaluator struct {
	barsPerYear float64
}

// NewEvaluator sets the Sharpe annualization basis; values <= 0 fall back to
// 252, the trading days in a year.
func NewEvaluator(barsPerYear float64) *Evaluator {
	if barsPerYear <= 0 {
		barsPerYear = 252
	}
	return &Evaluator{barsPerYear: barsPerYear}
}

// Evaluate summarizes res. The simulated range must span real time;
// otherwise annualization is meaningless and a DegenerateRangeError is
// returned.
func (e *Evaluator) Evaluate(res *sim.Result) (*Report, error) {
	if res == nil || len(res.Equity) == 0 {
		return nil, &sim.EmptyDatasetError{}
	}
	elapsed := res.End.Sub(res.Start)
	if elapsed <= 0 {
		return nil, &DegenerateRangeError{Start: res.Start, End: res.End}
	}

	totalReturn := res.FinalEquity.Div(res.InitialEquity).InexactFloat64() - 1

	days := elapsed.Hours() / 24
	annualReturn := -1.0
	if growth := 1 + totalReturn; growth > 0 {
		annualReturn = math.Pow(growth, 365/days) - 1
	}

	wins := 0
	for _, trade := range res.Trades {
		if trade.PnL.IsPositive() {
			wins++
		}
	}
	winRate := 0.0
	if len(res.Trades) > 0 {
		winRate = float64(wins) / float64(len(res.Trades))
	}

	return &Report{
		StrategyID:   res.StrategyID,
		StrategyName: res.StrategyName,
		TotalReturn:  totalReturn,
		AnnualReturn: annualReturn,
		MaxDrawdown:  maxDrawdown(res.Equity),
		Sharpe:       sharpeRatio(res.Equity, e.barsPerYear),
		WinRate:      winRate,
		TradeCount:   len(res.Trades),
		Start:        res.Start,
		End:          res.End,
	}, nil
}

// maxDrawdown is the largest peak-to-trough equity decline as a fraction of
// the peak.
func maxDrawdown(curve []sim.EquityPoint) float64 {
	peak := curve[0].Value
	maxDD := 0.0
	for _, p := range curve[1:] {
		if p.Value.GreaterThan(peak) {
			peak = p.Value
			continue
		}
		if peak.IsPositive() {
			if dd := peak.Sub(p.Value).Div(peak).InexactFloat64(); dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio annualizes the mean over the sample standard deviation of
// per-bar equity returns. It is nil when fewer than two returns exist or the
// variance is zero, which covers every zero-trade run.
func sharpeRatio(curve []sim.EquityPoint, barsPerYear float64) *float64 {
	rets := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev.IsZero() {
			continue
		}
		rets = append(rets, curve[i].Value.Div(prev).InexactFloat64()-1)
	}
	if len(rets) < 2 {
		return nil
	}

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	variance := ss / float64(len(rets)-1)
	if variance == 0 {
		return nil
	}

	sharpe := mean / math.Sqrt(variance) * math.Sqrt(barsPerYear)
	return &sharpe
}
