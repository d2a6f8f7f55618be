package perf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantlab/services/sim"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
}

// resultWithCurve builds a result whose equity walks the given values one
// day apart.
func resultWithCurve(values ...float64) *sim.Result {
	equity := make([]sim.EquityPoint, len(values))
	for i, v := range values {
		equity[i] = sim.EquityPoint{Time: day(i), Value: decimal.NewFromFloat(v)}
	}
	return &sim.Result{
		StrategyID:    uuid.New(),
		StrategyName:  "test",
		InitialEquity: equity[0].Value,
		FinalEquity:   equity[len(equity)-1].Value,
		Equity:        equity,
		Start:         day(0),
		End:           day(len(values) - 1),
	}
}

func TestEvaluateFlatCurve(t *testing.T) {
	res := resultWithCurve(100, 100, 100, 100)
	report, err := NewEvaluator(252).Evaluate(res)
	require.NoError(t, err)

	assert.Equal(t, res.StrategyID, report.StrategyID)
	assert.Equal(t, "test", report.StrategyName)
	assert.Zero(t, report.TotalReturn)
	assert.Zero(t, report.AnnualReturn)
	assert.Zero(t, report.MaxDrawdown)
	assert.Nil(t, report.Sharpe)
	assert.Zero(t, report.WinRate)
	assert.Zero(t, report.TradeCount)
}

func TestEvaluateEmptyResult(t *testing.T) {
	var empty *sim.EmptyDatasetError
	_, err := NewEvaluator(252).Evaluate(nil)
	require.ErrorAs(t, err, &empty)

	_, err = NewEvaluator(252).Evaluate(&sim.Result{})
	require.ErrorAs(t, err, &empty)
}

func TestEvaluateDegenerateRange(t *testing.T) {
	res := resultWithCurve(100)
	res.End = res.Start

	_, err := NewEvaluator(252).Evaluate(res)
	var degenerate *DegenerateRangeError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, res.Start, degenerate.Start)
}

func TestMaxDrawdown(t *testing.T) {
	res := resultWithCurve(100, 120, 90, 130, 104)
	report, err := NewEvaluator(252).Evaluate(res)
	require.NoError(t, err)

	// 120 -> 90 is the deepest valley: 25%. The later 130 -> 104 dip is 20%.
	assert.InDelta(t, 0.25, report.MaxDrawdown, 1e-9)
}

func TestSharpeRatio(t *testing.T) {
	t.Run("hand computed", func(t *testing.T) {
		// Returns 0.1 and -0.05: mean 0.025, sample std sqrt(0.01125).
		res := resultWithCurve(100, 110, 104.5)
		report, err := NewEvaluator(252).Evaluate(res)
		require.NoError(t, err)

		require.NotNil(t, report.Sharpe)
		assert.InDelta(t, 3.7416574, *report.Sharpe, 1e-6)
	})

	t.Run("nil when variance is zero", func(t *testing.T) {
		res := resultWithCurve(100, 110, 121)
		report, err := NewEvaluator(252).Evaluate(res)
		require.NoError(t, err)
		assert.Nil(t, report.Sharpe)
	})

	t.Run("nil with a single return", func(t *testing.T) {
		res := resultWithCurve(100, 90)
		report, err := NewEvaluator(252).Evaluate(res)
		require.NoError(t, err)
		assert.Nil(t, report.Sharpe)
	})
}

func TestAnnualReturn(t *testing.T) {
	t.Run("one year passes through", func(t *testing.T) {
		res := resultWithCurve(100, 105, 110)
		res.End = day(365)
		report, err := NewEvaluator(252).Evaluate(res)
		require.NoError(t, err)
		assert.InDelta(t, 0.10, report.AnnualReturn, 1e-9)
	})

	t.Run("half year compounds", func(t *testing.T) {
		res := resultWithCurve(100, 150, 200)
		res.End = day(0).Add(time.Duration(182.5 * 24 * float64(time.Hour)))
		report, err := NewEvaluator(252).Evaluate(res)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, report.AnnualReturn, 1e-9)
	})

	t.Run("total loss floors at minus one", func(t *testing.T) {
		res := resultWithCurve(100, 50, 0.000001)
		res.FinalEquity = decimal.Zero
		report, err := NewEvaluator(252).Evaluate(res)
		require.NoError(t, err)
		assert.Equal(t, -1.0, report.AnnualReturn)
	})
}

func TestWinRate(t *testing.T) {
	res := resultWithCurve(100, 101, 102, 103)
	res.Trades = []sim.Trade{
		{PnL: decimal.NewFromInt(5)},
		{PnL: decimal.NewFromInt(2)},
		{PnL: decimal.NewFromInt(-3)},
	}
	report, err := NewEvaluator(252).Evaluate(res)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TradeCount)
	assert.InDelta(t, 2.0/3.0, report.WinRate, 1e-9)
}

func TestPredicateSatisfied(t *testing.T) {
	sharpe := func(v float64) *float64 { return &v }

	cases := []struct {
		name      string
		predicate Predicate
		report    *Report
		want      bool
	}{
		{
			"clears default bar",
			DefaultPredicate(),
			&Report{Sharpe: sharpe(1.5), MaxDrawdown: 0.10, TotalReturn: 0.08},
			true,
		},
		{
			"sharpe below floor",
			DefaultPredicate(),
			&Report{Sharpe: sharpe(0.5), MaxDrawdown: 0.10, TotalReturn: 0.08},
			false,
		},
		{
			"nil sharpe never clears a floor",
			DefaultPredicate(),
			&Report{Sharpe: nil, MaxDrawdown: 0.0, TotalReturn: 0.0},
			false,
		},
		{
			"drawdown too deep",
			DefaultPredicate(),
			&Report{Sharpe: sharpe(2.0), MaxDrawdown: 0.30, TotalReturn: 0.08},
			false,
		},
		{
			"negative return",
			DefaultPredicate(),
			&Report{Sharpe: sharpe(2.0), MaxDrawdown: 0.10, TotalReturn: -0.01},
			false,
		},
		{
			"disabled checks pass a flat run",
			Predicate{},
			&Report{Sharpe: nil, MaxDrawdown: 0.0, TotalReturn: 0.0},
			true,
		},
		{
			"nil report",
			DefaultPredicate(),
			nil,
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.predicate.Satisfied(tc.report))
		})
	}
}

func TestReportJSONSharpeNull(t *testing.T) {
	raw, err := json.Marshal(&Report{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sharpe_ratio":null`)

	v := 1.25
	raw, err = json.Marshal(&Report{Sharpe: &v})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sharpe_ratio":1.25`)
}
