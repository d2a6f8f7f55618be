package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantlab/services/agents"
	"quantlab/services/campaign"
	"quantlab/services/perf"
	"quantlab/services/signal"
	"quantlab/services/strategy"
)

func satisfiedData(t *testing.T) Data {
	t.Helper()
	spec, err := strategy.New("sma-cross", "sma_10 > sma_30", nil)
	require.NoError(t, err)

	sharpe := 1.42
	verdict := &perf.Verdict{
		Report: &perf.Report{
			StrategyID:   spec.ID,
			StrategyName: spec.Name,
			TotalReturn:  0.1234,
			AnnualReturn: 0.2567,
			MaxDrawdown:  0.089,
			Sharpe:       &sharpe,
			WinRate:      0.6,
			TradeCount:   5,
		},
		Satisfactory: true,
	}

	return Data{
		Symbol:      "BTCUSDT",
		AssetType:   "crypto",
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		GeneratedAt: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		Outcome: &campaign.Outcome{
			RunID:  uuid.New(),
			Reason: campaign.ReasonSatisfied,
			Attempts: []campaign.Attempt{
				{Number: 1, StrategyName: "rsi-dip", Verdict: &perf.Verdict{Report: &perf.Report{TotalReturn: -0.02}}},
				{Number: 2, StrategyName: spec.Name, Rule: spec.RuleText, Verdict: verdict},
			},
			Verdict:  verdict,
			Strategy: spec,
		},
		Signal: &signal.Signal{
			Symbol:       "BTCUSDT",
			Action:       signal.ActionBuy,
			Time:         time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
			Close:        decimal.NewFromFloat(64123.5),
			StrategyID:   spec.ID,
			StrategyName: spec.Name,
		},
		Sentiment: &agents.Sentiment{Label: agents.LabelPositive, Score: 0.6, Summary: "steady inflows"},
	}
}

func TestBuildSatisfied(t *testing.T) {
	md := NewBuilder(nil).Build(satisfiedData(t))

	assert.Contains(t, md, "# Research Report: BTCUSDT")
	assert.Contains(t, md, "- **Period**: 2024-01-01 to 2024-06-30")
	assert.Contains(t, md, "satisfied after 2 attempt(s)")
	assert.Contains(t, md, "- **Rule**: `sma_10 > sma_30`")
	assert.Contains(t, md, "| Total return | 12.34% |")
	assert.Contains(t, md, "| Sharpe ratio | 1.42 |")
	assert.Contains(t, md, "| Win rate | 60.00% |")
	assert.Contains(t, md, "| 1 | rsi-dip | -2.00% | n/a | rejected |")
	assert.Contains(t, md, "| 2 | sma-cross | 12.34% | 1.42 | satisfied |")
	assert.Contains(t, md, "- **Action**: BUY")
	assert.Contains(t, md, "- **Reading**: positive (score 0.60)")
	assert.NotContains(t, md, "exhausted")
}

func TestBuildExhausted(t *testing.T) {
	d := satisfiedData(t)
	d.Outcome.Reason = campaign.ReasonExhausted
	d.Outcome.Verdict.Satisfactory = false
	d.Signal = nil
	d.Sentiment = nil

	md := NewBuilder(nil).Build(d)

	assert.Contains(t, md, "retry budget exhausted after 2 attempt(s)")
	assert.Contains(t, md, "best rejected attempt")
	assert.Contains(t, md, "No live signal")
	assert.Contains(t, md, "Sentiment analysis unavailable")
	// Best-attempt metrics still render.
	assert.Contains(t, md, "| Total return | 12.34% |")
}

func TestBuildFailedAttemptRow(t *testing.T) {
	d := satisfiedData(t)
	d.Outcome.Attempts = append(d.Outcome.Attempts, campaign.Attempt{
		Number: 3,
		Error:  "generator dried up",
	})

	md := NewBuilder(nil).Build(d)
	assert.Contains(t, md, "| 3 | n/a | n/a | n/a | failed: generator dried up |")
}

func TestBuildNilPieces(t *testing.T) {
	md := NewBuilder(nil).Build(Data{Symbol: "AAPL"})

	assert.Contains(t, md, "The campaign did not run.")
	assert.Contains(t, md, "No live signal")
	assert.Contains(t, md, "Sentiment analysis unavailable")
}

func TestBuildNilVerdict(t *testing.T) {
	d := satisfiedData(t)
	d.Outcome.Verdict = nil

	md := NewBuilder(nil).Build(d)
	assert.Contains(t, md, "No attempt produced a performance verdict.")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "btc.md")

	require.NoError(t, NewBuilder(nil).WriteFile(path, satisfiedData(t)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# Research Report: BTCUSDT")
}
