package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantlab/services/agents"
	"quantlab/services/campaign"
	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/perf"
	"quantlab/services/report"
	"quantlab/services/signal"
	"quantlab/services/sim"
	"quantlab/services/strategy"
)

type stubSource struct {
	bars []marketdata.Bar
	err  error
}

func (s stubSource) Fetch(context.Context, string, time.Time, time.Time) ([]marketdata.Bar, error) {
	return s.bars, s.err
}

type failingSentiment struct{}

func (failingSentiment) Analyze(context.Context, agents.Request) (*agents.Sentiment, error) {
	return nil, errors.New("collaborator offline")
}

func day(n int) time.Time {
	return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
}

func risingBars(n int) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	for i := range bars {
		c := float64(i + 10)
		bars[i] = marketdata.Bar{
			Timestamp: day(i),
			Open:      decimal.NewFromFloat(c),
			High:      decimal.NewFromFloat(c + 1),
			Low:       decimal.NewFromFloat(c - 1),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars
}

func testDeps(t *testing.T, src marketdata.Source, predicate perf.Predicate, reportPath string) Deps {
	t.Helper()
	spec, err := strategy.New("always-long", "close > 0", nil)
	require.NoError(t, err)

	simulator, err := sim.New(sim.DefaultConfig(), nil)
	require.NoError(t, err)
	orch, err := campaign.NewOrchestrator(
		campaign.Config{MaxAttempts: 3, Predicate: predicate},
		strategy.Fixed(spec),
		simulator,
		perf.NewEvaluator(252),
		nil,
	)
	require.NoError(t, err)

	return Deps{
		Source:       src,
		Engine:       indicator.NewEngine(nil),
		Orchestrator: orch,
		Signals:      signal.NewGenerator(nil),
		Sentiment:    agents.Static{Result: agents.Sentiment{Label: agents.LabelPositive, Score: 0.5}},
		Reports:      report.NewBuilder(nil),
		ReportPath:   reportPath,
	}
}

func TestResearchPipelineSatisfied(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "out", "report.md")
	deps := testDeps(t, stubSource{bars: risingBars(40)}, perf.Predicate{}, reportPath)

	g, err := NewResearchPipeline(deps)
	require.NoError(t, err)

	state := &State{Symbol: "BTCUSDT", AssetType: "crypto", Start: day(0), End: day(39)}
	require.NoError(t, g.Run(context.Background(), state))

	require.NotNil(t, state.Outcome)
	assert.Equal(t, campaign.ReasonSatisfied, state.Outcome.Reason)

	require.NotNil(t, state.Signal, "satisfied campaign must produce a live signal")
	assert.Equal(t, signal.ActionBuy, state.Signal.Action)

	require.NotNil(t, state.Sentiment)
	assert.Equal(t, agents.LabelPositive, state.Sentiment.Label)

	assert.Contains(t, state.Report, "satisfied")
	assert.Equal(t, reportPath, state.ReportPath)
	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# Research Report: BTCUSDT")
}

func TestResearchPipelineExhausted(t *testing.T) {
	deps := testDeps(t, stubSource{bars: risingBars(40)}, perf.Predicate{MinSharpe: 1000}, "")

	g, err := NewResearchPipeline(deps)
	require.NoError(t, err)

	state := &State{Symbol: "BTCUSDT", Start: day(0), End: day(39)}
	require.NoError(t, g.Run(context.Background(), state), "exhaustion is reported, not raised")

	require.NotNil(t, state.Outcome)
	assert.Equal(t, campaign.ReasonExhausted, state.Outcome.Reason)
	assert.Nil(t, state.Signal, "no signal from an unsatisfied strategy")
	assert.Nil(t, state.Sentiment)
	assert.Contains(t, state.Report, "retry budget exhausted")
}

func TestResearchPipelineFetchFailure(t *testing.T) {
	deps := testDeps(t, stubSource{err: errors.New("api down")}, perf.Predicate{}, "")

	g, err := NewResearchPipeline(deps)
	require.NoError(t, err)

	err = g.Run(context.Background(), &State{Symbol: "BTCUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow node fetch_data")
	assert.Contains(t, err.Error(), "api down")
}

func TestResearchPipelineEmptyFetch(t *testing.T) {
	deps := testDeps(t, stubSource{}, perf.Predicate{}, "")

	g, err := NewResearchPipeline(deps)
	require.NoError(t, err)

	err = g.Run(context.Background(), &State{Symbol: "BTCUSDT"})
	var empty *sim.EmptyDatasetError
	require.ErrorAs(t, err, &empty)
}

func TestResearchPipelineInsufficientData(t *testing.T) {
	deps := testDeps(t, stubSource{bars: risingBars(5)}, perf.Predicate{}, "")
	deps.Indicators = []indicator.Spec{indicator.SMA(50)}

	g, err := NewResearchPipeline(deps)
	require.NoError(t, err)

	err = g.Run(context.Background(), &State{Symbol: "BTCUSDT"})
	var insufficient *indicator.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Contains(t, err.Error(), "workflow node compute_indicators")
}

func TestResearchPipelineSentimentDegradesToNeutral(t *testing.T) {
	deps := testDeps(t, stubSource{bars: risingBars(40)}, perf.Predicate{}, "")
	deps.Sentiment = failingSentiment{}

	g, err := NewResearchPipeline(deps)
	require.NoError(t, err)

	state := &State{Symbol: "BTCUSDT", Start: day(0), End: day(39)}
	require.NoError(t, g.Run(context.Background(), state))

	require.NotNil(t, state.Sentiment)
	assert.Equal(t, agents.LabelNeutral, state.Sentiment.Label)
	assert.NotEmpty(t, state.Report)
}

func TestNewResearchPipelineRequiresDeps(t *testing.T) {
	deps := testDeps(t, stubSource{bars: risingBars(40)}, perf.Predicate{}, "")

	for name, mutate := range map[string]func(*Deps){
		"source":       func(d *Deps) { d.Source = nil },
		"engine":       func(d *Deps) { d.Engine = nil },
		"orchestrator": func(d *Deps) { d.Orchestrator = nil },
		"signals":      func(d *Deps) { d.Signals = nil },
		"reports":      func(d *Deps) { d.Reports = nil },
	} {
		t.Run(name, func(t *testing.T) {
			broken := deps
			mutate(&broken)
			_, err := NewResearchPipeline(broken)
			require.Error(t, err)
		})
	}
}
