package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quantlab/services/agents"
	"quantlab/services/campaign"
	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/report"
	"quantlab/services/signal"
	"quantlab/services/sim"
)

// Pipeline node names.
const (
	NodeFetchData         = "fetch_data"
	NodeComputeIndicators = "compute_indicators"
	NodeRunCampaign       = "run_campaign"
	NodeGenerateSignal    = "generate_signal"
	NodeAnalyzeSentiment  = "analyze_sentiment"
	NodeBuildReport       = "build_report"
)

// Deps are the collaborators the research pipeline wires together.
type Deps struct {
	Source       marketdata.Source
	Indicators   []indicator.Spec
	Engine       *indicator.Engine
	Orchestrator *campaign.Orchestrator
	Signals      *signal.Generator
	Sentiment    agents.Client
	Reports      *report.Builder
	ReportPath   string
	Logger       *zap.Logger
}

// NewResearchPipeline builds the production graph:
//
//	fetch_data -> compute_indicators -> run_campaign
//	  satisfied: -> generate_signal -> analyze_sentiment -> build_report
//	  exhausted: -> build_report
//
// A satisfied campaign flows through the live-signal and sentiment nodes; an
// exhausted one reports directly, since no strategy earned a signal.
func NewResearchPipeline(deps Deps) (*Graph, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("workflow: market data source is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("workflow: indicator engine is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("workflow: campaign orchestrator is required")
	}
	if deps.Signals == nil {
		return nil, fmt.Errorf("workflow: signal generator is required")
	}
	if deps.Reports == nil {
		return nil, fmt.Errorf("workflow: report builder is required")
	}
	if deps.Sentiment == nil {
		deps.Sentiment = agents.Static{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := NewGraph(logger)

	var err error
	add := func(e error) {
		if err == nil {
			err = e
		}
	}

	add(g.AddNode(NodeFetchData, func(ctx context.Context, s *State) error {
		bars, fetchErr := deps.Source.Fetch(ctx, s.Symbol, s.Start, s.End)
		if fetchErr != nil {
			return fetchErr
		}
		if len(bars) == 0 {
			return &sim.EmptyDatasetError{}
		}
		logger.Info("market data fetched",
			zap.String("symbol", s.Symbol),
			zap.Int("bars", len(bars)),
		)
		s.Bars = bars
		return nil
	}))

	add(g.AddNode(NodeComputeIndicators, func(_ context.Context, s *State) error {
		frame, computeErr := deps.Engine.Compute(s.Bars, deps.Indicators)
		if computeErr != nil {
			return computeErr
		}
		s.Frame = frame
		return nil
	}))

	add(g.AddNode(NodeRunCampaign, func(ctx context.Context, s *State) error {
		outcome, runErr := deps.Orchestrator.Run(ctx, s.Frame)
		if runErr != nil {
			var exhausted *campaign.RetryBudgetExhaustedError
			if errors.As(runErr, &exhausted) {
				// Exhaustion is a reportable outcome, not a pipeline failure.
				logger.Warn("campaign exhausted, reporting best attempt",
					zap.Int("attempts", exhausted.Attempts),
				)
				s.Outcome = outcome
				return nil
			}
			return runErr
		}
		s.Outcome = outcome
		return nil
	}))

	add(g.AddNode(NodeGenerateSignal, func(_ context.Context, s *State) error {
		sig, sigErr := deps.Signals.Latest(s.Frame, s.Outcome.Strategy, s.Symbol)
		if sigErr != nil {
			return sigErr
		}
		s.Signal = sig
		return nil
	}))

	add(g.AddNode(NodeAnalyzeSentiment, func(ctx context.Context, s *State) error {
		res, sentErr := deps.Sentiment.Analyze(ctx, agents.Request{
			Symbol:    s.Symbol,
			AssetType: s.AssetType,
		})
		if sentErr != nil {
			// Sentiment is best effort: degrade to neutral and keep going.
			logger.Warn("sentiment analysis failed, using neutral",
				zap.String("symbol", s.Symbol),
				zap.Error(sentErr),
			)
			s.Sentiment = agents.Neutral()
			return nil
		}
		s.Sentiment = res
		return nil
	}))

	add(g.AddNode(NodeBuildReport, func(_ context.Context, s *State) error {
		data := report.Data{
			Symbol:      s.Symbol,
			AssetType:   s.AssetType,
			Start:       s.Start,
			End:         s.End,
			GeneratedAt: time.Now().UTC(),
			Outcome:     s.Outcome,
			Signal:      s.Signal,
			Sentiment:   s.Sentiment,
		}
		s.Report = deps.Reports.Build(data)
		if deps.ReportPath != "" {
			if writeErr := deps.Reports.WriteFile(deps.ReportPath, data); writeErr != nil {
				return writeErr
			}
			s.ReportPath = deps.ReportPath
		}
		return nil
	}))

	add(g.AddEdge(NodeFetchData, NodeComputeIndicators))
	add(g.AddEdge(NodeComputeIndicators, NodeRunCampaign))
	add(g.AddBranch(NodeRunCampaign, func(s *State) string {
		if s.Outcome != nil && s.Outcome.Reason == campaign.ReasonSatisfied {
			return NodeGenerateSignal
		}
		return NodeBuildReport
	}))
	add(g.AddEdge(NodeGenerateSignal, NodeAnalyzeSentiment))
	add(g.AddEdge(NodeAnalyzeSentiment, NodeBuildReport))

	if err != nil {
		return nil, err
	}

	g.SetEntry(NodeFetchData)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
