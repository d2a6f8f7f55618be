package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quantlab/services/campaign"
	"quantlab/services/config"
	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/perf"
	"quantlab/services/rule"
	"quantlab/services/sim"
	livesignal "quantlab/services/signal"
	"quantlab/services/strategy"
)

// server holds the long-lived collaborators behind the REST API.
type server struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    marketdata.Source
	engine    *indicator.Engine
	simulator *sim.Simulator
	evaluator *perf.Evaluator
	signals   *livesignal.Generator
}

func newServer(cfg *config.Config, logger *zap.Logger) (*server, error) {
	source, err := cfg.BuildSource(logger)
	if err != nil {
		return nil, err
	}
	simulator, err := sim.New(cfg.Sim.Build(), logger)
	if err != nil {
		return nil, err
	}
	return &server{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		engine:    indicator.NewEngine(logger),
		simulator: simulator,
		evaluator: perf.NewEvaluator(cfg.Eval.BarsPerYear),
		signals:   livesignal.NewGenerator(logger),
	}, nil
}

func (s *server) routes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/backtests", s.handleBacktest)
		api.POST("/campaigns", s.handleCampaign)
		api.POST("/signals", s.handleSignal)
		api.POST("/screens", s.handleScreen)
	}
}

// strategyRequest names one rule to test. Indicators default to the
// configured set when omitted.
type strategyRequest struct {
	Name       string             `json:"name"`
	Rule       string             `json:"rule" binding:"required"`
	Indicators []config.Indicator `json:"indicators"`
}

// rangeRequest selects the bar window; zero fields fall back to the config.
type rangeRequest struct {
	Symbol string `json:"symbol"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type backtestRequest struct {
	rangeRequest
	strategyRequest
}

type campaignRequest struct {
	rangeRequest
	MaxAttempts int `json:"max_attempts"`
}

type screenRequest struct {
	rangeRequest
	Strategies []strategyRequest `json:"strategies" binding:"required"`
	Workers    int               `json:"workers"`
}

type strategyDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Rule string    `json:"rule"`
}

func toDTO(spec *strategy.Spec) *strategyDTO {
	if spec == nil {
		return nil
	}
	return &strategyDTO{ID: spec.ID, Name: spec.Name, Rule: spec.RuleText}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
		Code:    "BAD_REQUEST",
		Message: "Malformed request body",
		Details: err.Error(),
	}})
}

// classify maps the domain error taxonomy onto HTTP statuses. Client
// mistakes are 400, structurally sound requests the data cannot satisfy are
// 422, everything else is 500.
func classify(err error) (int, errorBody) {
	var (
		invalid  *strategy.InvalidStrategyError
		parseErr *rule.ParseError
		insuff   *indicator.InsufficientDataError
		empty    *sim.EmptyDatasetError
		degen    *perf.DegenerateRangeError
		budget   *campaign.RetryBudgetExhaustedError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &parseErr):
		return http.StatusBadRequest, errorBody{
			Code: "INVALID_STRATEGY", Message: "Strategy failed validation", Details: err.Error()}
	case errors.As(err, &insuff):
		return http.StatusUnprocessableEntity, errorBody{
			Code: "INSUFFICIENT_DATA", Message: "Not enough bars for the requested indicators", Details: err.Error()}
	case errors.As(err, &empty):
		return http.StatusUnprocessableEntity, errorBody{
			Code: "EMPTY_DATASET", Message: "No bars in the requested window", Details: err.Error()}
	case errors.As(err, &degen):
		return http.StatusUnprocessableEntity, errorBody{
			Code: "DEGENERATE_RANGE", Message: "Bar range spans no elapsed time", Details: err.Error()}
	case errors.As(err, &budget):
		return http.StatusUnprocessableEntity, errorBody{
			Code: "RETRY_BUDGET_EXHAUSTED", Message: "No strategy satisfied the predicate within budget", Details: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{
			Code: "INTERNAL", Message: "Internal error", Details: err.Error()}
	}
}

func (s *server) fail(c *gin.Context, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": body})
}

// resolveRange fills request defaults from the configuration.
func (s *server) resolveRange(req rangeRequest) (string, time.Time, time.Time, error) {
	data := s.cfg.Data
	if req.Symbol != "" {
		data.Symbol = req.Symbol
	}
	if req.Start != "" {
		data.Start = req.Start
	}
	if req.End != "" {
		data.End = req.End
	}
	start, err := data.StartTime()
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	end, err := data.EndTime()
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	return data.Symbol, start, end, nil
}

// loadFrame fetches the requested window and computes the indicator columns.
// It also returns the resolved symbol.
func (s *server) loadFrame(c *gin.Context, req rangeRequest, indicators []indicator.Spec) (*indicator.Frame, string, error) {
	symbol, start, end, err := s.resolveRange(req)
	if err != nil {
		return nil, "", err
	}
	bars, err := s.source.Fetch(c.Request.Context(), symbol, start, end)
	if err != nil {
		return nil, "", err
	}
	if len(bars) == 0 {
		return nil, "", &sim.EmptyDatasetError{}
	}
	frame, err := s.engine.Compute(bars, indicators)
	if err != nil {
		return nil, "", err
	}
	return frame, symbol, nil
}

// buildStrategy converts a request strategy into a validated spec.
func (s *server) buildStrategy(req strategyRequest) (*strategy.Spec, []indicator.Spec, error) {
	specs := s.cfg.IndicatorSpecs()
	if len(req.Indicators) > 0 {
		specs = make([]indicator.Spec, len(req.Indicators))
		for i, ind := range req.Indicators {
			specs[i] = ind.Spec()
		}
	}
	name := req.Name
	if name == "" {
		name = "adhoc"
	}
	spec, err := strategy.New(name, req.Rule, specs)
	if err != nil {
		return nil, nil, err
	}
	return spec, specs, nil
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"source":    s.cfg.Data.Source,
	})
}

// handleBacktest simulates one rule over the requested window and returns
// its performance verdict.
func (s *server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	spec, specs, err := s.buildStrategy(req.strategyRequest)
	if err != nil {
		s.fail(c, err)
		return
	}
	frame, _, err := s.loadFrame(c, req.rangeRequest, specs)
	if err != nil {
		s.fail(c, err)
		return
	}
	result, err := s.simulator.Run(frame, spec)
	if err != nil {
		s.fail(c, err)
		return
	}
	report, err := s.evaluator.Evaluate(result)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy": toDTO(spec),
		"verdict": perf.Verdict{
			Report:       report,
			Satisfactory: s.cfg.Eval.Predicate.Satisfied(report),
		},
	})
}

// handleCampaign runs the bounded generate-simulate-evaluate loop. An
// exhausted budget is a reportable outcome, so the 422 carries the outcome
// alongside the error body.
func (s *server) handleCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	campCfg := s.cfg.Campaign.Config(s.cfg.Eval.Predicate)
	if req.MaxAttempts > 0 {
		campCfg.MaxAttempts = req.MaxAttempts
	}
	orch, err := campaign.NewOrchestrator(campCfg,
		strategy.NewTemplateGenerator(s.cfg.Campaign.Seed), s.simulator, s.evaluator, s.logger)
	if err != nil {
		s.fail(c, err)
		return
	}
	frame, _, err := s.loadFrame(c, req.rangeRequest, s.cfg.IndicatorSpecs())
	if err != nil {
		s.fail(c, err)
		return
	}
	outcome, err := orch.Run(c.Request.Context(), frame)
	if err != nil {
		var budget *campaign.RetryBudgetExhaustedError
		if errors.As(err, &budget) {
			status, body := classify(err)
			c.JSON(status, gin.H{
				"error":    body,
				"outcome":  outcome,
				"strategy": toDTO(outcome.Strategy),
			})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome":  outcome,
		"strategy": toDTO(outcome.Strategy),
	})
}

// handleSignal evaluates a rule on the latest bar of the window.
func (s *server) handleSignal(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	spec, specs, err := s.buildStrategy(req.strategyRequest)
	if err != nil {
		s.fail(c, err)
		return
	}
	frame, symbol, err := s.loadFrame(c, req.rangeRequest, specs)
	if err != nil {
		s.fail(c, err)
		return
	}
	sig, err := s.signals.Latest(frame, spec, symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

// handleScreen backtests a batch of rules in parallel over one shared frame.
func (s *server) handleScreen(c *gin.Context) {
	var req screenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Strategies) == 0 {
		badRequest(c, errors.New("strategies must not be empty"))
		return
	}
	specs := make([]*strategy.Spec, len(req.Strategies))
	seen := make(map[indicator.Spec]struct{})
	var frameSpecs []indicator.Spec
	for i, sr := range req.Strategies {
		spec, indSpecs, err := s.buildStrategy(sr)
		if err != nil {
			s.fail(c, err)
			return
		}
		specs[i] = spec
		// The shared frame carries the union of every strategy's columns.
		for _, ind := range indSpecs {
			if _, ok := seen[ind]; !ok {
				seen[ind] = struct{}{}
				frameSpecs = append(frameSpecs, ind)
			}
		}
	}
	frame, _, err := s.loadFrame(c, req.rangeRequest, frameSpecs)
	if err != nil {
		s.fail(c, err)
		return
	}
	orch, err := campaign.NewOrchestrator(s.cfg.Campaign.Config(s.cfg.Eval.Predicate),
		strategy.NewTemplateGenerator(s.cfg.Campaign.Seed), s.simulator, s.evaluator, s.logger)
	if err != nil {
		s.fail(c, err)
		return
	}
	workers := req.Workers
	if workers <= 0 {
		workers = s.cfg.Campaign.Workers
	}
	results := orch.Screen(c.Request.Context(), frame, specs, workers)

	type screenEntry struct {
		Strategy *strategyDTO  `json:"strategy"`
		Verdict  *perf.Verdict `json:"verdict,omitempty"`
		Error    *errorBody    `json:"error,omitempty"`
	}
	out := make([]screenEntry, len(results))
	for i, res := range results {
		entry := screenEntry{Strategy: toDTO(res.Strategy), Verdict: res.Verdict}
		if res.Err != nil {
			_, body := classify(res.Err)
			entry.Error = &body
		}
		out[i] = entry
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
