// Command quantlab runs the automated research pipeline end to end: fetch
// bars, compute indicators, run the strategy campaign and write the report
// plus any configured export artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"quantlab/services/campaign"
	"quantlab/services/config"
	"quantlab/services/export"
	"quantlab/services/indicator"
	"quantlab/services/perf"
	"quantlab/services/report"
	"quantlab/services/sim"
	livesignal "quantlab/services/signal"
	"quantlab/services/strategy"
	"quantlab/services/workflow"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to YAML config; built-in defaults when empty")
	symbol := flag.String("symbol", "", "Override data.symbol")
	source := flag.String("source", "", "Override data.source (csv|binance|alpaca|synthetic)")
	csvPath := flag.String("csv", "", "CSV bar file; implies -source csv")
	start := flag.String("start", "", "Override data.start (YYYY-MM-DD)")
	end := flag.String("end", "", "Override data.end (YYYY-MM-DD)")
	ruleExpr := flag.String("rule", "", "Fix the campaign to this rule instead of generating strategies")
	ruleName := flag.String("rule-name", "user-rule", "Strategy name for -rule")
	reportPath := flag.String("report", "", "Markdown report path (default <export.dir>/<symbol>_report.md)")
	maxAttempts := flag.Int("max-attempts", 0, "Override campaign.max_attempts")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	} else {
		config.ApplyEnv(cfg)
	}

	if *symbol != "" {
		cfg.Data.Symbol = *symbol
	}
	if *csvPath != "" {
		cfg.Data.Source = config.SourceCSV
		cfg.Data.CSVPath = *csvPath
	}
	if *source != "" {
		cfg.Data.Source = *source
	}
	if *start != "" {
		cfg.Data.Start = *start
	}
	if *end != "" {
		cfg.Data.End = *end
	}
	if *maxAttempts > 0 {
		cfg.Campaign.MaxAttempts = *maxAttempts
	}
	if *dev {
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataSource, err := cfg.BuildSource(logger)
	if err != nil {
		logger.Fatal("Failed to build data source", zap.Error(err))
	}
	simulator, err := sim.New(cfg.Sim.Build(), logger)
	if err != nil {
		logger.Fatal("Failed to build simulator", zap.Error(err))
	}
	evaluator := perf.NewEvaluator(cfg.Eval.BarsPerYear)

	var generator strategy.Generator
	if *ruleExpr != "" {
		spec, err := strategy.New(*ruleName, *ruleExpr, cfg.IndicatorSpecs())
		if err != nil {
			logger.Fatal("Bad -rule", zap.Error(err))
		}
		generator = strategy.Fixed(spec)
	} else {
		generator = strategy.NewTemplateGenerator(cfg.Campaign.Seed)
	}

	orchestrator, err := campaign.NewOrchestrator(
		cfg.Campaign.Config(cfg.Eval.Predicate), generator, simulator, evaluator, logger)
	if err != nil {
		logger.Fatal("Failed to build orchestrator", zap.Error(err))
	}

	reportFile := *reportPath
	if reportFile == "" && cfg.Export.Dir != "" {
		reportFile = filepath.Join(cfg.Export.Dir, artifactName(cfg.Data.Symbol, "report.md"))
	}

	pipeline, err := workflow.NewResearchPipeline(workflow.Deps{
		Source:       dataSource,
		Indicators:   cfg.IndicatorSpecs(),
		Engine:       indicator.NewEngine(logger),
		Orchestrator: orchestrator,
		Signals:      livesignal.NewGenerator(logger),
		Sentiment:    cfg.Sentiment.Client(logger),
		Reports:      report.NewBuilder(logger),
		ReportPath:   reportFile,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	startTime, _ := cfg.Data.StartTime()
	endTime, _ := cfg.Data.EndTime()
	state := &workflow.State{
		Symbol:    cfg.Data.Symbol,
		AssetType: cfg.Data.AssetType,
		Start:     startTime,
		End:       endTime,
	}

	if err := pipeline.Run(ctx, state); err != nil {
		logger.Fatal("Research run failed", zap.Error(err))
	}

	writeExports(cfg, state, logger)
	printSummary(cfg, state)
}

// writeExports emits the optional trade, equity and frame artifacts for the
// best attempt of the run.
func writeExports(cfg *config.Config, state *workflow.State, logger *zap.Logger) {
	if cfg.Export.Dir == "" {
		return
	}
	res := resultOf(state.Outcome)
	if cfg.Export.Trades && res != nil {
		path := filepath.Join(cfg.Export.Dir, artifactName(state.Symbol, "trades.csv"))
		if err := export.WriteTradesCSV(path, res.Trades); err != nil {
			logger.Warn("trade export failed", zap.Error(err))
		} else {
			logger.Info("trades exported", zap.String("path", path), zap.Int("trades", len(res.Trades)))
		}
	}
	if cfg.Export.Equity && res != nil {
		path := filepath.Join(cfg.Export.Dir, artifactName(state.Symbol, "equity.csv"))
		if err := export.WriteEquityCSV(path, res.Equity); err != nil {
			logger.Warn("equity export failed", zap.Error(err))
		} else {
			logger.Info("equity exported", zap.String("path", path))
		}
	}
	if cfg.Export.Frame && state.Frame != nil {
		path := filepath.Join(cfg.Export.Dir, artifactName(state.Symbol, "frame.arrow"))
		if err := export.WriteFrameIPC(path, state.Frame); err != nil {
			logger.Warn("frame export failed", zap.Error(err))
		} else {
			logger.Info("frame exported", zap.String("path", path))
		}
	}
}

func resultOf(outcome *campaign.Outcome) *sim.Result {
	if outcome == nil {
		return nil
	}
	return outcome.Result
}

func printSummary(cfg *config.Config, state *workflow.State) {
	fmt.Println("=== Research Summary ===")
	fmt.Printf("Symbol: %s (%s to %s)\n", state.Symbol, cfg.Data.Start, cfg.Data.End)
	if out := state.Outcome; out != nil {
		fmt.Printf("Outcome: %s after %d attempt(s)\n", out.Reason, len(out.Attempts))
		if out.Strategy != nil {
			fmt.Printf("Strategy: %s (%s)\n", out.Strategy.Name, out.Strategy.RuleText)
		}
		if out.Verdict != nil && out.Verdict.Report != nil {
			r := out.Verdict.Report
			sharpe := "n/a"
			if r.Sharpe != nil {
				sharpe = fmt.Sprintf("%.2f", *r.Sharpe)
			}
			fmt.Printf("Return: %.2f%%, Sharpe: %s, MaxDD: %.2f%%, Trades: %d\n",
				r.TotalReturn*100, sharpe, r.MaxDrawdown*100, r.TradeCount)
		}
	}
	if sig := state.Signal; sig != nil {
		fmt.Printf("Signal: %s @ %s (close %s)\n",
			strings.ToUpper(string(sig.Action)), sig.Time.UTC().Format("2006-01-02"), sig.Close.String())
	}
	if sent := state.Sentiment; sent != nil {
		fmt.Printf("Sentiment: %s (%.2f)\n", sent.Label, sent.Score)
	}
	if state.ReportPath != "" {
		fmt.Printf("Report: %s\n", state.ReportPath)
	}
}

// artifactName produces a filesystem-safe, symbol-prefixed file name.
func artifactName(symbol, suffix string) string {
	safe := strings.ToLower(strings.NewReplacer("/", "-", ":", "-").Replace(symbol))
	if safe == "" {
		return suffix
	}
	return safe + "_" + suffix
}
