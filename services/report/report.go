// Package report renders the final Markdown research report: run metadata,
// campaign verdict and metrics, the attempt history, the live signal, and
// the sentiment read.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"quantlab/services/agents"
	"quantlab/services/campaign"
	"quantlab/services/signal"
)

// Data gathers everything one report renders. Signal and Sentiment are nil
// when the campaign exhausted its budget.
type Data struct {
	Symbol      string
	AssetType   string
	Start       time.Time
	End         time.Time
	GeneratedAt time.Time
	Outcome     *campaign.Outcome
	Signal      *signal.Signal
	Sentiment   *agents.Sentiment
}

// Builder renders reports.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder accepts a nil logger.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Build renders d as Markdown. It never fails: missing pieces render as
// explicit notes so an exhausted campaign still produces a readable report.
func (b *Builder) Build(d Data) string {
	generated := d.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	var w strings.Builder
	fmt.Fprintf(&w, "# Research Report: %s\n\n", d.Symbol)
	if d.AssetType != "" {
		fmt.Fprintf(&w, "- **Asset type**: %s\n", d.AssetType)
	}
	fmt.Fprintf(&w, "- **Period**: %s to %s\n", d.Start.Format("2006-01-02"), d.End.Format("2006-01-02"))
	fmt.Fprintf(&w, "- **Generated**: %s\n", generated.Format(time.RFC3339))
	if d.Outcome != nil {
		fmt.Fprintf(&w, "- **Run ID**: %s\n", d.Outcome.RunID)
	}
	w.WriteString("\n")

	b.writeCampaign(&w, d.Outcome)
	b.writeSignal(&w, d.Signal)
	b.writeSentiment(&w, d.Sentiment)

	b.logger.Debug("report rendered", zap.String("symbol", d.Symbol), zap.Int("bytes", w.Len()))
	return w.String()
}

// WriteFile renders d and writes it to path, creating parent directories.
func (b *Builder) WriteFile(path string, d Data) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.Build(d)), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	b.logger.Info("report written", zap.String("path", path))
	return nil
}

func (b *Builder) writeCampaign(w *strings.Builder, outcome *campaign.Outcome) {
	w.WriteString("## Campaign\n\n")
	if outcome == nil {
		w.WriteString("The campaign did not run.\n\n")
		return
	}

	switch outcome.Reason {
	case campaign.ReasonSatisfied:
		fmt.Fprintf(w, "- **Outcome**: satisfied after %d attempt(s)\n", len(outcome.Attempts))
	default:
		fmt.Fprintf(w, "- **Outcome**: retry budget exhausted after %d attempt(s)\n", len(outcome.Attempts))
	}
	if outcome.Strategy != nil {
		fmt.Fprintf(w, "- **Strategy**: %s\n", outcome.Strategy.Name)
		fmt.Fprintf(w, "- **Rule**: `%s`\n", outcome.Strategy.RuleText)
	}
	w.WriteString("\n")

	if outcome.Reason == campaign.ReasonExhausted {
		w.WriteString("*No strategy met the performance bar; the figures below describe the best rejected attempt.*\n\n")
	}

	if outcome.Verdict != nil && outcome.Verdict.Report != nil {
		r := outcome.Verdict.Report
		w.WriteString("## Performance\n\n")
		w.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(w, "| Total return | %s |\n", pct(r.TotalReturn))
		fmt.Fprintf(w, "| Annualized return | %s |\n", pct(r.AnnualReturn))
		fmt.Fprintf(w, "| Max drawdown | %s |\n", pct(r.MaxDrawdown))
		fmt.Fprintf(w, "| Sharpe ratio | %s |\n", sharpeText(r.Sharpe))
		fmt.Fprintf(w, "| Win rate | %s |\n", pct(r.WinRate))
		fmt.Fprintf(w, "| Trades | %d |\n", r.TradeCount)
		w.WriteString("\n")
	} else {
		w.WriteString("No attempt produced a performance verdict.\n\n")
	}

	if len(outcome.Attempts) > 0 {
		w.WriteString("## Attempt History\n\n")
		w.WriteString("| # | Strategy | Total Return | Sharpe | Status |\n|---|---|---|---|---|\n")
		for _, a := range outcome.Attempts {
			name := a.StrategyName
			if name == "" {
				name = "n/a"
			}
			ret, sharpe := "n/a", "n/a"
			if a.Verdict != nil && a.Verdict.Report != nil {
				ret = pct(a.Verdict.Report.TotalReturn)
				sharpe = sharpeText(a.Verdict.Report.Sharpe)
			}
			fmt.Fprintf(w, "| %d | %s | %s | %s | %s |\n", a.Number, name, ret, sharpe, attemptStatus(a))
		}
		w.WriteString("\n")
	}
}

func (b *Builder) writeSignal(w *strings.Builder, sig *signal.Signal) {
	w.WriteString("## Live Signal\n\n")
	if sig == nil {
		w.WriteString("*No live signal: the campaign ended without a satisfactory strategy.*\n\n")
		return
	}
	fmt.Fprintf(w, "- **Action**: %s\n", strings.ToUpper(string(sig.Action)))
	fmt.Fprintf(w, "- **Bar time**: %s\n", sig.Time.Format(time.RFC3339))
	fmt.Fprintf(w, "- **Close**: %s\n", sig.Close)
	if sig.Note != "" {
		fmt.Fprintf(w, "- **Note**: %s\n", sig.Note)
	}
	w.WriteString("\n")
}

func (b *Builder) writeSentiment(w *strings.Builder, s *agents.Sentiment) {
	w.WriteString("## Market Sentiment\n\n")
	if s == nil {
		w.WriteString("*Sentiment analysis unavailable.*\n")
		return
	}
	fmt.Fprintf(w, "- **Reading**: %s (score %.2f)\n", s.Label, s.Score)
	if s.Summary != "" {
		fmt.Fprintf(w, "- **Summary**: %s\n", s.Summary)
	}
}

func attemptStatus(a campaign.Attempt) string {
	switch {
	case a.Error != "":
		return "failed: " + a.Error
	case a.Verdict != nil && a.Verdict.Satisfactory:
		return "satisfied"
	default:
		return "rejected"
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func sharpeText(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
