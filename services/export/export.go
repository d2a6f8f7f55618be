// Package export persists simulation artifacts: the trade ledger and equity
// curve as CSV, and enriched indicator frames as Arrow IPC for columnar
// consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quantlab/services/sim"
)

// WriteTradesCSV writes the trade ledger to path, creating parent
// directories.
func WriteTradesCSV(path string, trades []sim.Trade) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"entry_time", "exit_time", "entry_price", "exit_price",
		"quantity", "notional", "fees", "pnl", "return", "exit_reason",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, tr := range trades {
		row := []string{
			tr.EntryTime.UTC().Format(time.RFC3339),
			tr.ExitTime.UTC().Format(time.RFC3339),
			tr.EntryPrice.String(),
			tr.ExitPrice.String(),
			tr.Quantity.String(),
			tr.Notional.String(),
			tr.Fees.String(),
			tr.PnL.String(),
			tr.Return.String(),
			string(tr.ExitReason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteEquityCSV writes the per-bar equity curve to path.
func WriteEquityCSV(path string, equity []sim.EquityPoint) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, p := range equity {
		if err := w.Write([]string{p.Time.UTC().Format(time.RFC3339), p.Value.String()}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("export: create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: create %s: %w", path, err)
	}
	return f, nil
}
