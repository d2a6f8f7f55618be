// Package marketdata provides OHLCV bar series and the data sources that
// produce them: CSV files, exchange REST endpoints, the Alpaca market data
// API, and a deterministic synthetic generator.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV bar for one trading period.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Source fetches a bar series for a symbol over a closed date range.
type Source interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// Normalize sorts bars by timestamp and drops duplicate timestamps, keeping
// the last occurrence. The input slice is not modified.
func Normalize(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

// ValidateSeries checks the invariants a simulation-ready series must hold:
// strictly increasing timestamps, no duplicates, positive prices, coherent
// OHLC bounds and non-negative volume.
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if b.Open.LessThanOrEqual(decimal.Zero) || b.High.LessThanOrEqual(decimal.Zero) ||
			b.Low.LessThanOrEqual(decimal.Zero) || b.Close.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("marketdata: bar %d (%s): non-positive price", i, b.Timestamp.UTC().Format(time.RFC3339))
		}
		if b.High.LessThan(b.Low) {
			return fmt.Errorf("marketdata: bar %d (%s): high %s below low %s", i, b.Timestamp.UTC().Format(time.RFC3339), b.High, b.Low)
		}
		if b.High.LessThan(b.Open) || b.High.LessThan(b.Close) {
			return fmt.Errorf("marketdata: bar %d (%s): high %s below open/close", i, b.Timestamp.UTC().Format(time.RFC3339), b.High)
		}
		if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
			return fmt.Errorf("marketdata: bar %d (%s): low %s above open/close", i, b.Timestamp.UTC().Format(time.RFC3339), b.Low)
		}
		if b.Volume.IsNegative() {
			return fmt.Errorf("marketdata: bar %d (%s): negative volume %s", i, b.Timestamp.UTC().Format(time.RFC3339), b.Volume)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return fmt.Errorf("marketdata: bar %d (%s): timestamp not strictly increasing", i, b.Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

// Clip returns the bars whose timestamps fall inside [start, end]. A zero
// start or end leaves that side unbounded.
func Clip(bars []Bar, start, end time.Time) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
