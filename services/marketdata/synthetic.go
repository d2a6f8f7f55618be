package marketdata

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// SyntheticSource generates a reproducible random-walk series with trending
// regimes, for tests and offline experiments. The same seed always produces
// the same bars.
type SyntheticSource struct {
	Seed       int64
	Bars       int
	StartPrice float64
	Interval   time.Duration
}

// NewSyntheticSource returns a generator with sensible defaults: 1000 daily
// bars starting at 100.0.
func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		Seed:       seed,
		Bars:       1000,
		StartPrice: 100.0,
		Interval:   24 * time.Hour,
	}
}

// Fetch generates bars timestamped from start. The end bound and symbol are
// ignored; the series length is fixed by s.Bars.
func (s *SyntheticSource) Fetch(_ context.Context, _ string, start, _ time.Time) ([]Bar, error) {
	return s.Generate(start), nil
}

// Generate produces the series deterministically from the configured seed.
func (s *SyntheticSource) Generate(start time.Time) []Bar {
	n := s.Bars
	if n <= 0 {
		n = 1000
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	price := s.StartPrice
	if price <= 0 {
		price = 100.0
	}
	if start.IsZero() {
		start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	rng := rand.New(rand.NewSource(s.Seed))
	bars := make([]Bar, 0, n)

	for i := 0; i < n; i++ {
		// Alternate drift regimes so crossover strategies have something
		// to find: uptrend, downtrend, then a gentle recovery.
		trend := 0.0
		switch phase := i * 10 / n; {
		case phase >= 1 && phase < 3:
			trend = 0.001
		case phase >= 4 && phase < 6:
			trend = -0.001
		case phase >= 7 && phase < 9:
			trend = 0.0005
		}

		change := (rng.Float64()-0.5)*0.02 + trend
		open := price
		volatility := 0.005 + rng.Float64()*0.01
		high := open * (1 + volatility*rng.Float64())
		low := open * (1 - volatility*rng.Float64())
		closePx := open * (1 + change)

		if high < open {
			high = open
		}
		if high < closePx {
			high = closePx
		}
		if low > open {
			low = open
		}
		if low > closePx {
			low = closePx
		}

		volume := 1000 + rng.Float64()*5000 + math.Abs(change)*100000

		bars = append(bars, Bar{
			Timestamp: start.Add(time.Duration(i) * interval),
			Open:      decimal.NewFromFloat(open).Round(8),
			High:      decimal.NewFromFloat(high).Round(8),
			Low:       decimal.NewFromFloat(low).Round(8),
			Close:     decimal.NewFromFloat(closePx).Round(8),
			Volume:    decimal.NewFromFloat(volume).Round(2),
		})
		price = closePx
	}
	return bars
}
