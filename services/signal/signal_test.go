package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/sim"
	"quantlab/services/strategy"
)

func day(n int) time.Time {
	return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
}

func buildFrame(t *testing.T, specs []indicator.Spec, bars []marketdata.Bar) *indicator.Frame {
	t.Helper()
	frame, err := indicator.NewEngine(nil).Compute(bars, specs)
	require.NoError(t, err)
	return frame
}

func bars(volumes func(i int) int64, closes ...float64) []marketdata.Bar {
	out := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		out[i] = marketdata.Bar{
			Timestamp: day(i),
			Open:      decimal.NewFromFloat(c),
			High:      decimal.NewFromFloat(c + 1),
			Low:       decimal.NewFromFloat(c - 1),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(volumes(i)),
		}
	}
	return out
}

func constVolume(int) int64 { return 1000 }

func mustStrategy(t *testing.T, name, rule string, indicators []indicator.Spec) *strategy.Spec {
	t.Helper()
	spec, err := strategy.New(name, rule, indicators)
	require.NoError(t, err)
	return spec
}

func TestLatestBuy(t *testing.T) {
	frame := buildFrame(t, nil, bars(constVolume, 10, 11, 12, 13, 14))
	spec := mustStrategy(t, "always", "close > 0", nil)

	sig, err := NewGenerator(nil).Latest(frame, spec, "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, day(4), sig.Time)
	assert.True(t, decimal.NewFromInt(14).Equal(sig.Close))
	assert.Equal(t, spec.ID, sig.StrategyID)
	assert.Equal(t, "always", sig.StrategyName)
	assert.Empty(t, sig.Note)
}

func TestLatestSell(t *testing.T) {
	frame := buildFrame(t, nil, bars(constVolume, 10, 11, 12, 13, 14))
	spec := mustStrategy(t, "never", "close > 1000", nil)

	sig, err := NewGenerator(nil).Latest(frame, spec, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ActionSell, sig.Action)
}

func TestLatestHoldsOnUndefined(t *testing.T) {
	// A zero volume on the second-to-last bar leaves volume_change undefined
	// on the last one.
	closes := []float64{10, 11, 12, 13, 14}
	volumes := func(i int) int64 {
		if i == 3 {
			return 0
		}
		return 1000
	}
	specs := []indicator.Spec{indicator.VolumeChange()}
	frame := buildFrame(t, specs, bars(volumes, closes...))

	v, ok := frame.Value("volume_change", frame.Len()-1)
	require.False(t, ok, "precondition: last volume_change must be undefined, got %v", v)

	spec := mustStrategy(t, "vol-spike", "volume_change > 0.5", specs)
	sig, err := NewGenerator(nil).Latest(frame, spec, "ETHUSDT")
	require.NoError(t, err)

	assert.Equal(t, ActionHold, sig.Action)
	assert.NotEmpty(t, sig.Note)
}

func TestLatestEvalErrorPropagates(t *testing.T) {
	// Constant volume makes volume_change zero, so dividing by it fails.
	specs := []indicator.Spec{indicator.VolumeChange()}
	frame := buildFrame(t, specs, bars(constVolume, 10, 11, 12, 13, 14))

	spec := mustStrategy(t, "div", "close / volume_change > 1", specs)
	_, err := NewGenerator(nil).Latest(frame, spec, "ETHUSDT")
	require.Error(t, err)
}

func TestLatestEmptyFrame(t *testing.T) {
	spec := mustStrategy(t, "always", "close > 0", nil)

	var empty *sim.EmptyDatasetError
	_, err := NewGenerator(nil).Latest(nil, spec, "BTCUSDT")
	require.ErrorAs(t, err, &empty)
}

func TestLatestMissingColumn(t *testing.T) {
	frame := buildFrame(t, nil, bars(constVolume, 10, 11, 12))
	spec := mustStrategy(t, "needs-sma", "sma_50 > 0", []indicator.Spec{indicator.SMA(50)})

	var invalid *strategy.InvalidStrategyError
	_, err := NewGenerator(nil).Latest(frame, spec, "BTCUSDT")
	require.ErrorAs(t, err, &invalid)
}
