package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quantlab/services/agents"
	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/sim"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SourceSynthetic, cfg.Data.Source)
	assert.Equal(t, "SYN", cfg.Data.Symbol)
	assert.Equal(t, 5, cfg.Campaign.MaxAttempts)
	assert.Equal(t, 1.0, cfg.Eval.Predicate.MinSharpe)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	raw := `
log:
  level: debug
data:
  source: csv
  symbol: BTCUSDT
  csv_path: /tmp/bars.csv
  start: "2023-01-01"
  end: "2023-06-01"
indicators:
  - kind: sma
    period: 10
  - kind: macd
campaign:
  max_attempts: 7
eval:
  predicate:
    min_sharpe: 1.5
`
	path := filepath.Join(t.TempDir(), "quantlab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, SourceCSV, cfg.Data.Source)
	assert.Equal(t, "/tmp/bars.csv", cfg.Data.CSVPath)
	assert.Equal(t, 7, cfg.Campaign.MaxAttempts)
	assert.Equal(t, 1.5, cfg.Eval.Predicate.MinSharpe)

	// Fields the file does not mention keep their defaults.
	assert.Equal(t, "1d", cfg.Data.Interval)
	assert.Equal(t, int64(42), cfg.Campaign.Seed)
	assert.Equal(t, 0.20, cfg.Eval.Predicate.MaxDrawdown)

	specs := cfg.IndicatorSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, indicator.SMA(10), specs[0])
	assert.Equal(t, indicator.MACD(12, 26, 9), specs[1])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	raw := `
data:
  source: warehouse
  symbol: ""
campaign:
  max_attempts: 0
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown data source "warehouse"`)
	assert.Contains(t, err.Error(), "data.symbol is required")
	assert.Contains(t, err.Error(), "campaign.max_attempts must be positive")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ALPACA_API_KEY_ID", "project-key")
	t.Setenv("APCA_API_KEY_ID", "canonical-key")
	t.Setenv("APCA_API_SECRET_KEY", "canonical-secret")
	t.Setenv("QUANTLAB_SENTIMENT_ENDPOINT", "http://localhost:9000/sentiment")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, "canonical-key", cfg.Data.Alpaca.APIKey)
	assert.Equal(t, "canonical-secret", cfg.Data.Alpaca.APISecret)
	assert.Equal(t, "http://localhost:9000/sentiment", cfg.Sentiment.Endpoint)
}

func TestValidateSourceRequirements(t *testing.T) {
	t.Run("csv needs path", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Source = SourceCSV
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "csv source needs data.csv_path")
	})

	t.Run("alpaca needs credentials", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Source = SourceAlpaca
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "alpaca source needs credentials")
	})

	t.Run("start must precede end", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Start = "2024-01-01"
		cfg.Data.End = "2022-01-01"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must precede")
	})

	t.Run("bad indicator is indexed", func(t *testing.T) {
		cfg := Default()
		cfg.Indicators = []Indicator{{Kind: "sma", Period: 10}, {Kind: "hull"}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "indicators[1]")
	})
}

func TestIndicatorSpecDefaults(t *testing.T) {
	cases := []struct {
		name string
		in   Indicator
		want indicator.Spec
	}{
		{"macd defaults", Indicator{Kind: "macd"}, indicator.MACD(12, 26, 9)},
		{"macd explicit", Indicator{Kind: "macd", Fast: 8, Slow: 21, Signal: 5}, indicator.MACD(8, 21, 5)},
		{"stochastic defaults", Indicator{Kind: "stochastic"}, indicator.Stochastic(5, 3, 3)},
		{"bollinger defaults", Indicator{Kind: "bollinger"}, indicator.Bollinger(20, 2)},
		{"close position defaults", Indicator{Kind: "close_position"}, indicator.ClosePosition(20, 2)},
		{"sma passthrough", Indicator{Kind: "sma", Period: 14}, indicator.SMA(14)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Spec())
		})
	}
}

func TestIndicatorSpecsEmptyUsesDefaultSet(t *testing.T) {
	cfg := Default()
	assert.Equal(t, indicator.DefaultSpecs(), cfg.IndicatorSpecs())
}

func TestSimBuild(t *testing.T) {
	t.Run("zero keeps defaults", func(t *testing.T) {
		assert.Equal(t, sim.DefaultConfig(), Sim{}.Build())
	})

	t.Run("overrides", func(t *testing.T) {
		got := Sim{InitialCapital: 50_000, CommissionRate: 0.002, PositionFraction: 0.25, Execution: "same_close"}.Build()
		assert.True(t, got.InitialCapital.Equal(decimal.NewFromInt(50_000)))
		assert.True(t, got.CommissionRate.Equal(decimal.NewFromFloat(0.002)))
		assert.True(t, got.PositionFraction.Equal(decimal.NewFromFloat(0.25)))
		assert.Equal(t, sim.ExecSameClose, got.Execution)
	})
}

func TestResampleInterval(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"empty means off", "", false},
		{"weekly", "168h", false},
		{"garbage", "fortnight", true},
		{"negative", "-24h", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			iv, err := Data{Resample: tc.in}.ResampleInterval()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.in == "" {
				assert.Zero(t, iv)
			} else {
				assert.Positive(t, iv)
			}
		})
	}
}

func TestBuildSource(t *testing.T) {
	logger := zap.NewNop()

	t.Run("csv", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Source = SourceCSV
		cfg.Data.CSVPath = "bars.csv"
		src, err := cfg.BuildSource(logger)
		require.NoError(t, err)
		csvSrc, ok := src.(*marketdata.CSVSource)
		require.True(t, ok)
		assert.Equal(t, "bars.csv", csvSrc.Path)
	})

	t.Run("synthetic with bar override", func(t *testing.T) {
		cfg := Default()
		cfg.Data.SyntheticBars = 100
		src, err := cfg.BuildSource(logger)
		require.NoError(t, err)
		syn, ok := src.(*marketdata.SyntheticSource)
		require.True(t, ok)
		assert.Equal(t, 100, syn.Bars)
	})

	t.Run("binance gets cache wrapper", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Source = SourceBinance
		cfg.Data.CacheDir = t.TempDir()
		src, err := cfg.BuildSource(logger)
		require.NoError(t, err)
		cached, ok := src.(*marketdata.CachedSource)
		require.True(t, ok)
		_, ok = cached.Upstream.(*marketdata.BinanceSource)
		assert.True(t, ok)
	})

	t.Run("synthetic skips cache wrapper", func(t *testing.T) {
		cfg := Default()
		cfg.Data.CacheDir = t.TempDir()
		src, err := cfg.BuildSource(logger)
		require.NoError(t, err)
		_, ok := src.(*marketdata.SyntheticSource)
		assert.True(t, ok)
	})

	t.Run("resample wraps outermost", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Resample = "168h"
		src, err := cfg.BuildSource(logger)
		require.NoError(t, err)
		resampled, ok := src.(*marketdata.ResampledSource)
		require.True(t, ok)
		_, ok = resampled.Upstream.(*marketdata.SyntheticSource)
		assert.True(t, ok)
	})

	t.Run("unknown source", func(t *testing.T) {
		cfg := Default()
		cfg.Data.Source = "warehouse"
		_, err := cfg.BuildSource(logger)
		require.Error(t, err)
	})
}

func TestSentimentClient(t *testing.T) {
	t.Run("no endpoint is static", func(t *testing.T) {
		_, ok := Sentiment{}.Client(zap.NewNop()).(agents.Static)
		assert.True(t, ok)
	})

	t.Run("endpoint is http", func(t *testing.T) {
		_, ok := Sentiment{Endpoint: "http://localhost:9000", TimeoutSeconds: 5}.Client(zap.NewNop()).(*agents.HTTPClient)
		assert.True(t, ok)
	})
}

func TestLogBuild(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		logger, err := Log{Level: "warn"}.Build()
		require.NoError(t, err)
		defer logger.Sync()
		assert.False(t, logger.Core().Enabled(zap.InfoLevel))
		assert.True(t, logger.Core().Enabled(zap.WarnLevel))
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := Log{Level: "blaring"}.Build()
		require.Error(t, err)
	})
}
