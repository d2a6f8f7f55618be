// Package config is the YAML-backed configuration for the research pipeline
// binaries: data source selection, indicator set, simulation and evaluation
// parameters, campaign budget, sentiment endpoint, server and exports.
// Secrets come from the environment, never from the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"quantlab/services/agents"
	"quantlab/services/campaign"
	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/perf"
	"quantlab/services/sim"
)

// Data source names.
const (
	SourceCSV       = "csv"
	SourceBinance   = "binance"
	SourceAlpaca    = "alpaca"
	SourceSynthetic = "synthetic"
)

// Config is the top-level configuration.
type Config struct {
	Log        Log         `yaml:"log"`
	Data       Data        `yaml:"data"`
	Indicators []Indicator `yaml:"indicators"`
	Sim        Sim         `yaml:"sim"`
	Eval       Eval        `yaml:"eval"`
	Campaign   Campaign    `yaml:"campaign"`
	Sentiment  Sentiment   `yaml:"sentiment"`
	Server     Server      `yaml:"server"`
	Export     Export      `yaml:"export"`
}

// Log configures the application logger.
type Log struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Build constructs the zap logger this config describes.
func (l Log) Build() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		level, err := zapcore.ParseLevel(l.Level)
		if err != nil {
			return nil, fmt.Errorf("config: bad log level %q: %w", l.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	return cfg.Build()
}

// Data selects and parameterizes the market data source.
type Data struct {
	Source        string  `yaml:"source"` // csv | binance | alpaca | synthetic
	Symbol        string  `yaml:"symbol"`
	AssetType     string  `yaml:"asset_type"`
	Start         string  `yaml:"start"` // YYYY-MM-DD
	End           string  `yaml:"end"`
	Interval      string  `yaml:"interval"` // bar interval, e.g. 1d
	Resample      string  `yaml:"resample"` // optional Go duration, e.g. 168h
	CSVPath       string  `yaml:"csv_path"`
	CacheDir      string  `yaml:"cache_dir"`
	SyntheticSeed int64   `yaml:"synthetic_seed"`
	SyntheticBars int     `yaml:"synthetic_bars"`
	Alpaca        Alpaca  `yaml:"alpaca"`
	Binance       Binance `yaml:"binance"`
}

// Alpaca holds credentials and endpoint for the Alpaca data API. Credentials
// normally arrive via APCA_API_KEY_ID / APCA_API_SECRET_KEY.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	Feed      string `yaml:"feed"`
}

// Binance holds the klines endpoint override.
type Binance struct {
	BaseURL string `yaml:"base_url"`
}

// StartTime parses the configured start date.
func (d Data) StartTime() (time.Time, error) {
	return parseDate("data.start", d.Start)
}

// EndTime parses the configured end date.
func (d Data) EndTime() (time.Time, error) {
	return parseDate("data.end", d.End)
}

// ResampleInterval parses the optional resample duration; zero means off.
func (d Data) ResampleInterval() (time.Duration, error) {
	if d.Resample == "" {
		return 0, nil
	}
	iv, err := time.ParseDuration(d.Resample)
	if err != nil || iv <= 0 {
		return 0, fmt.Errorf("config: bad data.resample %q", d.Resample)
	}
	return iv, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("config: %s is required", field)
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: bad %s %q: %w", field, value, err)
	}
	return t.UTC(), nil
}

// Indicator is one indicator request in YAML form. Zero parameters take the
// conventional defaults (MACD 12/26/9, stochastic 5/3/3, band width 2,
// band period 20).
type Indicator struct {
	Kind    string  `yaml:"kind"`
	Period  int     `yaml:"period"`
	Fast    int     `yaml:"fast"`
	Slow    int     `yaml:"slow"`
	Signal  int     `yaml:"signal"`
	KPeriod int     `yaml:"k_period"`
	KSmooth int     `yaml:"k_smooth"`
	DPeriod int     `yaml:"d_period"`
	Width   float64 `yaml:"width"`
}

// Spec converts the YAML form to an indicator spec, applying defaults.
func (i Indicator) Spec() indicator.Spec {
	spec := indicator.Spec{
		Kind:    indicator.Kind(i.Kind),
		Period:  i.Period,
		Fast:    i.Fast,
		Slow:    i.Slow,
		Signal:  i.Signal,
		KPeriod: i.KPeriod,
		KSmooth: i.KSmooth,
		DPeriod: i.DPeriod,
		Width:   i.Width,
	}
	switch spec.Kind {
	case indicator.KindMACD:
		if spec.Fast == 0 && spec.Slow == 0 && spec.Signal == 0 {
			spec.Fast, spec.Slow, spec.Signal = 12, 26, 9
		}
	case indicator.KindStochastic:
		if spec.KPeriod == 0 && spec.KSmooth == 0 && spec.DPeriod == 0 {
			spec.KPeriod, spec.KSmooth, spec.DPeriod = 5, 3, 3
		}
	case indicator.KindBollinger, indicator.KindClosePosition:
		if spec.Period == 0 {
			spec.Period = 20
		}
		if spec.Width == 0 {
			spec.Width = 2
		}
	}
	return spec
}

// Sim parameterizes the simulator. Zero fields keep the simulator defaults.
type Sim struct {
	InitialCapital   float64 `yaml:"initial_capital"`
	CommissionRate   float64 `yaml:"commission_rate"`
	PositionFraction float64 `yaml:"position_fraction"`
	Execution        string  `yaml:"execution"` // next_open | same_close
}

// Build converts to a simulator config.
func (s Sim) Build() sim.Config {
	cfg := sim.DefaultConfig()
	if s.InitialCapital > 0 {
		cfg.InitialCapital = decimal.NewFromFloat(s.InitialCapital)
	}
	if s.CommissionRate > 0 {
		cfg.CommissionRate = decimal.NewFromFloat(s.CommissionRate)
	}
	if s.PositionFraction > 0 {
		cfg.PositionFraction = decimal.NewFromFloat(s.PositionFraction)
	}
	if s.Execution != "" {
		cfg.Execution = sim.ExecPolicy(s.Execution)
	}
	return cfg
}

// Eval parameterizes the performance evaluator and its predicate.
type Eval struct {
	BarsPerYear float64        `yaml:"bars_per_year"`
	Predicate   perf.Predicate `yaml:"predicate"`
}

// Campaign bounds the retry loop.
type Campaign struct {
	MaxAttempts int   `yaml:"max_attempts"`
	Seed        int64 `yaml:"seed"`
	Workers     int   `yaml:"workers"`
}

// Config converts to a campaign config.
func (c Campaign) Config(predicate perf.Predicate) campaign.Config {
	return campaign.Config{MaxAttempts: c.MaxAttempts, Predicate: predicate}
}

// Sentiment selects the sentiment collaborator.
type Sentiment struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Client builds the collaborator client: HTTP when an endpoint is
// configured, otherwise a static neutral stand-in.
func (s Sentiment) Client(logger *zap.Logger) agents.Client {
	if s.Endpoint == "" {
		return agents.Static{}
	}
	return agents.NewHTTPClient(s.Endpoint, time.Duration(s.TimeoutSeconds)*time.Second, logger)
}

// Server configures the HTTP API binary.
type Server struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin mode: release | debug | test
}

// Export selects which artifacts a run writes under Dir.
type Export struct {
	Dir    string `yaml:"dir"`
	Trades bool   `yaml:"trades"`
	Equity bool   `yaml:"equity"`
	Frame  bool   `yaml:"frame"`
}

// Default is the runnable out-of-the-box configuration: a deterministic
// synthetic series, the default indicator set, and the default predicate.
func Default() *Config {
	return &Config{
		Log:  Log{Level: "info"},
		Data: Data{
			Source:        SourceSynthetic,
			Symbol:        "SYN",
			AssetType:     "synthetic",
			Start:         "2022-01-01",
			End:           "2024-01-01",
			Interval:      "1d",
			SyntheticSeed: 42,
			SyntheticBars: 750,
		},
		Sim: Sim{
			InitialCapital:   100_000,
			CommissionRate:   0.001,
			PositionFraction: 0.10,
			Execution:        string(sim.ExecNextOpen),
		},
		Eval:      Eval{BarsPerYear: 252, Predicate: perf.DefaultPredicate()},
		Campaign:  Campaign{MaxAttempts: 5, Seed: 42, Workers: 4},
		Sentiment: Sentiment{TimeoutSeconds: 30},
		Server:    Server{Addr: ":8080", Mode: "release"},
		Export:    Export{Dir: "exports"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv copies well-known environment variables over cfg. Canonical
// Alpaca SDK names win over the project-prefixed ones.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY_ID"); v != "" {
		cfg.Data.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET_KEY"); v != "" {
		cfg.Data.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Data.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Data.Alpaca.APISecret = v
	}
	if v := os.Getenv("QUANTLAB_SENTIMENT_ENDPOINT"); v != "" {
		cfg.Sentiment.Endpoint = v
	}
	if v := os.Getenv("QUANTLAB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate reports every problem it finds, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.CSVPath == "" {
			add(errors.New("config: csv source needs data.csv_path"))
		}
	case SourceAlpaca:
		if c.Data.Alpaca.APIKey == "" || c.Data.Alpaca.APISecret == "" {
			add(errors.New("config: alpaca source needs credentials (APCA_API_KEY_ID / APCA_API_SECRET_KEY)"))
		}
	case SourceBinance, SourceSynthetic:
	default:
		add(fmt.Errorf("config: unknown data source %q", c.Data.Source))
	}

	if c.Data.Symbol == "" {
		add(errors.New("config: data.symbol is required"))
	}
	start, startErr := c.Data.StartTime()
	add(startErr)
	end, endErr := c.Data.EndTime()
	add(endErr)
	if startErr == nil && endErr == nil && !start.Before(end) {
		add(fmt.Errorf("config: data.start %s must precede data.end %s", c.Data.Start, c.Data.End))
	}
	if _, err := c.Data.ResampleInterval(); err != nil {
		add(err)
	}

	for i, ind := range c.Indicators {
		if err := ind.Spec().Validate(); err != nil {
			add(fmt.Errorf("config: indicators[%d]: %w", i, err))
		}
	}

	if err := c.Sim.Build().Validate(); err != nil {
		add(fmt.Errorf("config: %w", err))
	}
	if c.Eval.BarsPerYear < 0 {
		add(fmt.Errorf("config: eval.bars_per_year must not be negative, got %v", c.Eval.BarsPerYear))
	}
	if c.Campaign.MaxAttempts <= 0 {
		add(fmt.Errorf("config: campaign.max_attempts must be positive, got %d", c.Campaign.MaxAttempts))
	}
	if c.Campaign.Workers < 0 {
		add(fmt.Errorf("config: campaign.workers must not be negative, got %d", c.Campaign.Workers))
	}
	if c.Sentiment.TimeoutSeconds < 0 {
		add(fmt.Errorf("config: sentiment.timeout_seconds must not be negative, got %d", c.Sentiment.TimeoutSeconds))
	}

	return errors.Join(errs...)
}

// IndicatorSpecs resolves the configured indicator set; an empty list means
// the default research set.
func (c *Config) IndicatorSpecs() []indicator.Spec {
	if len(c.Indicators) == 0 {
		return indicator.DefaultSpecs()
	}
	specs := make([]indicator.Spec, len(c.Indicators))
	for i, ind := range c.Indicators {
		specs[i] = ind.Spec()
	}
	return specs
}

// BuildSource constructs the configured market data source, wrapped with the
// Parquet cache for network sources when a cache dir is set, and with
// resampling when requested.
func (c *Config) BuildSource(logger *zap.Logger) (marketdata.Source, error) {
	var src marketdata.Source
	switch c.Data.Source {
	case SourceCSV:
		src = &marketdata.CSVSource{Path: c.Data.CSVPath}
	case SourceBinance:
		b := marketdata.NewBinanceSource(c.Data.Interval, logger)
		if c.Data.Binance.BaseURL != "" {
			b.BaseURL = c.Data.Binance.BaseURL
		}
		src = b
	case SourceAlpaca:
		src = marketdata.NewAlpacaSource(marketdata.AlpacaConfig{
			APIKey:    c.Data.Alpaca.APIKey,
			APISecret: c.Data.Alpaca.APISecret,
			BaseURL:   c.Data.Alpaca.BaseURL,
			Feed:      c.Data.Alpaca.Feed,
		}, logger)
	case SourceSynthetic:
		s := marketdata.NewSyntheticSource(c.Data.SyntheticSeed)
		if c.Data.SyntheticBars > 0 {
			s.Bars = c.Data.SyntheticBars
		}
		src = s
	default:
		return nil, fmt.Errorf("config: unknown data source %q", c.Data.Source)
	}

	if c.Data.CacheDir != "" && (c.Data.Source == SourceBinance || c.Data.Source == SourceAlpaca) {
		src = marketdata.NewCachedSource(src, marketdata.NewStore(c.Data.CacheDir), c.Data.Interval, logger)
	}

	resample, err := c.Data.ResampleInterval()
	if err != nil {
		return nil, err
	}
	if resample > 0 {
		src = &marketdata.ResampledSource{Upstream: src, Interval: resample}
	}
	return src, nil
}
