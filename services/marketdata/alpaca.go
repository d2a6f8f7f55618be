package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlpacaConfig carries the credentials and options for the Alpaca market
// data API.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string // "sip" or "iex"; defaults to "iex"
}

// AlpacaSource fetches daily bars for US equities from Alpaca.
type AlpacaSource struct {
	client *marketdata.Client
	feed   string
	logger *zap.Logger
}

// NewAlpacaSource builds a source from credentials. The data URL may be left
// empty to use the client default.
func NewAlpacaSource(cfg AlpacaConfig, logger *zap.Logger) *AlpacaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	feed := cfg.Feed
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   feed,
		logger: logger,
	}
}

// Fetch downloads daily bars for symbol over [start, end].
func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	alpacaBars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(s.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca GetBars %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, Bar{
			Timestamp: ab.Timestamp.UTC(),
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    decimal.NewFromUint64(ab.Volume),
		})
	}

	bars = Normalize(bars)
	if err := ValidateSeries(bars); err != nil {
		return nil, err
	}
	s.logger.Info("alpaca fetch complete",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}
