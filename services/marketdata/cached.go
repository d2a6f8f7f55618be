package marketdata

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"
)

// CachedSource puts the Parquet bar cache in front of an upstream source. A
// cache hit skips the network entirely; after a miss the fetched bars are
// saved best-effort, so a broken cache degrades to plain fetching.
type CachedSource struct {
	Upstream Source
	Store    *Store
	Interval string
	logger   *zap.Logger
}

// NewCachedSource accepts a nil logger.
func NewCachedSource(upstream Source, store *Store, interval string, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		Upstream: upstream,
		Store:    store,
		Interval: interval,
		logger:   logger,
	}
}

// Fetch serves bars from the cache when it has any for the range, otherwise
// from the upstream source.
func (c *CachedSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	cached, err := c.Store.Load(symbol, c.Interval, start, end)
	if err == nil && len(cached) > 0 {
		c.logger.Info("bar cache hit",
			zap.String("symbol", symbol),
			zap.String("interval", c.Interval),
			zap.Int("bars", len(cached)),
		)
		return cached, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("bar cache read failed", zap.String("symbol", symbol), zap.Error(err))
	}

	bars, err := c.Upstream.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if saveErr := c.Store.Save(symbol, c.Interval, bars); saveErr != nil {
		c.logger.Warn("bar cache write failed", zap.String("symbol", symbol), zap.Error(saveErr))
	}
	return bars, nil
}
