package marketdata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// Store caches bar series as Parquet files under a data directory, one file
// per symbol and interval, so repeated research runs skip refetching.
type Store struct {
	DataDir string
}

// NewStore creates a Store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{DataDir: dataDir}
}

// barRecord is the on-disk Parquet schema. Prices are stored as float64;
// decimals are reconstructed on read, so the cache is a convenience layer,
// not the source of truth for money math.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func (s *Store) path(symbol, interval string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	return filepath.Join(s.DataDir, "bars", fmt.Sprintf("%s_%s.parquet", sym, interval))
}

// Save merges bars into the cache file for (symbol, interval), deduplicating
// by timestamp with new rows winning.
func (s *Store) Save(symbol, interval string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	path := s.path(symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	existing, err := readRecords(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read bar cache %s: %w", path, err)
	}

	seen := make(map[int64]barRecord, len(existing)+len(bars))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, b := range bars {
		seen[b.Timestamp.UnixMilli()] = barRecord{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume.InexactFloat64(),
		}
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	// Parquet rows are written in slice order; keep the series sorted.
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })

	if err := parquet.WriteFile(path, merged); err != nil {
		return fmt.Errorf("write bar cache %s: %w", path, err)
	}
	return nil
}

// Load reads cached bars for (symbol, interval) clipped to [start, end].
// A missing cache file returns os.ErrNotExist.
func (s *Store) Load(symbol, interval string, start, end time.Time) ([]Bar, error) {
	records, err := readRecords(s.path(symbol, interval))
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			Volume:    decimal.NewFromFloat(r.Volume),
		})
	}
	return Clip(Normalize(bars), start, end), nil
}

func readRecords(path string) ([]barRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[barRecord](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
