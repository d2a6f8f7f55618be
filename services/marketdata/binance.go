package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const binanceKlinesLimit = 1000

// BinanceSource fetches spot klines from the public Binance REST API.
// Requests are paginated at 1000 bars and retried with exponential backoff
// on transient failures.
type BinanceSource struct {
	BaseURL  string
	Interval string // Binance interval token, e.g. "1d", "1h", "5m"
	Client   *http.Client

	MaxRetries int
	RetryBase  time.Duration

	logger *zap.Logger
}

// NewBinanceSource builds a source for the given interval ("1d" if empty).
func NewBinanceSource(interval string, logger *zap.Logger) *BinanceSource {
	if interval == "" {
		interval = "1d"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceSource{
		BaseURL:    "https://api.binance.com",
		Interval:   interval,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
		RetryBase:  500 * time.Millisecond,
		logger:     logger,
	}
}

// Fetch downloads [start, end) klines for symbol and returns a normalized,
// validated series.
func (s *BinanceSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	var bars []Bar
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()

	for cursor < endMs {
		page, err := s.fetchPage(ctx, symbol, cursor, endMs)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		bars = append(bars, page...)
		next := page[len(page)-1].Timestamp.UnixMilli() + 1
		if next <= cursor {
			break
		}
		cursor = next
		if len(page) < binanceKlinesLimit {
			break
		}
	}

	bars = Normalize(bars)
	if err := ValidateSeries(bars); err != nil {
		return nil, err
	}
	s.logger.Info("binance fetch complete",
		zap.String("symbol", symbol),
		zap.String("interval", s.Interval),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

func (s *BinanceSource) fetchPage(ctx context.Context, symbol string, startMs, endMs int64) ([]Bar, error) {
	q := url.Values{
		"symbol":    {symbol},
		"interval":  {s.Interval},
		"startTime": {strconv.FormatInt(startMs, 10)},
		"endTime":   {strconv.FormatInt(endMs, 10)},
		"limit":     {strconv.Itoa(binanceKlinesLimit)},
	}
	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", s.BaseURL, q.Encode())

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.RetryBase << (attempt - 1)
			s.logger.Warn("retrying binance request",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		page, err := s.doRequest(ctx, endpoint)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("binance klines for %s: %w", symbol, lastErr)
}

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func isRetryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		switch se.Status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true // network errors
}

func (s *BinanceSource) doRequest(ctx context.Context, endpoint string) ([]Bar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	// Klines rows: [openTimeMs, open, high, low, close, volume, ...]
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	bars := make([]Bar, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		fields := make([]decimal.Decimal, 5)
		ok := true
		for i := 0; i < 5; i++ {
			var str string
			if err := json.Unmarshal(row[i+1], &str); err != nil {
				ok = false
				break
			}
			v, err := decimal.NewFromString(str)
			if err != nil {
				ok = false
				break
			}
			fields[i] = v
		}
		if !ok {
			continue
		}
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(openMs).UTC(),
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	return bars, nil
}
