package marketdata

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVSource loads bars from a local CSV file with columns
// timestamp,open,high,low,close,volume. Timestamps may be unix milliseconds,
// unix seconds, or RFC 3339. UTF-8 and UTF-16 byte order marks are handled.
type CSVSource struct {
	Path string
}

// Fetch reads the file, normalizes the series and clips it to [start, end].
// The symbol argument is ignored; a CSV file carries a single series.
func (s *CSVSource) Fetch(_ context.Context, _ string, start, end time.Time) ([]Bar, error) {
	bars, err := LoadCSV(s.Path)
	if err != nil {
		return nil, err
	}
	return Clip(bars, start, end), nil
}

// LoadCSV parses an OHLCV CSV file into a normalized bar series.
func LoadCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(decodeBOM(f)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	bars := make([]Bar, 0, 1_000)
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 6 {
			continue
		}
		// Header row if the first field is not a timestamp.
		if _, perr := parseTimestamp(rec[0]); perr != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("csv line %d: bad timestamp %q", line, rec[0])
		}

		bar, err := parseBarRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	bars = Normalize(bars)
	if err := ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseBarRecord(rec []string) (Bar, error) {
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return Bar{}, err
	}
	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		v, err := decimal.NewFromString(strings.TrimSpace(rec[i+1]))
		if err != nil {
			return Bar{}, fmt.Errorf("bad numeric field %q: %w", rec[i+1], err)
		}
		fields[i] = v
	}
	return Bar{
		Timestamp: ts,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// parseTimestamp accepts unix milliseconds, unix seconds, date-only and
// RFC 3339 forms. Millisecond values are distinguished from seconds by
// magnitude (anything past year 2603 in seconds is treated as milliseconds).
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 20_000_000_000 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// decodeBOM wraps r with a UTF-16 decoder when a UTF-16 BOM is present, so
// exports from spreadsheet tools load unchanged. UTF-8 input passes through
// (the loader strips a plain UTF-8 BOM from the first field).
func decodeBOM(f *os.File) io.Reader {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

// WriteCSV writes bars in the canonical timestamp_ms,open,high,low,close,volume
// layout understood by LoadCSV.
func WriteCSV(path string, bars []Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp_ms", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			strconv.FormatInt(b.Timestamp.UnixMilli(), 10),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
