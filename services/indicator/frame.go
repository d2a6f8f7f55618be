package indicator

import (
	"math"
	"time"

	"quantlab/services/marketdata"
)

// Base column names every Frame carries.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// BaseColumns lists the raw OHLCV columns, in frame order.
func BaseColumns() []string {
	return []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}
}

// Frame is a bar series enriched with named indicator columns. A Frame is
// immutable after construction and safe for concurrent readers; the
// simulator, the screening pool and the signal generator all share one.
type Frame struct {
	bars    []marketdata.Bar
	names   []string
	columns map[string][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.bars) }

// Bar returns the raw bar at row i.
func (f *Frame) Bar(i int) marketdata.Bar { return f.bars[i] }

// Time returns the timestamp of row i.
func (f *Frame) Time(i int) time.Time { return f.bars[i].Timestamp }

// Columns lists all column names, base columns first, in computation order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether the frame carries the named column.
func (f *Frame) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns a copy of the named column's values, or false when the
// column does not exist.
func (f *Frame) Column(name string) ([]float64, bool) {
	values, ok := f.columns[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, true
}

// Value returns the named value at row i. The second return is false when
// the column does not exist, the row is out of range, or the cell is a
// warm-up NaN.
func (f *Frame) Value(name string, i int) (float64, bool) {
	values, ok := f.columns[name]
	if !ok || i < 0 || i >= len(values) {
		return math.NaN(), false
	}
	v := values[i]
	if math.IsNaN(v) {
		return v, false
	}
	return v, true
}

// Defined reports whether every named column has a defined value at row i.
// With no names it only checks that i is in range.
func (f *Frame) Defined(i int, names ...string) bool {
	if i < 0 || i >= len(f.bars) {
		return false
	}
	for _, name := range names {
		if _, ok := f.Value(name, i); !ok {
			return false
		}
	}
	return true
}

// Row returns a single-row view of the frame for rule evaluation.
func (f *Frame) Row(i int) Row { return Row{frame: f, index: i} }

// Row is one frame row. It satisfies the rule evaluator's row contract.
type Row struct {
	frame *Frame
	index int
}

// Value reads one named value from the row.
func (r Row) Value(column string) (float64, bool) {
	return r.frame.Value(column, r.index)
}
