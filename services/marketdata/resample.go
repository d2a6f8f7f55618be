package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Resample aggregates bars into coarser buckets aligned to the Unix epoch.
// Each bucket takes the first open, the highest high, the lowest low, the
// last close and the summed volume. The bucket start becomes the bar
// timestamp. Input is normalized first so partial ordering does not leak
// into the aggregates.
func Resample(bars []Bar, interval time.Duration) ([]Bar, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("resample interval must be positive, got %s", interval)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	src := Normalize(bars)
	step := interval.Milliseconds()

	buckets := make(map[int64]*Bar)
	order := make([]int64, 0)

	for _, b := range src {
		start := (b.Timestamp.UnixMilli() / step) * step
		agg, ok := buckets[start]
		if !ok {
			nb := b
			nb.Timestamp = time.UnixMilli(start).UTC()
			buckets[start] = &nb
			order = append(order, start)
			continue
		}
		if b.High.GreaterThan(agg.High) {
			agg.High = b.High
		}
		if b.Low.LessThan(agg.Low) {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Volume = agg.Volume.Add(b.Volume)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]Bar, 0, len(order))
	for _, start := range order {
		out = append(out, *buckets[start])
	}
	return out, nil
}

// ResampledSource aggregates everything its upstream returns to a coarser
// interval, so a daily feed can drive a weekly research run.
type ResampledSource struct {
	Upstream Source
	Interval time.Duration
}

func (r *ResampledSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	bars, err := r.Upstream.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	return Resample(bars, r.Interval)
}
