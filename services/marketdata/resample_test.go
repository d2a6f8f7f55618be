package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResample(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fiveMin := func(n int) time.Time { return base.Add(time.Duration(n) * 5 * time.Minute) }

	bars := []Bar{
		testBar(fiveMin(0), 100, 101, 99, 100.5, 10),
		testBar(fiveMin(1), 100.5, 103, 100, 102, 20),
		testBar(fiveMin(2), 102, 102.5, 98, 99, 30),
		testBar(fiveMin(3), 99, 99.5, 97, 98, 5),
		testBar(fiveMin(4), 98, 104, 98, 103, 15),
	}

	got, err := Resample(bars, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// First bucket covers bars 0..2.
	assert.True(t, got[0].Timestamp.Equal(base))
	assertDecimal(t, "100", got[0].Open)
	assertDecimal(t, "103", got[0].High)
	assertDecimal(t, "98", got[0].Low)
	assertDecimal(t, "99", got[0].Close)
	assertDecimal(t, "60", got[0].Volume)

	// Second bucket covers bars 3..4.
	assert.True(t, got[1].Timestamp.Equal(base.Add(15*time.Minute)))
	assertDecimal(t, "99", got[1].Open)
	assertDecimal(t, "104", got[1].High)
	assertDecimal(t, "97", got[1].Low)
	assertDecimal(t, "103", got[1].Close)
	assertDecimal(t, "20", got[1].Volume)

	require.NoError(t, ValidateSeries(got))
}

func TestResampleNormalizesInput(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		testBar(base.Add(5*time.Minute), 101, 102, 100, 101.5, 10),
		testBar(base, 100, 101, 99, 100.5, 20),
	}

	got, err := Resample(bars, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	// Open must come from the chronologically first bar.
	assertDecimal(t, "100", got[0].Open)
	assertDecimal(t, "101.5", got[0].Close)
}

func TestResampleRejectsBadInterval(t *testing.T) {
	_, err := Resample([]Bar{testBar(day(0), 100, 101, 99, 100, 10)}, 0)
	assert.Error(t, err)
}

func TestResampleEmptyInput(t *testing.T) {
	got, err := Resample(nil, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResampledSource(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fiveMin := func(n int) time.Time { return base.Add(time.Duration(n) * 5 * time.Minute) }
	upstream := &countingSource{bars: []Bar{
		testBar(fiveMin(0), 100, 101, 99, 100.5, 10),
		testBar(fiveMin(1), 100.5, 103, 100, 102, 20),
		testBar(fiveMin(2), 102, 102.5, 98, 99, 30),
	}}

	src := &ResampledSource{Upstream: upstream, Interval: 15 * time.Minute}
	got, err := src.Fetch(context.Background(), "BTCUSDT", fiveMin(0), fiveMin(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assertDecimal(t, "100", got[0].Open)
	assertDecimal(t, "99", got[0].Close)
	assertDecimal(t, "60", got[0].Volume)
	assert.Equal(t, 1, upstream.calls)
}
