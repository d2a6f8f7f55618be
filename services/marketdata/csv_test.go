package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWriteLoadCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	want := []Bar{
		testBar(day(0), 100, 101.5, 99.25, 100.5, 1000),
		testBar(day(1), 100.5, 102, 100, 101, 1200),
		testBar(day(2), 101, 103, 100.75, 102.5, 900),
	}

	require.NoError(t, WriteCSV(path, want))

	got, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, got[i].Timestamp.Equal(want[i].Timestamp), "bar %d timestamp", i)
		assert.True(t, got[i].Open.Equal(want[i].Open), "bar %d open", i)
		assert.True(t, got[i].High.Equal(want[i].High), "bar %d high", i)
		assert.True(t, got[i].Low.Equal(want[i].Low), "bar %d low", i)
		assert.True(t, got[i].Close.Equal(want[i].Close), "bar %d close", i)
		assert.True(t, got[i].Volume.Equal(want[i].Volume), "bar %d volume", i)
	}
}

func TestLoadCSVTimestampFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantTs  time.Time
	}{
		{
			name:    "unix seconds with header",
			content: "timestamp,open,high,low,close,volume\n1704067200,100,101,99,100.5,10\n",
			wantTs:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "unix milliseconds",
			content: "1704067200000,100,101,99,100.5,10\n",
			wantTs:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "date only",
			content: "2024-01-01,100,101,99,100.5,10\n",
			wantTs:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "rfc3339",
			content: "2024-01-01T00:00:00Z,100,101,99,100.5,10\n",
			wantTs:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadCSV(writeTempCSV(t, tt.content))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.True(t, got[0].Timestamp.Equal(tt.wantTs), "got %s, want %s", got[0].Timestamp, tt.wantTs)
			assertDecimal(t, "100.5", got[0].Close)
		})
	}
}

func TestLoadCSVUTF16(t *testing.T) {
	text := "timestamp,open,high,low,close,volume\n1704067200000,100,101,99,100.5,10\n"
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, _, err := transform.String(enc, text)
	require.NoError(t, err)

	got, err := LoadCSV(writeTempCSV(t, encoded))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assertDecimal(t, "100", got[0].Open)
}

func TestLoadCSVRejectsInvalidBars(t *testing.T) {
	// High below low.
	_, err := LoadCSV(writeTempCSV(t, "1704067200000,100,99,101,100,10\n"))
	assert.Error(t, err)

	// Garbage timestamp past the header row.
	_, err = LoadCSV(writeTempCSV(t, "1704067200000,100,101,99,100,10\nnot-a-time,100,101,99,100,10\n"))
	assert.Error(t, err)
}

func TestCSVSourceFetchClips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	bars := []Bar{
		testBar(day(0), 100, 101, 99, 100, 10),
		testBar(day(1), 100, 101, 99, 100, 10),
		testBar(day(2), 100, 101, 99, 100, 10),
	}
	require.NoError(t, WriteCSV(path, bars))

	src := &CSVSource{Path: path}
	got, err := src.Fetch(context.Background(), "ANY", day(1), day(2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Equal(day(1)))
}
