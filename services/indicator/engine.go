package indicator

import (
	"fmt"

	"go.uber.org/zap"

	"quantlab/services/marketdata"
)

// InsufficientDataError reports an input series shorter than the largest
// lookback any requested indicator needs.
type InsufficientDataError struct {
	Indicator string
	Required  int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("indicator: %s needs %d bars, got %d", e.Indicator, e.Required, e.Got)
}

// Engine computes indicator columns for bar series.
type Engine struct {
	logger *zap.Logger
}

// NewEngine builds an Engine. A nil logger falls back to a no-op logger.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Compute enriches bars with one column set per spec. The series must be
// strictly increasing in time and long enough for the widest lookback; the
// input slice is copied, never modified. Two specs may not produce the same
// column name.
func (e *Engine) Compute(bars []marketdata.Bar, specs []Spec) (*Frame, error) {
	if err := marketdata.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("indicator: invalid series: %w", err)
	}

	maxLookback := 0
	widest := ""
	seen := make(map[string]string, len(specs)*2)
	for _, base := range BaseColumns() {
		seen[base] = "base series"
	}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if lb := s.Lookback(); lb > maxLookback {
			maxLookback = lb
			widest = s.Name()
		}
		for _, col := range s.Columns() {
			if owner, dup := seen[col]; dup {
				return nil, fmt.Errorf("indicator: column %q from %s already produced by %s", col, s.Name(), owner)
			}
			seen[col] = s.Name()
		}
	}
	if len(bars) < maxLookback {
		return nil, &InsufficientDataError{Indicator: widest, Required: maxLookback, Got: len(bars)}
	}

	n := len(bars)
	owned := make([]marketdata.Bar, n)
	copy(owned, bars)

	in := seriesInput{
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}
	for i, b := range owned {
		in.open[i] = b.Open.InexactFloat64()
		in.high[i] = b.High.InexactFloat64()
		in.low[i] = b.Low.InexactFloat64()
		in.close[i] = b.Close.InexactFloat64()
		in.volume[i] = b.Volume.InexactFloat64()
	}

	frame := &Frame{
		bars:    owned,
		names:   append([]string(nil), BaseColumns()...),
		columns: map[string][]float64{
			ColOpen:   in.open,
			ColHigh:   in.high,
			ColLow:    in.low,
			ColClose:  in.close,
			ColVolume: in.volume,
		},
	}

	for _, s := range specs {
		names := s.Columns()
		series := computeSpec(s, in)
		if len(series) != len(names) {
			return nil, fmt.Errorf("indicator: %s produced %d series for %d columns", s.Name(), len(series), len(names))
		}
		for i, name := range names {
			frame.names = append(frame.names, name)
			frame.columns[name] = series[i]
		}
	}

	e.logger.Debug("indicators computed",
		zap.Int("bars", n),
		zap.Int("specs", len(specs)),
		zap.Int("columns", len(frame.names)),
	)
	return frame, nil
}

type seriesInput struct {
	open, high, low, close, volume []float64
}

// computeSpec returns one series per name in s.Columns(), in the same order.
func computeSpec(s Spec, in seriesInput) [][]float64 {
	switch s.Kind {
	case KindSMA:
		return [][]float64{sma(in.close, s.Period)}
	case KindEMA:
		return [][]float64{ema(in.close, s.Period)}
	case KindRSI:
		return [][]float64{rsi(in.close, s.Period)}
	case KindMACD:
		line, sig, hist := macdSeries(in.close, s.Fast, s.Slow, s.Signal)
		return [][]float64{line, sig, hist}
	case KindBollinger:
		upper, middle, lower := bollinger(in.close, s.Period, s.Width)
		return [][]float64{upper, middle, lower}
	case KindATR:
		return [][]float64{atr(in.high, in.low, in.close, s.Period)}
	case KindADX:
		adxLine, plusDI, minusDI := adx(in.high, in.low, in.close, s.Period)
		return [][]float64{adxLine, plusDI, minusDI}
	case KindDonchian:
		upper, lower, middle := donchian(in.high, in.low, s.Period)
		return [][]float64{upper, lower, middle}
	case KindROC:
		return [][]float64{roc(in.close, s.Period)}
	case KindOBV:
		return [][]float64{obv(in.close, in.volume)}
	case KindStochastic:
		k, d := stochastic(in.high, in.low, in.close, s.KPeriod, s.KSmooth, s.DPeriod)
		return [][]float64{k, d}
	case KindVolatility:
		return [][]float64{volatility(in.close, s.Period)}
	case KindPriceChange:
		return [][]float64{pctChange(in.close)}
	case KindVolumeChange:
		return [][]float64{pctChange(in.volume)}
	case KindHighLowRange:
		return [][]float64{highLowRange(in.high, in.low, in.close)}
	case KindClosePosition:
		return [][]float64{closePosition(in.close, s.Period, s.Width)}
	default:
		return nil
	}
}
