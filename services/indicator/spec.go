// Package indicator computes technical indicator columns over OHLCV bar
// series. Every value is a pure function of the bars up to and including its
// own row, so enriched series never look ahead. Warm-up rows, where a
// trailing window is still incomplete, carry NaN and read as undefined.
package indicator

import "fmt"

// Kind identifies an indicator family.
type Kind string

// Supported indicator kinds.
const (
	KindSMA           Kind = "sma"
	KindEMA           Kind = "ema"
	KindRSI           Kind = "rsi"
	KindMACD          Kind = "macd"
	KindBollinger     Kind = "bollinger"
	KindATR           Kind = "atr"
	KindADX           Kind = "adx"
	KindDonchian      Kind = "donchian"
	KindROC           Kind = "roc"
	KindOBV           Kind = "obv"
	KindStochastic    Kind = "stochastic"
	KindVolatility    Kind = "volatility"
	KindPriceChange   Kind = "price_change"
	KindVolumeChange  Kind = "volume_change"
	KindHighLowRange  Kind = "high_low_range"
	KindClosePosition Kind = "close_position"
)

// Spec is one indicator request: a kind plus its parameters. Parameters a
// kind does not use are ignored. Build specs with the constructors below;
// hand-rolled specs must pass Validate.
type Spec struct {
	Kind    Kind
	Period  int
	Fast    int
	Slow    int
	Signal  int
	KPeriod int
	KSmooth int
	DPeriod int
	Width   float64
}

// SMA requests a simple moving average of the close.
func SMA(period int) Spec { return Spec{Kind: KindSMA, Period: period} }

// EMA requests an exponential moving average of the close.
func EMA(period int) Spec { return Spec{Kind: KindEMA, Period: period} }

// RSI requests Wilder's relative strength index.
func RSI(period int) Spec { return Spec{Kind: KindRSI, Period: period} }

// MACD requests the moving average convergence divergence line, signal and
// histogram.
func MACD(fast, slow, signal int) Spec {
	return Spec{Kind: KindMACD, Fast: fast, Slow: slow, Signal: signal}
}

// Bollinger requests Bollinger bands width standard deviations around the
// period SMA.
func Bollinger(period int, width float64) Spec {
	return Spec{Kind: KindBollinger, Period: period, Width: width}
}

// ATR requests Wilder's average true range.
func ATR(period int) Spec { return Spec{Kind: KindATR, Period: period} }

// ADX requests the average directional index with its +DI/-DI components.
func ADX(period int) Spec { return Spec{Kind: KindADX, Period: period} }

// Donchian requests the Donchian channel extremes and midline.
func Donchian(period int) Spec { return Spec{Kind: KindDonchian, Period: period} }

// ROC requests the rate of change of the close, in percent.
func ROC(period int) Spec { return Spec{Kind: KindROC, Period: period} }

// OBV requests on-balance volume.
func OBV() Spec { return Spec{Kind: KindOBV} }

// Stochastic requests the slow stochastic oscillator: raw %K over kPeriod,
// smoothed by kSmooth, with %D a dPeriod average of the smoothed %K.
func Stochastic(kPeriod, kSmooth, dPeriod int) Spec {
	return Spec{Kind: KindStochastic, KPeriod: kPeriod, KSmooth: kSmooth, DPeriod: dPeriod}
}

// Volatility requests the annualized rolling standard deviation of one-bar
// returns.
func Volatility(period int) Spec { return Spec{Kind: KindVolatility, Period: period} }

// PriceChange requests the one-bar close-to-close return.
func PriceChange() Spec { return Spec{Kind: KindPriceChange} }

// VolumeChange requests the one-bar volume change.
func VolumeChange() Spec { return Spec{Kind: KindVolumeChange} }

// HighLowRange requests the bar range (high-low) relative to the close.
func HighLowRange() Spec { return Spec{Kind: KindHighLowRange} }

// ClosePosition requests the close's position inside its Bollinger band,
// 0 at the lower band and 1 at the upper.
func ClosePosition(period int, width float64) Spec {
	return Spec{Kind: KindClosePosition, Period: period, Width: width}
}

// DefaultSpecs is the full indicator set the research pipeline computes when
// no explicit selection is configured.
func DefaultSpecs() []Spec {
	return []Spec{
		SMA(5), SMA(10), SMA(20), SMA(50), SMA(200),
		EMA(5), EMA(10), EMA(20), EMA(50),
		MACD(12, 26, 9),
		RSI(14),
		ADX(14),
		Bollinger(20, 2),
		ATR(14),
		Donchian(20),
		ROC(10),
		OBV(),
		Stochastic(5, 3, 3),
		Volatility(20),
		PriceChange(),
		VolumeChange(),
		HighLowRange(),
		ClosePosition(20, 2),
	}
}

// Name is the spec's human-readable identity, used in errors and logs.
func (s Spec) Name() string {
	switch s.Kind {
	case KindMACD:
		return fmt.Sprintf("macd(%d,%d,%d)", s.Fast, s.Slow, s.Signal)
	case KindStochastic:
		return fmt.Sprintf("stochastic(%d,%d,%d)", s.KPeriod, s.KSmooth, s.DPeriod)
	case KindBollinger:
		return fmt.Sprintf("bollinger(%d,%g)", s.Period, s.Width)
	case KindClosePosition:
		return fmt.Sprintf("close_position(%d,%g)", s.Period, s.Width)
	case KindOBV, KindPriceChange, KindVolumeChange, KindHighLowRange:
		return string(s.Kind)
	default:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Period)
	}
}

// Validate rejects non-positive or inconsistent parameters.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindSMA, KindEMA, KindRSI, KindATR, KindADX, KindDonchian, KindROC, KindVolatility:
		if s.Period <= 0 {
			return fmt.Errorf("indicator: %s period must be positive, got %d", s.Kind, s.Period)
		}
	case KindMACD:
		if s.Fast <= 0 || s.Slow <= 0 || s.Signal <= 0 {
			return fmt.Errorf("indicator: macd periods must be positive, got (%d,%d,%d)", s.Fast, s.Slow, s.Signal)
		}
		if s.Fast >= s.Slow {
			return fmt.Errorf("indicator: macd fast period %d must be below slow period %d", s.Fast, s.Slow)
		}
	case KindBollinger, KindClosePosition:
		if s.Period <= 0 {
			return fmt.Errorf("indicator: %s period must be positive, got %d", s.Kind, s.Period)
		}
		if s.Width <= 0 {
			return fmt.Errorf("indicator: %s width must be positive, got %g", s.Kind, s.Width)
		}
	case KindStochastic:
		if s.KPeriod <= 0 || s.KSmooth <= 0 || s.DPeriod <= 0 {
			return fmt.Errorf("indicator: stochastic periods must be positive, got (%d,%d,%d)", s.KPeriod, s.KSmooth, s.DPeriod)
		}
	case KindOBV, KindPriceChange, KindVolumeChange, KindHighLowRange:
	default:
		return fmt.Errorf("indicator: unknown kind %q", s.Kind)
	}
	return nil
}

// Columns lists the column names the spec produces, in output order.
func (s Spec) Columns() []string {
	switch s.Kind {
	case KindSMA:
		return []string{fmt.Sprintf("sma_%d", s.Period)}
	case KindEMA:
		return []string{fmt.Sprintf("ema_%d", s.Period)}
	case KindRSI:
		return []string{fmt.Sprintf("rsi_%d", s.Period)}
	case KindMACD:
		return []string{"macd", "macd_signal", "macd_hist"}
	case KindBollinger:
		return []string{
			fmt.Sprintf("bb_upper_%d", s.Period),
			fmt.Sprintf("bb_middle_%d", s.Period),
			fmt.Sprintf("bb_lower_%d", s.Period),
		}
	case KindATR:
		return []string{fmt.Sprintf("atr_%d", s.Period)}
	case KindADX:
		return []string{
			fmt.Sprintf("adx_%d", s.Period),
			fmt.Sprintf("plus_di_%d", s.Period),
			fmt.Sprintf("minus_di_%d", s.Period),
		}
	case KindDonchian:
		return []string{
			fmt.Sprintf("donchian_upper_%d", s.Period),
			fmt.Sprintf("donchian_lower_%d", s.Period),
			fmt.Sprintf("donchian_middle_%d", s.Period),
		}
	case KindROC:
		return []string{fmt.Sprintf("roc_%d", s.Period)}
	case KindOBV:
		return []string{"obv"}
	case KindStochastic:
		return []string{"stoch_k", "stoch_d"}
	case KindVolatility:
		return []string{fmt.Sprintf("volatility_%d", s.Period)}
	case KindPriceChange:
		return []string{"price_change"}
	case KindVolumeChange:
		return []string{"volume_change"}
	case KindHighLowRange:
		return []string{"high_low_range"}
	case KindClosePosition:
		return []string{"close_position"}
	default:
		return nil
	}
}

// Lookback is the number of bars needed before every column the spec
// produces has at least one defined value.
func (s Spec) Lookback() int {
	switch s.Kind {
	case KindSMA, KindEMA, KindBollinger, KindDonchian, KindClosePosition:
		return s.Period
	case KindRSI, KindATR, KindROC, KindVolatility:
		return s.Period + 1
	case KindMACD:
		return s.Slow + s.Signal - 1
	case KindADX:
		return 2 * s.Period
	case KindStochastic:
		return s.KPeriod + s.KSmooth + s.DPeriod - 2
	case KindOBV, KindHighLowRange:
		return 1
	case KindPriceChange, KindVolumeChange:
		return 2
	default:
		return 0
	}
}
