package indicator

import "math"

// annualizationPeriods converts per-bar return volatility to an annual
// figure, assuming daily bars.
const annualizationPeriods = 252

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// firstDefined returns the index of the first non-NaN value, or len(values).
func firstDefined(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(values)
}

// sma is the mean of the trailing period values. Leading NaNs in the input,
// a prior indicator's warm-up, shift the first defined output right.
func sma(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	start := firstDefined(values)
	if len(values)-start < period {
		return out
	}
	sum := 0.0
	for i := start; i < len(values); i++ {
		sum += values[i]
		if i-start >= period {
			sum -= values[i-period]
		}
		if i-start >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// ema is an SMA-seeded exponential moving average with alpha = 2/(period+1).
func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	start := firstDefined(values)
	if len(values)-start < period {
		return out
	}
	seed := 0.0
	for i := start; i < start+period; i++ {
		seed += values[i]
	}
	out[start+period-1] = seed / float64(period)
	alpha := 2.0 / float64(period+1)
	for i := start + period; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// rsi is Wilder's relative strength index: the first value averages the
// first period gains and losses, smoothed thereafter. A window with no
// losses reads 100, one with no gains reads 0.
func rsi(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// macdSeries returns the MACD line (fast EMA - slow EMA), its signal EMA and
// the histogram.
func macdSeries(values []float64, fast, slow, signal int) (line, sig, hist []float64) {
	fastEMA := ema(values, fast)
	slowEMA := ema(values, slow)
	line = nanSlice(len(values))
	for i := range values {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig = ema(line, signal)
	hist = nanSlice(len(values))
	for i := range values {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return line, sig, hist
}

// bollinger: middle is the period SMA, upper and lower sit width population
// standard deviations away.
func bollinger(values []float64, period int, width float64) (upper, middle, lower []float64) {
	n := len(values)
	middle = sma(values, period)
	upper, lower = nanSlice(n), nanSlice(n)
	for i := period - 1; i < n; i++ {
		m := middle[i]
		if math.IsNaN(m) {
			continue
		}
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - m
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		upper[i] = m + width*sd
		lower[i] = m - width*sd
	}
	return upper, middle, lower
}

func trueRange(high, low, prevClose float64) float64 {
	r := high - low
	if d := math.Abs(high - prevClose); d > r {
		r = d
	}
	if d := math.Abs(low - prevClose); d > r {
		r = d
	}
	return r
}

// atr is Wilder's average true range.
func atr(high, low, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 0 || n <= period {
		return out
	}
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(high[i], low[i], closes[i-1])
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	v := sum / float64(period)
	out[period] = v
	for i := period + 1; i < n; i++ {
		v = (v*float64(period-1) + tr[i]) / float64(period)
		out[i] = v
	}
	return out
}

// adx returns the average directional index and its +DI/-DI components. The
// DI lines appear after one period, the ADX itself after two.
func adx(high, low, closes []float64, period int) (adxOut, plusDI, minusDI []float64) {
	n := len(closes)
	adxOut, plusDI, minusDI = nanSlice(n), nanSlice(n), nanSlice(n)
	if period <= 0 || n <= period {
		return adxOut, plusDI, minusDI
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = trueRange(high[i], low[i], closes[i-1])
	}

	var trS, plusS, minusS float64
	for i := 1; i <= period; i++ {
		trS += tr[i]
		plusS += plusDM[i]
		minusS += minusDM[i]
	}

	dx := nanSlice(n)
	set := func(i int) {
		if trS == 0 {
			plusDI[i], minusDI[i], dx[i] = 0, 0, 0
			return
		}
		p := 100 * plusS / trS
		m := 100 * minusS / trS
		plusDI[i], minusDI[i] = p, m
		if p+m == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(p-m) / (p + m)
		}
	}
	set(period)
	for i := period + 1; i < n; i++ {
		trS = trS - trS/float64(period) + tr[i]
		plusS = plusS - plusS/float64(period) + plusDM[i]
		minusS = minusS - minusS/float64(period) + minusDM[i]
		set(i)
	}

	if n >= 2*period {
		var sum float64
		for i := period; i < 2*period; i++ {
			sum += dx[i]
		}
		v := sum / float64(period)
		adxOut[2*period-1] = v
		for i := 2 * period; i < n; i++ {
			v = (v*float64(period-1) + dx[i]) / float64(period)
			adxOut[i] = v
		}
	}
	return adxOut, plusDI, minusDI
}

// donchian: rolling extremes of the trailing window, current bar included.
func donchian(high, low []float64, period int) (upper, lower, middle []float64) {
	n := len(high)
	upper, lower, middle = nanSlice(n), nanSlice(n), nanSlice(n)
	if period <= 0 || n < period {
		return upper, lower, middle
	}
	for i := period - 1; i < n; i++ {
		hi := math.Inf(-1)
		lo := math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			if high[j] > hi {
				hi = high[j]
			}
			if low[j] < lo {
				lo = low[j]
			}
		}
		upper[i], lower[i], middle[i] = hi, lo, (hi+lo)/2
	}
	return upper, lower, middle
}

// roc: percent change over period bars.
func roc(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period; i < len(values); i++ {
		if values[i-period] != 0 {
			out[i] = (values[i]/values[i-period] - 1) * 100
		}
	}
	return out
}

// obv: cumulative volume signed by the close-to-close direction, seeded with
// the first bar's volume.
func obv(closes, volume []float64) []float64 {
	out := nanSlice(len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = volume[0]
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volume[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// stochastic: raw %K over kPeriod, smoothed into slow %K by kSmooth, with %D
// a dPeriod SMA of slow %K. A flat window reads 50.
func stochastic(high, low, closes []float64, kPeriod, kSmooth, dPeriod int) (k, d []float64) {
	n := len(closes)
	raw := nanSlice(n)
	if kPeriod <= 0 || kSmooth <= 0 || dPeriod <= 0 {
		return raw, nanSlice(n)
	}
	for i := kPeriod - 1; i < n; i++ {
		hi := math.Inf(-1)
		lo := math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			if high[j] > hi {
				hi = high[j]
			}
			if low[j] < lo {
				lo = low[j]
			}
		}
		if hi == lo {
			raw[i] = 50
		} else {
			raw[i] = 100 * (closes[i] - lo) / (hi - lo)
		}
	}
	k = sma(raw, kSmooth)
	d = sma(k, dPeriod)
	return k, d
}

// volatility: rolling sample standard deviation of one-bar returns,
// annualized by the square root of the trading periods per year.
func volatility(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 0 || n <= period {
		return out
	}
	rets := nanSlice(n)
	for i := 1; i < n; i++ {
		if closes[i-1] != 0 {
			rets[i] = closes[i]/closes[i-1] - 1
		}
	}
	for i := period; i < n; i++ {
		var mean float64
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(rets[j]) {
				ok = false
				break
			}
			mean += rets[j]
		}
		if !ok {
			continue
		}
		mean /= float64(period)
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := rets[j] - mean
			ss += d * d
		}
		if period > 1 {
			out[i] = math.Sqrt(ss/float64(period-1)) * math.Sqrt(annualizationPeriods)
		} else {
			out[i] = 0
		}
	}
	return out
}

// pctChange: one-step relative change. A zero previous value leaves the cell
// undefined instead of producing an infinity.
func pctChange(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			out[i] = values[i]/values[i-1] - 1
		}
	}
	return out
}

// highLowRange: bar range relative to the close.
func highLowRange(high, low, closes []float64) []float64 {
	out := nanSlice(len(closes))
	for i := range closes {
		if closes[i] != 0 {
			out[i] = (high[i] - low[i]) / closes[i]
		}
	}
	return out
}

// closePosition: where the close sits inside its Bollinger band, 0 at the
// lower band, 1 at the upper. Undefined when the band has zero width.
func closePosition(closes []float64, period int, width float64) []float64 {
	upper, _, lower := bollinger(closes, period, width)
	out := nanSlice(len(closes))
	for i := range closes {
		if math.IsNaN(upper[i]) || math.IsNaN(lower[i]) || upper[i] == lower[i] {
			continue
		}
		out[i] = (closes[i] - lower[i]) / (upper[i] - lower[i])
	}
	return out
}
