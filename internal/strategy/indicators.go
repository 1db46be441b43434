package strategy

import "math"

// Indicator math over float sequences. Every function reports ok=false when
// the input is shorter than the lookback it needs; callers treat that as
// "insufficient data", never as an error.

// SMA returns the simple moving average of the last period values.
func SMA(vals []float64, period int) (float64, bool) {
	if period <= 0 || len(vals) < period {
		return 0, false
	}
	var sum float64
	for _, v := range vals[len(vals)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average of vals with the given period,
// seeded with the SMA of the first period values.
func EMA(vals []float64, period int) (float64, bool) {
	if period <= 0 || len(vals) < period {
		return 0, false
	}
	seed, _ := SMA(vals[:period], period)
	k := 2.0 / float64(period+1)
	ema := seed
	for _, v := range vals[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

// RSI returns the Wilder relative strength index over the last period
// deltas; it needs period+1 values.
func RSI(vals []float64, period int) (float64, bool) {
	if period <= 0 || len(vals) < period+1 {
		return 0, false
	}
	window := vals[len(vals)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		return 100, true
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs), true
}

// MACDHistogram returns an approximation of the MACD histogram: the MACD
// line (EMA12 − EMA26) minus a short EMA of the line computed over the tail
// of the series. It needs at least 26+9 values.
func MACDHistogram(vals []float64) (float64, bool) {
	const (
		fast   = 12
		slow   = 26
		signal = 9
	)
	if len(vals) < slow+signal {
		return 0, false
	}
	line := make([]float64, 0, signal)
	for i := len(vals) - signal; i <= len(vals); i++ {
		f, okF := EMA(vals[:i], fast)
		s, okS := EMA(vals[:i], slow)
		if !okF || !okS {
			return 0, false
		}
		line = append(line, f-s)
	}
	sig, ok := EMA(line, signal)
	if !ok {
		return 0, false
	}
	return line[len(line)-1] - sig, true
}

// Bollinger returns the upper, middle, and lower Bollinger Bands over the
// last period values with a k-sigma width.
func Bollinger(vals []float64, period int, k float64) (upper, mid, lower float64, ok bool) {
	mid, ok = SMA(vals, period)
	if !ok {
		return 0, 0, 0, false
	}
	var variance float64
	for _, v := range vals[len(vals)-period:] {
		d := v - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return mid + k*sd, mid, mid - k*sd, true
}

// ATR returns the average true range over the last period bars; it needs
// period+1 bars for the previous-close term.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}
	var sum float64
	for i := n - period; i < n; i++ {
		tr := highs[i] - lows[i]
		if d := math.Abs(highs[i] - closes[i-1]); d > tr {
			tr = d
		}
		if d := math.Abs(lows[i] - closes[i-1]); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period), true
}
