// Package indicators — чистые функции над снапшотом серии свечей.
// Ничего не мутируют и не владеют данными.
package indicators

import (
	"errors"

	"kite_trader/internal/models"
)

var (
	// ErrInsufficientData — свечей меньше, чем нужно периоду.
	// Для вызывающего это "ещё не готово", не фатал.
	ErrInsufficientData = errors.New("indicators: insufficient data")
	// ErrNoVolume — в серии нулевой суммарный объём, VWAP не определён.
	ErrNoVolume = errors.New("indicators: no volume")
)

// SMA — среднее close за последние period свечей.
func SMA(candles []models.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	return sum / float64(period), nil
}

// EMA — сид через SMA первых period свечей, дальше множитель 2/(period+1).
// Возвращает значение на последней свече.
func EMA(candles []models.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period {
		return 0, ErrInsufficientData
	}
	seed := 0.0
	for _, c := range candles[:period] {
		seed += c.Close
	}
	ema := seed / float64(period)

	k := 2.0 / (float64(period) + 1)
	for _, c := range candles[period:] {
		ema = (c.Close-ema)*k + ema
	}
	return ema, nil
}

// RSI по средним gain/loss последних period приращений close
// (без сглаживания Уайлдера после стартового среднего).
// При нулевом среднем лоссе RSI = 100.
func RSI(candles []models.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return 0, ErrInsufficientData
	}
	window := candles[len(candles)-period-1:]

	var avgGain, avgLoss float64
	for i := 1; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// VWAP по всей переданной серии: Σ(typical*volume)/Σ(volume).
// Вызывающий сам передаёт только свечи текущего дня.
func VWAP(candles []models.Candle) (float64, error) {
	if len(candles) == 0 {
		return 0, ErrInsufficientData
	}
	var pv float64
	var vol int64
	for _, c := range candles {
		pv += c.TypicalPrice() * float64(c.Volume)
		vol += c.Volume
	}
	if vol == 0 {
		return 0, ErrNoVolume
	}
	return pv / float64(vol), nil
}

// VolumeSpike — объём последней свечи больше factor × среднего объёма
// предыдущих lookback свечей (сама последняя в среднее не входит).
func VolumeSpike(candles []models.Candle, lookback int, factor float64) bool {
	if lookback <= 0 || len(candles) < lookback+1 {
		return false
	}
	last := candles[len(candles)-1]
	window := candles[len(candles)-lookback-1 : len(candles)-1]

	var sum int64
	for _, c := range window {
		sum += c.Volume
	}
	avg := float64(sum) / float64(lookback)
	return float64(last.Volume) > avg*factor
}
