package models

import "time"

// Timeframe — интервал свечи.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
)

func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	default:
		return time.Minute
	}
}

// Truncate выравнивает время по началу периода таймфрейма.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	return t.Truncate(tf.Duration())
}

// Candle — OHLCV бар одного инструмента за один период.
// Start — начало периода, выровненное по границе таймфрейма.
type Candle struct {
	InstrumentID string
	Timeframe    Timeframe
	Start        time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
}

// NewCandle — свеча из первого тика периода: O=H=L=C=цена.
func NewCandle(instrumentID string, tf Timeframe, start time.Time, price float64, qty int64) Candle {
	return Candle{
		InstrumentID: instrumentID,
		Timeframe:    tf,
		Start:        start,
		Open:         price,
		High:         price,
		Low:          price,
		Close:        price,
		Volume:       qty,
	}
}

// Update вливает очередной тик в открытую свечу.
func (c *Candle) Update(price float64, qty int64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += qty
}

// TypicalPrice — (H+L+C)/3, используется в VWAP.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}
