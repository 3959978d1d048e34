package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite_trader/internal/models"
)

func tick(ts time.Time, px float64, qty int64) models.Tick {
	return models.Tick{
		InstrumentID: "X",
		Timestamp:    ts,
		LastPrice:    px,
		LastQty:      qty,
	}
}

func TestAggregatorRollsMinuteCandles(t *testing.T) {
	a := NewAggregator(100)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	a.Ingest(tick(base.Add(5*time.Second), 100, 10))
	a.Ingest(tick(base.Add(30*time.Second), 102, 5))
	a.Ingest(tick(base.Add(45*time.Second), 99, 3))
	a.Ingest(tick(base.Add(70*time.Second), 101, 7))

	s := a.Series("X", models.TF1m)
	require.Len(t, s, 2)

	assert.Equal(t, 100.0, s[0].Open)
	assert.Equal(t, 102.0, s[0].High)
	assert.Equal(t, 99.0, s[0].Low)
	assert.Equal(t, 99.0, s[0].Close)
	assert.Equal(t, int64(18), s[0].Volume)

	assert.Equal(t, 101.0, s[1].Open)
	assert.Equal(t, int64(7), s[1].Volume)
}

func TestAggregatorDerivesHigherTimeframes(t *testing.T) {
	a := NewAggregator(100)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	// 15 минут по два тика на минуту
	var totalVol int64
	for i := 0; i < 15; i++ {
		px := 100.0 + float64(i)
		a.Ingest(tick(base.Add(time.Duration(i)*time.Minute), px, 10))
		a.Ingest(tick(base.Add(time.Duration(i)*time.Minute+30*time.Second), px+0.5, 5))
		totalVol += 15
	}

	m1 := a.Series("X", models.TF1m)
	m5 := a.Series("X", models.TF5m)
	m15 := a.Series("X", models.TF15m)
	require.Len(t, m1, 15)
	require.Len(t, m5, 3)
	require.Len(t, m15, 1)

	// объём сохраняется на каждом уровне агрегации
	var v1, v5 int64
	for _, c := range m1 {
		v1 += c.Volume
	}
	for _, c := range m5 {
		v5 += c.Volume
	}
	assert.Equal(t, totalVol, v1)
	assert.Equal(t, totalVol, v5)
	assert.Equal(t, totalVol, m15[0].Volume)

	// границы: open первой минуты, close последней, экстремумы дня
	assert.Equal(t, m1[0].Open, m15[0].Open)
	assert.Equal(t, m1[14].Close, m15[0].Close)
	assert.Equal(t, 114.5, m15[0].High)
	assert.Equal(t, 100.0, m15[0].Low)
}

func TestAggregatorRecomputesOpenParent(t *testing.T) {
	a := NewAggregator(100)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	a.Ingest(tick(base, 100, 10))
	m5 := a.Series("X", models.TF5m)
	require.Len(t, m5, 1)
	assert.Equal(t, 100.0, m5[0].High)

	// тик второй минуты того же 5m периода двигает high и volume родителя
	a.Ingest(tick(base.Add(time.Minute), 105, 10))
	m5 = a.Series("X", models.TF5m)
	require.Len(t, m5, 1)
	assert.Equal(t, 105.0, m5[0].High)
	assert.Equal(t, int64(20), m5[0].Volume)
}

func TestAggregatorDropsOutOfOrderTicks(t *testing.T) {
	a := NewAggregator(100)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	a.Ingest(tick(base.Add(5*time.Minute), 100, 10))
	// тик из прошлого, закрытую минуту назад не открываем
	a.Ingest(tick(base.Add(3*time.Minute), 50, 99))

	s := a.Series("X", models.TF1m)
	require.Len(t, s, 1)
	assert.Equal(t, 100.0, s[0].Close)
	assert.Equal(t, int64(10), s[0].Volume)
}

func TestAggregatorAcceptsLateTickWithinOpenMinute(t *testing.T) {
	a := NewAggregator(100)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	a.Ingest(tick(base.Add(40*time.Second), 100, 10))
	a.Ingest(tick(base.Add(10*time.Second), 101, 5))

	s := a.Series("X", models.TF1m)
	require.Len(t, s, 1)
	assert.Equal(t, 101.0, s[0].Close)
	assert.Equal(t, int64(15), s[0].Volume)
}

func TestAggregatorIgnoresInvalidTicks(t *testing.T) {
	a := NewAggregator(100)
	a.Ingest(models.Tick{InstrumentID: "X"}) // нет цены и времени
	assert.Empty(t, a.Series("X", models.TF1m))
}

func TestLoadHistoricalNoCrossDerivation(t *testing.T) {
	a := NewAggregator(100)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	candles := []models.Candle{
		{InstrumentID: "X", Timeframe: models.TF1m, Start: base, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{InstrumentID: "X", Timeframe: models.TF1m, Start: base.Add(time.Minute), Open: 2, High: 2, Low: 2, Close: 2, Volume: 1},
	}
	a.LoadHistorical("X", models.TF1m, candles)

	assert.Len(t, a.Series("X", models.TF1m), 2)
	assert.Empty(t, a.Series("X", models.TF5m))
}
