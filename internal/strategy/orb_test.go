package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite_trader/internal/models"
)

type fakePlacer struct {
	mu       sync.Mutex
	placeErr error
	reqs     []models.OrderRequest
}

func (f *fakePlacer) Place(_ context.Context, req models.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.reqs = append(f.reqs, req)
	return "ord-1", nil
}

func (f *fakePlacer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func at(h, m int) time.Time {
	return time.Date(2026, 9, 1, h, m, 0, 0, time.UTC)
}

func bar(start time.Time, o, h, l, c float64, vol int64) models.Candle {
	return models.Candle{
		InstrumentID: "X",
		Timeframe:    models.TF1m,
		Start:        start,
		Open:         o,
		High:         h,
		Low:          l,
		Close:        c,
		Volume:       vol,
	}
}

func orbConfig(prevClose float64) ORBConfig {
	return ORBConfig{
		InstrumentID:     "X",
		PrevClose:        prevClose,
		MarketOpen:       TimeOfDay{9, 15},
		StrategyEnd:      TimeOfDay{15, 0},
		RangeMinutes:     15,
		VolumeLookback:   2,
		MomentumLookback: 1,
		SpikeFactor:      1.5,
		MinDayRangePct:   2.0,
		MinDayVolume:     1,
		Quantity:         10,
	}
}

// сессия: диапазон 09:15-09:29 в [99, 101], нейтральная 09:30,
// пробойная 09:31 с объёмным спайком и положительным моментумом
func sessionCandles() []models.Candle {
	out := []models.Candle{bar(at(9, 15), 100, 101, 99.5, 100.5, 1000)}
	for i := 1; i <= 12; i++ {
		out = append(out, bar(at(9, 15+i), 100, 100.8, 99, 100, 1000))
	}
	out = append(out,
		bar(at(9, 28), 100, 100.5, 99.5, 99.8, 1000),
		bar(at(9, 29), 99.8, 100.5, 99.6, 100, 1000),
		bar(at(9, 30), 100, 100.95, 100, 100.9, 1000),
	)
	return out
}

func breakoutBar() models.Candle {
	return bar(at(9, 31), 101, 102.2, 100.8, 102, 2000)
}

func TestORBPhaseProgression(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(99), p)
	ctx := context.Background()
	cs := sessionCandles()

	require.Equal(t, PhaseAwaitingOpen, o.Phase())

	_, ok := o.Evaluate(ctx, cs[:5])
	assert.False(t, ok)
	assert.Equal(t, PhaseRangeForming, o.Phase())

	// последняя свеча 09:30 — диапазонный период закончился
	_, ok = o.Evaluate(ctx, cs)
	assert.False(t, ok)
	assert.Equal(t, PhaseRangeEstablished, o.Phase())

	high, low := o.Range()
	assert.InDelta(t, 101.0, high, 1e-9)
	assert.InDelta(t, 99.0, low, 1e-9)
}

func TestORBLongBreakout(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(99), p) // вчера 99, открытие 100 — гэп вверх
	ctx := context.Background()

	cs := append(sessionCandles(), breakoutBar())
	sig, ok := o.Evaluate(ctx, cs)

	require.True(t, ok)
	assert.Equal(t, models.SideBuy, sig.Side)
	assert.InDelta(t, 102.0, sig.Price, 1e-9)
	assert.Equal(t, "orb", sig.Strategy)
	assert.Equal(t, PhaseSignaled, o.Phase())

	require.Equal(t, 1, p.count())
	assert.Equal(t, models.OrderTypeLimit, p.reqs[0].Type)
	assert.Equal(t, "orb_entry", p.reqs[0].Tag)
	assert.Equal(t, int64(10), p.reqs[0].Quantity)
}

func TestORBOneSignalPerDay(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(99), p)
	ctx := context.Background()

	cs := append(sessionCandles(), breakoutBar())
	_, ok := o.Evaluate(ctx, cs)
	require.True(t, ok)

	// ещё один пробой выше — сигнал уже был
	cs = append(cs, bar(at(9, 32), 102, 103, 101.8, 102.8, 2500))
	_, ok = o.Evaluate(ctx, cs)
	assert.False(t, ok)
	assert.Equal(t, 1, p.count())
}

func TestORBGapDownSuppressesLong(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(101), p) // вчера 101, открытие 100 — гэп вниз
	ctx := context.Background()

	cs := append(sessionCandles(), breakoutBar())
	_, ok := o.Evaluate(ctx, cs)

	assert.False(t, ok)
	assert.Equal(t, 0, p.count())
	assert.Equal(t, PhaseRangeEstablished, o.Phase())
}

func TestORBNoGapAllowsEitherSide(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(100), p) // открытие ровно в PDC — гэпа нет
	ctx := context.Background()

	cs := append(sessionCandles(), breakoutBar())
	sig, ok := o.Evaluate(ctx, cs)
	require.True(t, ok)
	assert.Equal(t, models.SideBuy, sig.Side)
}

func TestORBNoSpikeNoSignal(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(99), p)
	ctx := context.Background()

	weak := breakoutBar()
	weak.Volume = 1200 // выше среднего, но ниже фактора 1.5
	cs := append(sessionCandles(), weak)

	_, ok := o.Evaluate(ctx, cs)
	assert.False(t, ok)
}

func TestORBPlacementFailureRetries(t *testing.T) {
	p := &fakePlacer{placeErr: errors.New("broker down")}
	o := NewORB(orbConfig(99), p)
	ctx := context.Background()

	cs := append(sessionCandles(), breakoutBar())
	_, ok := o.Evaluate(ctx, cs)
	assert.False(t, ok)
	// фаза не ушла вперёд — ретрай на следующей свече
	assert.Equal(t, PhaseRangeEstablished, o.Phase())

	p.mu.Lock()
	p.placeErr = nil
	p.mu.Unlock()

	cs = append(cs, bar(at(9, 32), 102, 103, 101.8, 102.8, 2500))
	_, ok = o.Evaluate(ctx, cs)
	require.True(t, ok)
	assert.Equal(t, PhaseSignaled, o.Phase())
}

func TestORBSessionCutoff(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(99), p)
	ctx := context.Background()

	cs := sessionCandles()
	_, _ = o.Evaluate(ctx, cs)
	require.Equal(t, PhaseRangeEstablished, o.Phase())

	cs = append(cs, bar(at(15, 1), 100, 100.5, 99.5, 100, 1000))
	_, ok := o.Evaluate(ctx, cs)
	assert.False(t, ok)
	assert.Equal(t, PhaseDoneForDay, o.Phase())
}

func TestORBResetStartsNewDay(t *testing.T) {
	p := &fakePlacer{}
	o := NewORB(orbConfig(99), p)
	ctx := context.Background()

	cs := append(sessionCandles(), breakoutBar())
	_, ok := o.Evaluate(ctx, cs)
	require.True(t, ok)

	o.Reset()
	assert.Equal(t, PhaseAwaitingOpen, o.Phase())
	high, low := o.Range()
	assert.Zero(t, high)
	assert.Zero(t, low)
}
