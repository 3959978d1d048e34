package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"kite_trader/internal/indicators"
	"kite_trader/internal/metrics"
	"kite_trader/internal/models"
	"kite_trader/pkg/logger"
)

// Phase — стадии дня. Движение только вперёд, назад — через Reset.
type Phase int

const (
	PhaseAwaitingOpen Phase = iota
	PhaseRangeForming
	PhaseRangeEstablished
	PhaseSignaled
	PhaseDoneForDay
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingOpen:
		return "AWAITING_OPEN"
	case PhaseRangeForming:
		return "RANGE_FORMING"
	case PhaseRangeEstablished:
		return "RANGE_ESTABLISHED"
	case PhaseSignaled:
		return "SIGNALED"
	case PhaseDoneForDay:
		return "DONE_FOR_DAY"
	}
	return "UNKNOWN"
}

// Gap — положение сегодняшнего открытия к вчерашнему закрытию.
type Gap string

const (
	GapNone Gap = "NONE"
	GapUp   Gap = "UP"
	GapDown Gap = "DOWN"
)

// ORBConfig — параметры пробоя утреннего диапазона.
type ORBConfig struct {
	InstrumentID string
	PrevClose    float64 // вчерашний close; 0 => гэп не определяем

	MarketOpen  TimeOfDay
	StrategyEnd TimeOfDay

	RangeMinutes     int     // длина утреннего диапазона, 15
	VolumeLookback   int     // окно среднего объёма для спайка, 10
	SpikeFactor      float64 // во сколько раз объём выше среднего, 1.5
	MomentumLookback int     // N свечей для сравнения моментума, 5
	MinDayRangePct   float64 // минимальный размах дня в %, 2.0
	MinDayVolume     int64   // минимальный накопленный объём дня
	Quantity         int64   // размер входа
}

func (c *ORBConfig) applyDefaults() {
	if c.RangeMinutes <= 0 {
		c.RangeMinutes = 15
	}
	if c.VolumeLookback <= 0 {
		c.VolumeLookback = 10
	}
	if c.SpikeFactor <= 0 {
		c.SpikeFactor = 1.5
	}
	if c.MomentumLookback <= 0 {
		c.MomentumLookback = 5
	}
	if c.MinDayRangePct <= 0 {
		c.MinDayRangePct = 2.0
	}
	if c.Quantity <= 0 {
		c.Quantity = 1
	}
}

// ORB — машина состояний пробоя утреннего диапазона, одна на инструмент.
// Не потокобезопасна между инструментами и не обязана: раннер
// сериализует вызовы по инструменту, мьютекс защищает Dump.
type ORB struct {
	cfg    ORBConfig
	placer OrderPlacer

	mu    sync.Mutex
	phase Phase

	dayOpen   float64
	gap       Gap
	rangeHigh float64
	rangeLow  float64

	dayHigh   float64
	dayLow    float64
	dayVolume int64

	orderID       string
	signalSide    models.Side
	signalAt      time.Time
	priceAtSignal float64
	// пост-сигнальный ход цены против позиции
	lowAfterLong   float64
	highAfterShort float64
}

func NewORB(cfg ORBConfig, placer OrderPlacer) *ORB {
	cfg.applyDefaults()
	o := &ORB{cfg: cfg, placer: placer}
	o.resetLocked()
	logger.Info("ORB %s: PDC=%.2f range=%dm open=%s end=%s",
		cfg.InstrumentID, cfg.PrevClose, cfg.RangeMinutes, cfg.MarketOpen, cfg.StrategyEnd)
	return o
}

// Evaluate прогоняет машину по свежему снапшоту 1m серии.
// Возвращает сигнал, если он был эмитирован на этом вызове.
func (o *ORB) Evaluate(ctx context.Context, candles []models.Candle) (models.Signal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(candles) == 0 {
		return models.Signal{}, false
	}
	last := candles[len(candles)-1]
	openAt := o.cfg.MarketOpen.On(last.Start)
	endAt := o.cfg.StrategyEnd.On(last.Start)

	o.updateDayMetrics(candles, openAt)

	if o.phase == PhaseAwaitingOpen {
		o.detectOpen(candles, openAt)
	}
	if o.phase == PhaseRangeForming {
		o.establishRange(candles, openAt, last)
	}
	if o.phase == PhaseRangeEstablished {
		if last.Start.After(endAt) {
			o.phase = PhaseDoneForDay
			logger.Info("ORB %s: session over without signal", o.cfg.InstrumentID)
			return models.Signal{}, false
		}
		return o.checkBreakout(ctx, candles, last)
	}
	if o.phase == PhaseSignaled {
		o.trackExcursion(last)
	}
	return models.Signal{}, false
}

// updateDayMetrics пересчитывает дневные high/low/объём по свечам
// текущей сессии. Пересчёт с нуля, не инкремент: открытая свеча
// меняется между вызовами.
func (o *ORB) updateDayMetrics(candles []models.Candle, openAt time.Time) {
	o.dayHigh = math.Inf(-1)
	o.dayLow = math.Inf(1)
	o.dayVolume = 0
	for _, c := range candles {
		if c.Start.Before(openAt) {
			continue
		}
		if c.High > o.dayHigh {
			o.dayHigh = c.High
		}
		if c.Low < o.dayLow {
			o.dayLow = c.Low
		}
		o.dayVolume += c.Volume
	}
}

// detectOpen — первая свеча сессии задаёт дневное открытие и гэп.
func (o *ORB) detectOpen(candles []models.Candle, openAt time.Time) {
	for _, c := range candles {
		if c.Start.Before(openAt) {
			continue
		}
		o.dayOpen = c.Open
		o.gap = classifyGap(o.dayOpen, o.cfg.PrevClose)
		o.phase = PhaseRangeForming
		logger.Info("ORB %s: day open %.2f, PDC %.2f, gap %s",
			o.cfg.InstrumentID, o.dayOpen, o.cfg.PrevClose, o.gap)
		return
	}
}

func classifyGap(open, prevClose float64) Gap {
	if prevClose <= 0 || open <= 0 {
		return GapNone
	}
	switch {
	case open > prevClose:
		return GapUp
	case open < prevClose:
		return GapDown
	}
	return GapNone
}

// establishRange считает диапазон по свечам [open, open+range).
// Срабатывает один раз, когда диапазонный период закончился.
// Если в окне пусто — остаёмся в RANGE_FORMING и пробуем на
// следующем вызове.
func (o *ORB) establishRange(candles []models.Candle, openAt time.Time, last models.Candle) {
	rangeEnd := openAt.Add(time.Duration(o.cfg.RangeMinutes) * time.Minute)
	if last.Start.Before(rangeEnd) {
		return
	}

	high := math.Inf(-1)
	low := math.Inf(1)
	found := false
	for _, c := range candles {
		if c.Start.Before(openAt) || !c.Start.Before(rangeEnd) {
			continue
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		found = true
	}
	if !found {
		logger.Warn("ORB %s: no candles in opening range %s..%s",
			o.cfg.InstrumentID, openAt.Format("15:04"), rangeEnd.Format("15:04"))
		return
	}

	o.rangeHigh = high
	o.rangeLow = low
	o.phase = PhaseRangeEstablished
	logger.Info("ORB %s: opening range H=%.2f L=%.2f", o.cfg.InstrumentID, high, low)
}

func (o *ORB) checkBreakout(ctx context.Context, candles []models.Candle, last models.Candle) (models.Signal, bool) {
	spike, posMomentum, negMomentum, ok := o.analyze(candles)
	if !ok {
		return models.Signal{}, false
	}

	dayRangePct := 0.0
	if o.dayLow > 0 && !math.IsInf(o.dayLow, 1) {
		dayRangePct = (o.dayHigh - o.dayLow) / o.dayLow * 100
	}
	gate := dayRangePct > o.cfg.MinDayRangePct &&
		o.dayOpen < o.dayHigh &&
		o.dayVolume > o.cfg.MinDayVolume &&
		spike

	switch {
	case last.Close > o.rangeHigh && (o.gap == GapUp || o.gap == GapNone) && gate && posMomentum:
		return o.emit(ctx, models.SideBuy, last)
	case last.Close < o.rangeLow && (o.gap == GapDown || o.gap == GapNone) && gate && negMomentum:
		return o.emit(ctx, models.SideSell, last)
	}
	return models.Signal{}, false
}

// analyze — объёмный спайк и моментум close-to-close: изменение за
// последние N свечей против изменения за N свечей до них.
func (o *ORB) analyze(candles []models.Candle) (spike, posMomentum, negMomentum, ok bool) {
	n := o.cfg.MomentumLookback
	if len(candles) < 2*n+o.cfg.VolumeLookback {
		return false, false, false, false
	}
	i := len(candles) - 1
	if i < 2*n {
		return false, false, false, false
	}

	spike = indicators.VolumeSpike(candles, o.cfg.VolumeLookback, o.cfg.SpikeFactor)

	recent := candles[i-1].Close - candles[i-1-n].Close
	previous := candles[i-1-n].Close - candles[i-1-2*n].Close
	posMomentum = recent > previous
	negMomentum = recent < previous
	return spike, posMomentum, negMomentum, true
}

// emit размещает ордер и только при успехе фиксирует сигнал.
// Неудача оставляет фазу как есть — ретрай на следующей свече.
func (o *ORB) emit(ctx context.Context, side models.Side, last models.Candle) (models.Signal, bool) {
	orderID, err := o.placer.Place(ctx, models.OrderRequest{
		InstrumentID: o.cfg.InstrumentID,
		Side:         side,
		Quantity:     o.cfg.Quantity,
		Price:        last.Close,
		Type:         models.OrderTypeLimit,
		Product:      models.ProductIntraday,
		Tag:          "orb_entry",
	})
	if err != nil {
		logger.Error("ORB %s: %s entry not placed: %v", o.cfg.InstrumentID, side, err)
		return models.Signal{}, false
	}

	o.orderID = orderID
	o.signalSide = side
	o.signalAt = last.Start
	o.priceAtSignal = last.Close
	o.lowAfterLong = last.Low
	o.highAfterShort = last.High
	o.phase = PhaseSignaled

	metrics.SignalsEmitted.WithLabelValues(string(side)).Inc()
	reason := fmt.Sprintf("close %.2f broke range [%.2f, %.2f], gap %s",
		last.Close, o.rangeLow, o.rangeHigh, o.gap)
	logger.Info("ORB %s: %s signal, order %s (%s)", o.cfg.InstrumentID, side, orderID, reason)

	return models.Signal{
		InstrumentID: o.cfg.InstrumentID,
		Side:         side,
		Price:        last.Close,
		Strategy:     "orb",
		Reason:       reason,
		At:           last.Start,
	}, true
}

// trackExcursion — ход цены против входа после сигнала.
func (o *ORB) trackExcursion(last models.Candle) {
	if o.signalSide == models.SideBuy && last.Low < o.lowAfterLong {
		o.lowAfterLong = last.Low
	}
	if o.signalSide == models.SideSell && last.High > o.highAfterShort {
		o.highAfterShort = last.High
	}
}

// Phase — текущая стадия (для тестов и Dump).
func (o *ORB) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Range — установленный диапазон.
func (o *ORB) Range() (high, low float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rangeHigh, o.rangeLow
}

// SetPrevClose обновляет вчерашний close перед новой сессией.
func (o *ORB) SetPrevClose(px float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.PrevClose = px
}

// Reset возвращает машину к началу дня. Зовётся раз в сутки до открытия.
func (o *ORB) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
	logger.Info("ORB %s: reset for new session", o.cfg.InstrumentID)
}

func (o *ORB) resetLocked() {
	o.phase = PhaseAwaitingOpen
	o.dayOpen = 0
	o.gap = GapNone
	o.rangeHigh = 0
	o.rangeLow = 0
	o.dayHigh = math.Inf(-1)
	o.dayLow = math.Inf(1)
	o.dayVolume = 0
	o.orderID = ""
	o.signalSide = models.SideNone
	o.signalAt = time.Time{}
	o.priceAtSignal = 0
	o.lowAfterLong = math.Inf(1)
	o.highAfterShort = math.Inf(-1)
}

func (o *ORB) Dump() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("ORB[%s] phase=%s gap=%s range=[%.2f %.2f] day=[%.2f %.2f] vol=%d",
		o.cfg.InstrumentID, o.phase, o.gap, o.rangeLow, o.rangeHigh, o.dayLow, o.dayHigh, o.dayVolume)
}
