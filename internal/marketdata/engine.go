package marketdata

import (
	"sync"

	"kite_trader/internal/models"
	"kite_trader/pkg/logger"
)

// Aggregator катит тики в 1m свечи и дальше в 5m/15m.
// Один шард на инструмент: независимые инструменты обрабатываются
// параллельно, внутри инструмента — строго по одному мутатору.
type Aggregator struct {
	capacity int

	mu     sync.RWMutex
	shards map[string]*shard
}

type shard struct {
	mu     sync.Mutex
	series map[models.Timeframe]*Series
}

func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Aggregator{
		capacity: capacity,
		shards:   make(map[string]*shard),
	}
}

func (a *Aggregator) shardFor(instrumentID string) *shard {
	a.mu.RLock()
	sh, ok := a.shards[instrumentID]
	a.mu.RUnlock()
	if ok {
		return sh
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if sh, ok = a.shards[instrumentID]; ok {
		return sh
	}
	sh = &shard{series: map[models.Timeframe]*Series{
		models.TF1m:  NewSeries(a.capacity),
		models.TF5m:  NewSeries(a.capacity),
		models.TF15m: NewSeries(a.capacity),
	}}
	a.shards[instrumentID] = sh
	return sh
}

// Ingest вливает тик: обновляет 1m серию инструмента и перекатывает
// 5m из 1m и 15m из 5m. Невалидные тики отбрасываются на входе.
func (a *Aggregator) Ingest(t models.Tick) {
	if !t.Valid() {
		return
	}

	sh := a.shardFor(t.InstrumentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if !sh.rollMinute(t) {
		return
	}
	sh.deriveInto(t.InstrumentID, models.TF1m, models.TF5m)
	sh.deriveInto(t.InstrumentID, models.TF5m, models.TF15m)
}

// rollMinute — 1m свеча: новый период или обновление открытой.
// Тики раньше начала открытой свечи считаем опоздавшими и дропаем —
// закрытые свечи назад не открываем.
func (sh *shard) rollMinute(t models.Tick) bool {
	s := sh.series[models.TF1m]
	start := models.TF1m.Truncate(t.Timestamp)

	last, ok := s.Last()
	if !ok || !start.Before(last.Start.Add(models.TF1m.Duration())) {
		s.Append(models.NewCandle(t.InstrumentID, models.TF1m, start, t.LastPrice, t.LastQty))
		return true
	}
	if t.Timestamp.Before(last.Start) {
		logger.Debug("drop out-of-order tick %s: %s < candle %s",
			t.InstrumentID, t.Timestamp.Format("15:04:05"), last.Start.Format("15:04"))
		return false
	}
	s.UpdateLast(t.LastPrice, t.LastQty)
	return true
}

// deriveInto пересобирает последнюю свечу таймфрейма dst из полного
// набора дочерних свечей src. Полный пересчёт вместо инкремента —
// дороже, но исключает расползание high/low/volume.
func (sh *shard) deriveInto(instrumentID string, src, dst models.Timeframe) {
	source := sh.series[src]
	target := sh.series[dst]

	srcLast, ok := source.Last()
	if !ok {
		return
	}

	start := dst.Truncate(srcLast.Start)
	children := source.Window(start, start.Add(dst.Duration()))
	if len(children) == 0 {
		return
	}

	agg := models.Candle{
		InstrumentID: instrumentID,
		Timeframe:    dst,
		Start:        start,
		Open:         children[0].Open,
		High:         children[0].High,
		Low:          children[0].Low,
		Close:        children[len(children)-1].Close,
	}
	for _, c := range children {
		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Volume += c.Volume
	}

	if last, ok := target.Last(); ok && last.Start.Equal(start) {
		target.SetLast(agg)
		return
	}
	target.Append(agg)
}

// Series — снапшот серии (копия, не живой буфер).
func (a *Aggregator) Series(instrumentID string, tf models.Timeframe) []models.Candle {
	a.mu.RLock()
	sh, ok := a.shards[instrumentID]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.series[tf]
	if !ok {
		return nil
	}
	return s.Snapshot()
}

// LoadHistorical — массовая загрузка истории в одну серию. Кросс-таймфрейм
// деривации не делает: историю для 5m/15m грузят отдельно.
func (a *Aggregator) LoadHistorical(instrumentID string, tf models.Timeframe, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	sh := a.shardFor(instrumentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.series[tf]
	if !ok {
		logger.Error("load historical: unsupported timeframe %s", tf)
		return
	}
	s.Load(candles)
}
