package marketdata

import (
	"sort"
	"time"

	"kite_trader/internal/models"
)

// DefaultCapacity — сколько свечей держим в серии, старые вытесняются.
const DefaultCapacity = 1000

// Series — ограниченная по размеру история свечей одного инструмента
// на одном таймфрейме. Start строго возрастает. Не потокобезопасна сама
// по себе — сериализацию даёт шард агрегатора.
type Series struct {
	capacity int
	candles  []models.Candle
}

func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{
		capacity: capacity,
		candles:  make([]models.Candle, 0, capacity),
	}
}

func (s *Series) Len() int { return len(s.candles) }

func (s *Series) Empty() bool { return len(s.candles) == 0 }

// Last — копия последней свечи.
func (s *Series) Last() (models.Candle, bool) {
	if len(s.candles) == 0 {
		return models.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Append добавляет свечу в хвост и вытесняет голову при переполнении.
// Свеча с Start не позже последней молча игнорируется — серия
// монотонна по построению.
func (s *Series) Append(c models.Candle) {
	if last, ok := s.Last(); ok && !c.Start.After(last.Start) {
		return
	}
	s.candles = append(s.candles, c)
	if over := len(s.candles) - s.capacity; over > 0 {
		s.candles = s.candles[over:]
	}
}

// SetLast перезаписывает последнюю свечу (пересчёт открытого периода).
func (s *Series) SetLast(c models.Candle) {
	if len(s.candles) == 0 {
		return
	}
	s.candles[len(s.candles)-1] = c
}

// UpdateLast вливает тик в открытую свечу.
func (s *Series) UpdateLast(price float64, qty int64) {
	if len(s.candles) == 0 {
		return
	}
	s.candles[len(s.candles)-1].Update(price, qty)
}

// Snapshot — копия всей серии; живой буфер наружу не отдаём.
func (s *Series) Snapshot() []models.Candle {
	out := make([]models.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Window — копия свечей со Start в [from, to).
func (s *Series) Window(from, to time.Time) []models.Candle {
	out := make([]models.Candle, 0)
	for _, c := range s.candles {
		if !c.Start.Before(from) && c.Start.Before(to) {
			out = append(out, c)
		}
	}
	return out
}

// Load — массовая загрузка истории: сортируем по Start и добавляем
// через Append, так что лимит и монотонность сохраняются.
func (s *Series) Load(candles []models.Candle) {
	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	for _, c := range sorted {
		s.Append(c)
	}
}
