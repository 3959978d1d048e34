package models

import (
	"sort"
	"time"
)

// DepthLevel — один уровень стакана (цена/объём/кол-во заявок).
type DepthLevel struct {
	Price    float64
	Quantity int64
	Orders   int
}

// MarketDepth — снапшот стакана на момент тика. Kite отдаёт до 5 уровней
// на каждую сторону.
type MarketDepth struct {
	InstrumentID string
	Timestamp    time.Time
	Bids         []DepthLevel // по цене вниз
	Asks         []DepthLevel // по цене вверх
}

// NewMarketDepth сортирует уровни при создании, чтобы дальше никто
// не зависел от порядка из фида.
func NewMarketDepth(instrumentID string, ts time.Time, bids, asks []DepthLevel) *MarketDepth {
	b := make([]DepthLevel, len(bids))
	copy(b, bids)
	sort.Slice(b, func(i, j int) bool { return b[i].Price > b[j].Price })

	a := make([]DepthLevel, len(asks))
	copy(a, asks)
	sort.Slice(a, func(i, j int) bool { return a[i].Price < a[j].Price })

	return &MarketDepth{
		InstrumentID: instrumentID,
		Timestamp:    ts,
		Bids:         b,
		Asks:         a,
	}
}

func (d *MarketDepth) BestBid() (DepthLevel, bool) {
	if len(d.Bids) == 0 {
		return DepthLevel{}, false
	}
	return d.Bids[0], true
}

func (d *MarketDepth) BestAsk() (DepthLevel, bool) {
	if len(d.Asks) == 0 {
		return DepthLevel{}, false
	}
	return d.Asks[0], true
}

// Tick — одно обновление по инструменту из фида брокера.
type Tick struct {
	InstrumentID  string
	Timestamp     time.Time
	LastPrice     float64
	LastQty       int64        // объём последней сделки
	DayVolume     int64        // накопленный объём за день
	AvgTradePrice float64      // средняя цена сделки за день
	Depth         *MarketDepth // nil, если нет подписки на стакан
}

// Valid — фильтр на границе инжеста: мусорные тики не пропускаем дальше.
func (t Tick) Valid() bool {
	return t.InstrumentID != "" && !t.Timestamp.IsZero() && t.LastPrice > 0
}
