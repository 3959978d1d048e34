package models

import "time"

// Position — нетто-позиция по инструменту. NetQty со знаком:
// >0 лонг, <0 шорт. AvgPrice имеет смысл только при NetQty != 0.
type Position struct {
	InstrumentID string
	NetQty       int64
	AvgPrice     float64
	RealizedPnL  float64
	Updated      time.Time
}

func (p Position) Flat() bool { return p.NetQty == 0 }

func (p Position) Long() bool { return p.NetQty > 0 }

func (p Position) Short() bool { return p.NetQty < 0 }

// AbsQty — размер позиции без знака, для выравнивающих ордеров.
func (p Position) AbsQty() int64 {
	if p.NetQty < 0 {
		return -p.NetQty
	}
	return p.NetQty
}
