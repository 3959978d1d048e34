package models

import "time"

// Side как в раннере: "BUY"/"SELL" или пустая строка.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite — сторона выравнивающего ордера.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return SideNone
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type ProductType string

const (
	// ProductIntraday — внутридневная позиция (MIS у Kite).
	ProductIntraday ProductType = "MIS"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Terminal — терминальные статусы, из них переходов нет.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// OrderRequest — параметры размещения ордера на границе с брокером.
type OrderRequest struct {
	InstrumentID string
	Side         Side
	Quantity     int64
	Price        float64 // для лимиток; маркет игнорирует
	Type         OrderType
	Product      ProductType
	Tag          string // кто инициатор: стратегия / риск
}

// Order — наш учёт ордера. Status меняется только вперёд.
type Order struct {
	ID           string
	InstrumentID string
	Side         Side
	Quantity     int64
	Price        float64
	Type         OrderType
	Product      ProductType
	Status       OrderStatus
	Tag          string
	PlacedAt     time.Time
}

// Signal — ответ стратегии раннеру.
type Signal struct {
	InstrumentID string
	Side         Side
	Price        float64
	Strategy     string
	Reason       string
	At           time.Time
}
