package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticks_ingested_total",
		Help: "Ticks accepted by the aggregation engine",
	}, []string{"instrument"})

	TicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticks_dropped_total",
		Help: "Ticks dropped at the ingestion boundary",
	})

	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strategy_signals_total",
		Help: "Signals emitted by the breakout strategy",
	}, []string{"side"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders accepted by the broker gateway",
	}, []string{"side"})

	OrdersFilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_filled_total",
		Help: "Order fills applied to the ledger",
	})

	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Order placements that failed at the gateway",
	})

	PortfolioDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_drawdown_ratio",
		Help: "Current drawdown from the portfolio peak",
	})

	RiskMitigation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_mitigation_active",
		Help: "1 while the drawdown circuit breaker is tripped",
	})
)
