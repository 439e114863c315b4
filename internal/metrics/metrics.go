package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_cycles_total", Help: "Trading cycles by outcome (ok, skipped, failed)"}, []string{"outcome"})
	CycleDuration    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "turtle_cycle_duration_seconds", Help: "Wall time of one trading cycle", Buckets: prometheus.DefBuckets})
	MarketsDropped   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_markets_dropped_total", Help: "Markets dropped from a cycle's universe"}, []string{"reason"})
	SignalsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_signals_total", Help: "Breakout signals detected"}, []string{"direction"})
	GateDenials      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_gate_denials_total", Help: "Entries denied by the risk limiter"}, []string{"reason"})
	OrdersSubmitted  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_orders_submitted_total", Help: "Orders accepted by the platform"}, []string{"kind"})
	OrdersFailed     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_orders_failed_total", Help: "Orders the platform did not accept"}, []string{"kind"})
	OrdersReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "turtle_orders_reconciled_total", Help: "Entry orders resolved to a terminal status"}, []string{"status"})
	DataQuality      = prometheus.NewCounter(prometheus.CounterOpts{Name: "turtle_data_quality_failures_total", Help: "Markets excluded for bad volatility or breakout data"})
	RiskCapital      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "turtle_risk_capital", Help: "Capital used for sizing in the last cycle"})
	ActiveMarkets    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "turtle_active_markets", Help: "Markets that survived universe validation in the last cycle"})
	PendingOrders    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "turtle_pending_orders", Help: "Entry orders awaiting a terminal status"})
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, CycleDuration, MarketsDropped, SignalsTotal, GateDenials,
		OrdersSubmitted, OrdersFailed, OrdersReconciled, DataQuality,
		RiskCapital, ActiveMarkets, PendingOrders,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
