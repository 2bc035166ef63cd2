package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gopyra_orders_submitted_total",
			Help: "Total number of orders submitted (by side and reason).",
		},
		[]string{"side", "reason"},
	)

	OrdersFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gopyra_orders_failed_total",
			Help: "Orders rejected by the executor (by reason).",
		},
		[]string{"reason"},
	)

	PositionOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gopyra_position_open",
			Help: "1 while a position is open, 0 when flat (by symbol).",
		},
		[]string{"symbol"},
	)

	StopOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gopyra_stop_offset",
			Help: "Current stop distance from the average entry price.",
		},
		[]string{"symbol"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gopyra_trades_closed_total",
			Help: "Closed positions (by side and exit kind).",
		},
		[]string{"side", "exit"},
	)

	EntriesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gopyra_entries_skipped_total",
			Help: "Entries or adds skipped by the sizer or the gate (by reason).",
		},
		[]string{"reason"},
	)

	StateResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gopyra_state_resets_total",
			Help: "Positions force-reset because the venue reported none.",
		},
	)

	TransportRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gopyra_transport_retries_total",
			Help: "Retried exchange calls (by operation).",
		},
		[]string{"op"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gopyra_equity",
			Help: "Current equity of the executor (paper or live).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		OrdersFailed,
		PositionOpen,
		StopOffset,
		TradesClosed,
		EntriesSkipped,
		StateResets,
		TransportRetries,
		EquityGauge,
	)
}
