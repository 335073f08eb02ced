// Package metrics exposes Prometheus counters for ledger and order
// operations. Counters count committed operations only; rejected
// requests are visible through the HTTP layer instead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokerage_deposits_total",
		Help: "Number of completed cash deposits",
	})

	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokerage_withdrawals_total",
		Help: "Number of completed cash withdrawals",
	})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brokerage_orders_created_total",
		Help: "Number of orders accepted with funds reserved",
	}, []string{"side"})

	OrdersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokerage_orders_canceled_total",
		Help: "Number of orders canceled with reservations released",
	})

	OrdersMatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokerage_orders_matched_total",
		Help: "Number of orders settled by the matching sweep",
	})

	SettlementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokerage_settlement_failures_total",
		Help: "Number of orders whose settlement transaction rolled back",
	})
)
