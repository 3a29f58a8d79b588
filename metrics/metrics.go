// Package metrics declares the Prometheus collectors of the wallet.
// They register on the default registry and are served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sportwallet"

// =============================================================================
// WALLET
// =============================================================================

var Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "settlements_total",
	Help:      "Activity settlements by activity and outcome (credited, capped, noop, refused).",
}, []string{"activity", "outcome"})

var CreditedCents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "credited_cents_total",
	Help:      "Flat cents credited to the ledger, by activity.",
}, []string{"activity"})

var BonusGranted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "bonus_granted_total",
	Help:      "Streak bonuses paid.",
})

var BonusCents = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "bonus_cents_total",
	Help:      "Streak bonus cents paid.",
})

var DaysInitialized = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "days_initialized_total",
	Help:      "Day records created by day initialization.",
})

var BalanceCents = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "balance_cents",
	Help:      "Last balance computed by the wallet engine.",
})

var StreakDays = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "wallet",
	Name:      "streak_days",
	Help:      "Streak of the most recently initialized day.",
})

// =============================================================================
// WISHLIST
// =============================================================================

var Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wishlist",
	Name:      "purchases_total",
	Help:      "Purchase attempts by outcome (ok, insufficient_balance, already_purchased, not_found, error).",
}, []string{"outcome"})

var SpentCents = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "wishlist",
	Name:      "spent_cents_total",
	Help:      "Cents debited by purchases.",
})

// =============================================================================
// ADMIN & STORAGE
// =============================================================================

var AdminOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "admin",
	Name:      "operations_total",
	Help:      "Admin overrides by operation.",
}, []string{"op"})

var StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "storage",
	Name:      "errors_total",
	Help:      "Storage failures surfaced to engines, by operation.",
}, []string{"op"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern and status class.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})
