// Package metrics holds the gateway's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsClassified counts confirmations that classified into a
	// domain event, by currency and kind.
	EventsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nanogate_events_classified_total",
		Help: "Classified ledger events by currency and kind.",
	}, []string{"currency", "kind"})

	// FramesDiscarded counts stream frames dropped as malformed.
	FramesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nanogate_stream_frames_discarded_total",
		Help: "Malformed stream frames discarded.",
	}, []string{"currency"})

	// PaymentsSettled counts payment records created or updated.
	PaymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nanogate_payments_settled_total",
		Help: "Settled payments recorded, by currency and outcome (created/updated).",
	}, []string{"currency", "outcome"})

	// SettlementRetries counts retry attempts inside ledger-mutating
	// sequences.
	SettlementRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nanogate_settlement_retries_total",
		Help: "Retries of ledger-mutating sequences.",
	}, []string{"currency", "op"})

	// SettlementFailures counts sequences abandoned after retry
	// exhaustion.
	SettlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nanogate_settlement_failures_total",
		Help: "Ledger-mutating sequences abandoned after retries.",
	}, []string{"currency", "op"})

	// NodeAvailable is 1 while a currency's node is synced with a
	// working wallet layer.
	NodeAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nanogate_node_available",
		Help: "Whether the node for a currency is usable for payments.",
	}, []string{"currency"})

	// WatchedAddresses is the current size of the subscription set.
	WatchedAddresses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nanogate_watched_addresses",
		Help: "Number of ledger accounts currently watched.",
	}, []string{"currency"})
)
