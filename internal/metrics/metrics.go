package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by the shell.
const Namespace = "bitpoints"

// Signal bus metrics
var (
	// SignalsPublishedTotal counts emissions by origin (local/external)
	SignalsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signals_published_total",
			Help:      "Signals published on the process bus by origin",
		},
		[]string{"origin"},
	)

	// SignalDeliveriesTotal counts handler invocations by status (delivered/failed)
	SignalDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signal_deliveries_total",
			Help:      "Signal handler invocations by status",
		},
		[]string{"status"},
	)

	// SignalSubscriptionsCurrent tracks live subscriptions across all buses
	SignalSubscriptionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "signal_subscriptions_current",
			Help:      "Live signal bus subscriptions",
		},
	)
)

// Coordinator metrics
var (
	// ExemptionPromptsTotal counts battery exemption prompts by status (opened/failed/skipped)
	ExemptionPromptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "exemption_prompts_total",
			Help:      "Battery optimization exemption prompts by status",
		},
		[]string{"status"},
	)

	// PermissionResultsTotal counts handled permission prompt outcomes
	PermissionResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "permission_results_total",
			Help:      "Handled permission prompt outcomes by permission and outcome",
		},
		[]string{"permission", "outcome"},
	)
)
