// Package metrics defines and registers all custom Prometheus metrics for the
// pallet tracking service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init through promauto and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pallet"

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsActive tracks the number of open WebSocket sessions.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_sessions_active",
		Help:      "Current number of open WebSocket sessions.",
	},
)

// ── Command metrics ───────────────────────────────────────────────────────────

// CommandsTotal counts handled commands.
// Labels:
//   - kind: the request type (e.g. "takeAway")
//   - result: "ok", "failed" or "invalid"
var CommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Total number of commands handled, by kind and result.",
	},
	[]string{"kind", "result"},
)

// CommandDuration measures handler latency including store round-trips.
var CommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Duration of command handling from decode to reply.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// ── Assignment metrics ────────────────────────────────────────────────────────

// AssignmentConflictsTotal counts optimistic-concurrency and lock conflicts.
// Label:
//   - op: the request type that lost the race
var AssignmentConflictsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assignment_conflicts_total",
		Help:      "Total number of assignment writes rejected by a version or lock conflict.",
	},
	[]string{"op"},
)

// AssignQueueDepth tracks pending jobs in each key-serializer worker channel.
var AssignQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "assign_queue_depth",
		Help:      "Current number of jobs pending in each assignment worker channel.",
	},
	[]string{"worker_id"},
)
