package telemetry

import "github.com/prometheus/client_golang/prometheus"

var PlacementDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "placement",
		Name:      "decisions_total",
		Help:      "Total number of placement decisions by strategy and outcome.",
	},
	[]string{"strategy", "outcome"},
)

var PlacementDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "podex",
		Subsystem: "placement",
		Name:      "duration_seconds",
		Help:      "Time taken to select a placement host.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"strategy"},
)

var WorkspaceTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "workspace",
		Name:      "transitions_total",
		Help:      "Total number of workspace state transitions.",
	},
	[]string{"from", "to"},
)

var DockerCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "podex",
		Subsystem: "dockerhost",
		Name:      "call_duration_seconds",
		Help:      "Duration of Docker backend calls by operation and backend kind.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"operation", "backend"},
)

var DockerCircuitOpenTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "dockerhost",
		Name:      "circuit_open_total",
		Help:      "Total number of times a host's circuit breaker tripped open.",
	},
	[]string{"host_id"},
)

var TaskEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "taskqueue",
		Name:      "enqueued_total",
		Help:      "Total number of tasks enqueued by priority.",
	},
	[]string{"priority"},
)

var TaskCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "taskqueue",
		Name:      "completed_total",
		Help:      "Total number of tasks completed by outcome.",
	},
	[]string{"outcome"},
)

var TaskQueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "podex",
		Subsystem: "taskqueue",
		Name:      "depth",
		Help:      "Current number of tasks in a given queue state.",
	},
	[]string{"session_id", "state"},
)

var ToolInvocationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "permission",
		Name:      "tool_invocations_total",
		Help:      "Total number of tool invocations by category and decision.",
	},
	[]string{"category", "decision"},
)

var RealtimeConnectionsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "podex",
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Current number of open realtime hub connections by namespace.",
	},
	[]string{"namespace"},
)

var PodRPCDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "podex",
		Subsystem: "realtime",
		Name:      "pod_rpc_duration_seconds",
		Help:      "Duration of reverse-RPC calls to self-hosted pods.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"method"},
)

var DeviceGrantsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "podex",
		Subsystem: "deviceauth",
		Name:      "grants_total",
		Help:      "Total number of device authorization outcomes.",
	},
	[]string{"outcome"},
)

// All returns all coordinator-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PlacementDecisionsTotal,
		PlacementDuration,
		WorkspaceTransitionsTotal,
		DockerCallDuration,
		DockerCircuitOpenTotal,
		TaskEnqueuedTotal,
		TaskCompletedTotal,
		TaskQueueDepth,
		ToolInvocationsTotal,
		RealtimeConnectionsGauge,
		PodRPCDuration,
		DeviceGrantsTotal,
	}
}
