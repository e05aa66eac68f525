package telemetry

import (
	"client-telemetry/pkg/diagnostics"
	"client-telemetry/pkg/liveness"
)

type Snapshot struct {
	// Core state
	Diagnostics         diagnostics.Counters   `json:"diagnostics"`
	Liveness            liveness.NetworkStatus `json:"liveness"`
	LivenessThresholdMs int64                  `json:"livenessThresholdMs"`
	BaselineCount       int                    `json:"baselineCount"`
	LatestBaseline      string                 `json:"latestBaseline,omitempty"`

	// Event flow
	EventsReceived     uint64  `json:"eventsReceived"`
	EventsDropped      uint64  `json:"eventsDropped"`
	HeartbeatsObserved uint64  `json:"heartbeatsObserved"`
	HeartbeatsIgnored  uint64  `json:"heartbeatsIgnored"`
	DistinctTiles      uint64  `json:"distinctTiles"`
	EventsPerSecond    float64 `json:"eventsPerSecond"`

	// Connection status, keyed by relay URL
	Connections map[string]bool `json:"connections"`

	// System metrics
	UptimeSeconds      float64 `json:"uptimeSeconds"`
	ChannelUtilization float64 `json:"channelUtilization"`

	// Error breakdown
	ErrorsTotal      uint64                   `json:"errorsTotal"`
	ErrorsByType     map[string]uint64        `json:"errorsByType"`
	ErrorsBySeverity map[ErrorSeverity]uint64 `json:"errorsBySeverity"`
	RecentErrors     []string                 `json:"recentErrors"`
}

type TelemetryReader interface {
	Snapshot() Snapshot
}
