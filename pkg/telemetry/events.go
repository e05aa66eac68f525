package telemetry

import (
	"fmt"
	"time"

	"client-telemetry/pkg/diagnostics"
	"client-telemetry/pkg/liveness"
)

type TelemetryEvent interface {
	Timestamp() time.Time // When the event occurred
	EventType() string    // For categorization/filtering
}

// PipelineEventRecorded carries one map pipeline event into the counters.
type PipelineEventRecorded struct {
	timestamp time.Time
	Event     diagnostics.Event
	TileKey   string // Optional, used for distinct tile estimation
}

func (e PipelineEventRecorded) Timestamp() time.Time { return e.timestamp }
func (e PipelineEventRecorded) EventType() string    { return "pipeline_event_recorded" }

func NewPipelineEventRecorded(ev diagnostics.Event, tileKey string) PipelineEventRecorded {
	return PipelineEventRecorded{
		timestamp: time.Now(),
		Event:     ev,
		TileKey:   tileKey,
	}
}

type HeartbeatObserved struct {
	timestamp time.Time
	Heartbeat liveness.Heartbeat
	Source    string // e.g. "relay", "stdin"
}

func (e HeartbeatObserved) Timestamp() time.Time { return e.timestamp }
func (e HeartbeatObserved) EventType() string    { return "heartbeat_observed" }

func NewHeartbeatObserved(hb liveness.Heartbeat, source string) HeartbeatObserved {
	return HeartbeatObserved{
		timestamp: time.Now(),
		Heartbeat: hb,
		Source:    source,
	}
}

type ConnectionStatusChanged struct {
	timestamp time.Time
	RelayURL  string
	Connected bool
}

func (e ConnectionStatusChanged) Timestamp() time.Time { return e.timestamp }
func (e ConnectionStatusChanged) EventType() string    { return "connection_status_changed" }

func NewConnectionStatusChanged(relayURL string, connected bool) ConnectionStatusChanged {
	return ConnectionStatusChanged{
		timestamp: time.Now(),
		RelayURL:  relayURL,
		Connected: connected,
	}
}

type ClientError struct {
	timestamp time.Time
	Err       error
	Context   string // e.g. "relay_probe", "archive_save"
	Severity  ErrorSeverity
}

func (e ClientError) Timestamp() time.Time { return e.timestamp }
func (e ClientError) EventType() string    { return "client_error" }

func NewClientError(err error, context string, severity ErrorSeverity) ClientError {
	return ClientError{
		timestamp: time.Now(),
		Err:       err,
		Context:   context,
		Severity:  severity,
	}
}

// flushBarrier is queued by Flush and closes done once it reaches the loop.
type flushBarrier struct {
	done      chan struct{}
	timestamp time.Time
}

func (e flushBarrier) Timestamp() time.Time { return e.timestamp }
func (e flushBarrier) EventType() string    { return "flush_barrier" }

type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityCritical
)

var severityNames = map[ErrorSeverity]string{
	ErrorSeverityInfo:     "info",
	ErrorSeverityWarning:  "warning",
	ErrorSeverityError:    "error",
	ErrorSeverityCritical: "critical",
}

func (s ErrorSeverity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s ErrorSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ErrorSeverity) UnmarshalText(text []byte) error {
	for sev, name := range severityNames {
		if name == string(text) {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown error severity %q", text)
}

type TelemetryPublisher interface {
	// Publish sends a telemetry event to the aggregator.
	// This is a non-blocking, fire-and-forget call.
	Publish(event TelemetryEvent)
}
