package main

import (
	"testing"

	"client-telemetry/pkg/config"
	"client-telemetry/pkg/liveness"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/telemetry"

	"github.com/stretchr/testify/assert"
)

type staticReader struct {
	snap telemetry.Snapshot
}

func (s *staticReader) Snapshot() telemetry.Snapshot { return s.snap }

func TestCLI_ShouldPrintStatus(t *testing.T) {
	reader := &staticReader{}
	c := NewCLI(reader, config.Default(), logging.Discard())

	assert.True(t, c.shouldPrintStatus(reader.snap), "first status always prints")
	c.printStatus()
	assert.False(t, c.shouldPrintStatus(reader.snap), "nothing changed")

	tests := []struct {
		name   string
		mutate func(*telemetry.Snapshot)
	}{
		{"events", func(s *telemetry.Snapshot) { s.EventsReceived = 5 }},
		{"drops", func(s *telemetry.Snapshot) { s.EventsDropped = 1 }},
		{"errors", func(s *telemetry.Snapshot) { s.ErrorsTotal = 1 }},
		{"liveness", func(s *telemetry.Snapshot) {
			s.Liveness = liveness.NetworkStatus{IsDesynced: true, Reason: liveness.ReasonNoHeartbeat}
		}},
		{"baselines", func(s *telemetry.Snapshot) { s.BaselineCount = 1 }},
		{"connections", func(s *telemetry.Snapshot) { s.Connections = map[string]bool{"wss://r": true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := c.lastSnapshot
			tt.mutate(&snap)
			assert.True(t, c.shouldPrintStatus(snap))
		})
	}
}

func TestCLI_ConnectionFlipPrints(t *testing.T) {
	reader := &staticReader{snap: telemetry.Snapshot{Connections: map[string]bool{"wss://r": true}}}
	c := NewCLI(reader, config.Default(), logging.Discard())
	c.printStatus()

	flipped := reader.snap
	flipped.Connections = map[string]bool{"wss://r": false}
	assert.True(t, c.shouldPrintStatus(flipped))
}
