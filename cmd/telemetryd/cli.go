package main

import (
	"context"
	"time"

	"client-telemetry/pkg/config"
	"client-telemetry/pkg/telemetry"
	"client-telemetry/pkg/utils"

	"github.com/sirupsen/logrus"
)

const topKindsShown = 3

// CLI logs periodic status lines while the daemon runs.
type CLI struct {
	telemetry telemetry.TelemetryReader
	config    *config.Config
	logger    logrus.FieldLogger

	lastSnapshot telemetry.Snapshot
	printed      bool
}

func NewCLI(reader telemetry.TelemetryReader, cfg *config.Config, logger logrus.FieldLogger) *CLI {
	return &CLI{
		telemetry: reader,
		config:    cfg,
		logger:    logger.WithField("component", "status"),
	}
}

// Run prints a status line every interval until ctx ends.
func (c *CLI) Run(ctx context.Context, interval time.Duration) error {
	fields := logrus.Fields{
		"liveness_threshold_ms": c.config.Liveness.ThresholdMs,
		"baseline_label":        c.config.Baseline.DefaultLabel,
	}
	if c.config.Relay.Enabled() {
		fields["relay"] = c.config.Relay.URL
	}
	if c.config.Archive.Enabled() {
		fields["archive"] = c.config.Archive.DgraphAddr
	}
	if c.config.Debug.Enabled() {
		fields["debug"] = c.config.Debug.ListenAddr
	}
	c.logger.WithFields(fields).Info("running")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.printStatus()
		}
	}
}

func (c *CLI) printStatus() {
	snapshot := c.telemetry.Snapshot()

	if c.shouldPrintStatus(snapshot) {
		c.logStatus(snapshot, "status")
	}

	c.lastSnapshot = snapshot
	c.printed = true
}

// printSummary logs the final state regardless of activity.
func (c *CLI) printSummary() {
	c.logStatus(c.telemetry.Snapshot(), "final status")
}

func (c *CLI) logStatus(snapshot telemetry.Snapshot, msg string) {
	entry := c.logger.WithFields(logrus.Fields{
		"events":    utils.FormatNumber(snapshot.EventsReceived),
		"dropped":   snapshot.EventsDropped,
		"rate":      snapshot.EventsPerSecond,
		"tiles":     snapshot.DistinctTiles,
		"errors":    snapshot.ErrorsTotal,
		"baselines": snapshot.BaselineCount,
		"desynced":  snapshot.Liveness.IsDesynced,
	})
	if snapshot.Liveness.IsDesynced {
		entry = entry.WithField("reason", snapshot.Liveness.Reason)
	}
	if top := utils.TopKinds(snapshot.Diagnostics.Counts(), topKindsShown); top != "" {
		entry = entry.WithField("top", top)
	}
	entry.Info(msg)
}

// shouldPrintStatus reports whether anything worth a log line changed.
func (c *CLI) shouldPrintStatus(snapshot telemetry.Snapshot) bool {
	if !c.printed {
		return true
	}

	if snapshot.EventsReceived != c.lastSnapshot.EventsReceived ||
		snapshot.EventsDropped != c.lastSnapshot.EventsDropped {
		return true
	}

	if snapshot.ErrorsTotal > c.lastSnapshot.ErrorsTotal {
		return true
	}

	if !snapshot.Liveness.SameVerdict(c.lastSnapshot.Liveness) {
		return true
	}

	if snapshot.BaselineCount != c.lastSnapshot.BaselineCount {
		return true
	}

	if len(snapshot.Connections) != len(c.lastSnapshot.Connections) {
		return true
	}
	for url, up := range snapshot.Connections {
		if prev, ok := c.lastSnapshot.Connections[url]; !ok || prev != up {
			return true
		}
	}

	return false
}
