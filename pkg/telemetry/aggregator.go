package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/diagnostics"
	"client-telemetry/pkg/liveness"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/regression"

	"github.com/axiomhq/hyperloglog"
	"github.com/sirupsen/logrus"
)

// ErrBaselineNotFound is returned when no baseline matches a requested label.
var ErrBaselineNotFound = errors.New("baseline not found")

// Config for telemetry settings
type Config struct {
	BufferSize        int
	MaxRecentErrors   int
	RateWindowSeconds int

	BaselineMaxEntries int
	DefaultLabel       string

	LivenessThresholdMs int64
	ForcedDesyncMs      int64 // 0 means twice the threshold

	Tolerances regression.Tolerances
}

func DefaultConfig() Config {
	return Config{
		BufferSize:          1000,
		MaxRecentErrors:     50,
		RateWindowSeconds:   10,
		BaselineMaxEntries:  baseline.DefaultMaxEntries,
		DefaultLabel:        baseline.DefaultLabel,
		LivenessThresholdMs: liveness.DefaultThresholdMs,
		Tolerances:          regression.DefaultTolerances(),
	}
}

// Aggregator owns the diagnostics counters, the baseline history and the
// liveness detector. Events arrive through Publish and are applied on the
// aggregator's goroutine; direct operations take the same lock, so every
// core value keeps a single writer.
type Aggregator struct {
	mu    sync.RWMutex
	clock clock.Clock
	cfg   Config
	log   logrus.FieldLogger

	// Core state
	counters  *diagnostics.Counters
	baselines *baseline.Store
	detector  *liveness.Detector
	tiles     *hyperloglog.Sketch

	// Event flow
	eventsReceived     uint64
	eventsDropped      atomic.Uint64
	heartbeatsObserved uint64
	heartbeatsIgnored  uint64
	distinctTiles      uint64
	eventTimes         []time.Time

	connections map[string]bool

	// Errors
	errorsTotal      uint64
	errorsByType     map[string]uint64
	errorsBySeverity map[ErrorSeverity]uint64
	recentErrors     []string
	errorIndex       int

	// Hooks run outside the lock
	hookMu          sync.RWMutex
	baselineHooks   []func(baseline.Entry)
	reportHooks     []func(regression.Report)
	livenessHooks   []func(liveness.NetworkStatus)
	pendingLiveness []liveness.NetworkStatus

	// Control channels
	eventCh  chan TelemetryEvent
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	startTime time.Time
}

func NewAggregator(clk clock.Clock, cfg Config, log logrus.FieldLogger) *Aggregator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.MaxRecentErrors <= 0 {
		cfg.MaxRecentErrors = 1
	}
	if cfg.RateWindowSeconds <= 0 {
		cfg.RateWindowSeconds = 10
	}

	a := &Aggregator{
		clock:            clk,
		cfg:              cfg,
		log:              logging.Component(log, "telemetry"),
		counters:         diagnostics.NewCounters(clk),
		baselines:        baseline.NewStore(cfg.BaselineMaxEntries, clk),
		detector:         liveness.NewDetector(clk, cfg.LivenessThresholdMs),
		tiles:            hyperloglog.New14(),
		eventTimes:       make([]time.Time, 0, cfg.RateWindowSeconds*10),
		connections:      make(map[string]bool),
		errorsByType:     make(map[string]uint64),
		errorsBySeverity: make(map[ErrorSeverity]uint64),
		recentErrors:     make([]string, cfg.MaxRecentErrors),
		eventCh:          make(chan TelemetryEvent, cfg.BufferSize),
		done:             make(chan struct{}),
		startTime:        clk.Now(),
	}

	a.detector.Subscribe(func(status liveness.NetworkStatus) {
		// runs under a.mu; delivered by flushLiveness once the lock is released
		a.pendingLiveness = append(a.pendingLiveness, status)
		entry := a.log.WithField("reason", string(status.Reason))
		if status.IsDesynced {
			entry.Warn("client desynced")
		} else {
			entry.Info("client in sync")
		}
	})
	return a
}

// Start begins processing telemetry events
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.processEvents(ctx)
}

// Stop shuts down the event loop. Events still buffered are applied first.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
	a.wg.Wait()
}

// Publish implements TelemetryPublisher. It never blocks; events are dropped
// and counted when the buffer is full.
func (a *Aggregator) Publish(event TelemetryEvent) {
	select {
	case a.eventCh <- event:
	default:
		a.eventsDropped.Add(1)
	}
}

// Flush blocks until every event published before the call has been applied,
// or ctx ends. Unlike Publish it waits for buffer space.
func (a *Aggregator) Flush(ctx context.Context) error {
	b := flushBarrier{done: make(chan struct{}), timestamp: a.clock.Now()}
	select {
	case a.eventCh <- b:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Aggregator) processEvents(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			a.drain()
			return
		case event := <-a.eventCh:
			a.handleEvent(event)
		}
	}
}

func (a *Aggregator) drain() {
	for {
		select {
		case event := <-a.eventCh:
			a.handleEvent(event)
		default:
			return
		}
	}
}

func (a *Aggregator) handleEvent(event TelemetryEvent) {
	a.mu.Lock()
	now := a.clock.Now()

	switch e := event.(type) {
	case PipelineEventRecorded:
		a.eventsReceived++
		a.addEventTime(now)
		a.counters.Record(e.Event)
		if e.Event.Kind == diagnostics.TileFetchStarted && e.TileKey != "" {
			a.tiles.Insert([]byte(e.TileKey))
			a.distinctTiles = a.tiles.Estimate()
		}

	case HeartbeatObserved:
		if a.detector.SetHeartbeat(e.Heartbeat) {
			a.heartbeatsObserved++
		} else {
			a.heartbeatsIgnored++
			a.log.WithFields(logrus.Fields{
				"timestamp": e.Heartbeat.TimestampMs,
				"origin":    string(e.Heartbeat.Origin),
				"source":    e.Source,
			}).Debug("ignored out-of-order heartbeat")
		}

	case ConnectionStatusChanged:
		a.connections[e.RelayURL] = e.Connected

	case flushBarrier:
		close(e.done)

	case ClientError:
		a.errorsTotal++
		a.errorsByType[e.Context]++
		a.errorsBySeverity[e.Severity]++
		msg := e.Context
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", e.Context, e.Err)
		}
		a.addRecentError(msg)
	}
	a.mu.Unlock()

	a.flushLiveness()
}

// Snapshot implements TelemetryReader
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.clock.Now()

	connections := make(map[string]bool, len(a.connections))
	for k, v := range a.connections {
		connections[k] = v
	}
	errorsByType := make(map[string]uint64, len(a.errorsByType))
	for k, v := range a.errorsByType {
		errorsByType[k] = v
	}
	errorsBySeverity := make(map[ErrorSeverity]uint64, len(a.errorsBySeverity))
	for k, v := range a.errorsBySeverity {
		errorsBySeverity[k] = v
	}

	// newest first
	recentErrors := make([]string, 0)
	for i := 0; i < len(a.recentErrors); i++ {
		idx := (a.errorIndex - i - 1 + len(a.recentErrors)) % len(a.recentErrors)
		if a.recentErrors[idx] != "" {
			recentErrors = append(recentErrors, a.recentErrors[idx])
		}
	}

	snap := Snapshot{
		Diagnostics:         a.counters.Clone(),
		Liveness:            a.detector.Status(),
		LivenessThresholdMs: a.detector.ThresholdMs(),
		BaselineCount:       a.baselines.Len(),
		EventsReceived:      a.eventsReceived,
		EventsDropped:       a.eventsDropped.Load(),
		HeartbeatsObserved:  a.heartbeatsObserved,
		HeartbeatsIgnored:   a.heartbeatsIgnored,
		DistinctTiles:       a.distinctTiles,
		EventsPerSecond:     a.calculateRate(now),
		Connections:         connections,
		UptimeSeconds:       now.Sub(a.startTime).Seconds(),
		ChannelUtilization:  float64(len(a.eventCh)) / float64(cap(a.eventCh)) * 100,
		ErrorsTotal:         a.errorsTotal,
		ErrorsByType:        errorsByType,
		ErrorsBySeverity:    errorsBySeverity,
		RecentErrors:        recentErrors,
	}
	if latest, ok := a.baselines.Latest(); ok {
		snap.LatestBaseline = latest.Label
	}
	return snap
}

// CaptureBaseline freezes the current counters. A blank label falls back to
// the configured default label.
func (a *Aggregator) CaptureBaseline(label string) baseline.Entry {
	a.mu.Lock()
	entry := a.baselines.Capture(a.counters, baseline.SanitizeLabel(label, a.cfg.DefaultLabel))
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"label":       entry.Label,
		"captured_at": entry.CapturedAtMs,
	}).Info("baseline captured")

	a.hookMu.RLock()
	hooks := a.baselineHooks
	a.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(entry.Clone())
	}
	return entry
}

func (a *Aggregator) Baselines() []baseline.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baselines.Entries()
}

// Evaluate compares the live counters against the most recent baseline with
// the given label, or the most recent baseline of all when label is blank.
func (a *Aggregator) Evaluate(label string) (regression.Report, error) {
	a.mu.RLock()
	var (
		entry baseline.Entry
		ok    bool
	)
	if label == "" {
		entry, ok = a.baselines.Latest()
	} else {
		entry, ok = a.baselines.Find(label)
	}
	if !ok {
		a.mu.RUnlock()
		if label == "" {
			return regression.Report{}, ErrBaselineNotFound
		}
		return regression.Report{}, fmt.Errorf("%w: %q", ErrBaselineNotFound, label)
	}
	report := regression.Evaluate(entry, a.counters, clock.NowMs(a.clock), a.cfg.Tolerances)
	a.mu.RUnlock()

	a.log.WithFields(logrus.Fields{
		"label":  report.Label,
		"status": string(report.Status()),
	}).Debug("regression evaluated")

	a.hookMu.RLock()
	hooks := a.reportHooks
	a.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(report)
	}
	return report, nil
}

// ForceDesync forces a desync for durationMs. Non-positive durations use the
// configured window, then twice the threshold.
func (a *Aggregator) ForceDesync(durationMs int64) {
	if durationMs <= 0 {
		durationMs = a.cfg.ForcedDesyncMs
	}
	a.mu.Lock()
	a.detector.ForceDesync(durationMs)
	a.mu.Unlock()
	a.flushLiveness()
}

func (a *Aggregator) ClearForcedDesync() {
	a.mu.Lock()
	a.detector.ClearForcedDesync()
	a.mu.Unlock()
	a.flushLiveness()
}

func (a *Aggregator) SetThreshold(ms int64) {
	a.mu.Lock()
	a.detector.SetThreshold(ms)
	a.mu.Unlock()
	a.flushLiveness()
}

// Tick advances the liveness detector to the current time.
func (a *Aggregator) Tick() bool {
	a.mu.Lock()
	changed := a.detector.Tick()
	a.mu.Unlock()
	a.flushLiveness()
	return changed
}

func (a *Aggregator) Liveness() liveness.NetworkStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector.Status()
}

func (a *Aggregator) LivenessState() liveness.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector.State()
}

// OnBaselineCaptured registers fn to receive every captured baseline.
func (a *Aggregator) OnBaselineCaptured(fn func(baseline.Entry)) {
	a.hookMu.Lock()
	defer a.hookMu.Unlock()
	a.baselineHooks = append(a.baselineHooks, fn)
}

// OnReport registers fn to receive every regression report.
func (a *Aggregator) OnReport(fn func(regression.Report)) {
	a.hookMu.Lock()
	defer a.hookMu.Unlock()
	a.reportHooks = append(a.reportHooks, fn)
}

// OnLivenessChange registers fn to receive liveness verdict changes.
func (a *Aggregator) OnLivenessChange(fn func(liveness.NetworkStatus)) {
	a.hookMu.Lock()
	defer a.hookMu.Unlock()
	a.livenessHooks = append(a.livenessHooks, fn)
}

func (a *Aggregator) flushLiveness() {
	a.mu.Lock()
	pending := a.pendingLiveness
	a.pendingLiveness = nil
	a.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	a.hookMu.RLock()
	hooks := a.livenessHooks
	a.hookMu.RUnlock()
	for _, status := range pending {
		for _, fn := range hooks {
			fn(status)
		}
	}
}

func (a *Aggregator) addEventTime(t time.Time) {
	cutoff := t.Add(-time.Duration(a.cfg.RateWindowSeconds) * time.Second)

	for len(a.eventTimes) > 0 && a.eventTimes[0].Before(cutoff) {
		a.eventTimes = a.eventTimes[1:]
	}

	a.eventTimes = append(a.eventTimes, t)
}

func (a *Aggregator) addRecentError(err string) {
	a.recentErrors[a.errorIndex] = err
	a.errorIndex = (a.errorIndex + 1) % len(a.recentErrors)
}

func (a *Aggregator) calculateRate(now time.Time) float64 {
	if len(a.eventTimes) == 0 {
		return 0.0
	}

	cutoff := now.Add(-time.Duration(a.cfg.RateWindowSeconds) * time.Second)
	count := 0
	for _, t := range a.eventTimes {
		if t.After(cutoff) {
			count++
		}
	}
	return float64(count) / float64(a.cfg.RateWindowSeconds)
}
