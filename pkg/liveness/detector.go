package liveness

import "client-telemetry/pkg/clock"

// State is a read-only copy of everything a Detector holds.
type State struct {
	LastHeartbeat       *Heartbeat    `json:"lastHeartbeat"`
	ThresholdMs         int64         `json:"thresholdMs"`
	ForcedDesyncUntilMs *int64        `json:"forcedDesyncUntil"`
	LastTxSubmittedAtMs *int64        `json:"lastTransactionSubmittedAt"`
	LastTxConfirmedAtMs *int64        `json:"lastTransactionConfirmedAt"`
	NowMs               int64         `json:"now"`
	Status              NetworkStatus `json:"status"`
}

type listener struct {
	id int
	fn func(NetworkStatus)
}

// Detector holds liveness state and keeps its status derived from it after
// every mutation. It has a single writer and never owns a timer; an external
// driver calls Tick.
type Detector struct {
	clock clock.Clock

	lastHeartbeat       *Heartbeat
	thresholdMs         int64
	forcedDesyncUntilMs *int64
	lastTxSubmittedAtMs *int64
	lastTxConfirmedAtMs *int64
	nowMs               int64

	status NetworkStatus

	listeners []listener
	nextID    int
}

// NewDetector returns a detector with no heartbeat. A non-positive threshold
// selects DefaultThresholdMs.
func NewDetector(clk clock.Clock, thresholdMs int64) *Detector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if thresholdMs <= 0 {
		thresholdMs = DefaultThresholdMs
	}
	d := &Detector{
		clock:       clk,
		thresholdMs: thresholdMs,
		nowMs:       clock.NowMs(clk),
	}
	d.status = ComputeStatus(d.inputs())
	return d
}

// SetHeartbeat records hb unless a strictly newer heartbeat is already held.
// It reports whether hb was applied.
func (d *Detector) SetHeartbeat(hb Heartbeat) bool {
	if d.lastHeartbeat != nil && d.lastHeartbeat.TimestampMs > hb.TimestampMs {
		return false
	}
	stored := hb
	d.lastHeartbeat = &stored

	ts := hb.TimestampMs
	switch hb.Origin {
	case OriginTransactionSubmitted:
		d.lastTxSubmittedAtMs = &ts
	case OriginTransactionConfirmed:
		d.lastTxConfirmedAtMs = &ts
	}

	d.nowMs = clock.NowMs(d.clock)
	d.recompute()
	return true
}

// SetThreshold ignores non-positive values.
func (d *Detector) SetThreshold(ms int64) {
	if ms <= 0 || ms == d.thresholdMs {
		return
	}
	d.thresholdMs = ms
	d.recompute()
}

func (d *Detector) ThresholdMs() int64 { return d.thresholdMs }

// ForceDesync reports desync for durationMs from now. A non-positive duration
// means twice the threshold.
func (d *Detector) ForceDesync(durationMs int64) {
	if durationMs <= 0 {
		durationMs = d.thresholdMs * 2
	}
	d.nowMs = clock.NowMs(d.clock)
	until := d.nowMs + durationMs
	d.forcedDesyncUntilMs = &until
	d.recompute()
}

func (d *Detector) ClearForcedDesync() {
	if d.forcedDesyncUntilMs == nil {
		return
	}
	d.forcedDesyncUntilMs = nil
	d.recompute()
}

// Tick advances now to the clock reading. It reports whether anything was
// recomputed, which only happens when the reading moved.
func (d *Detector) Tick() bool {
	now := clock.NowMs(d.clock)
	if now == d.nowMs {
		return false
	}
	d.nowMs = now
	d.recompute()
	return true
}

// Status returns the cached verdict without recomputing it.
func (d *Detector) Status() NetworkStatus {
	return d.status.clone()
}

func (d *Detector) State() State {
	var hb *Heartbeat
	if d.lastHeartbeat != nil {
		c := *d.lastHeartbeat
		hb = &c
	}
	return State{
		LastHeartbeat:       hb,
		ThresholdMs:         d.thresholdMs,
		ForcedDesyncUntilMs: copyMs(d.forcedDesyncUntilMs),
		LastTxSubmittedAtMs: copyMs(d.lastTxSubmittedAtMs),
		LastTxConfirmedAtMs: copyMs(d.lastTxConfirmedAtMs),
		NowMs:               d.nowMs,
		Status:              d.status.clone(),
	}
}

// Subscribe registers fn to run after any mutation that changes the verdict
// (desync flag or reason). The returned func removes it.
func (d *Detector) Subscribe(fn func(NetworkStatus)) (cancel func()) {
	id := d.nextID
	d.nextID++
	d.listeners = append(d.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range d.listeners {
			if l.id == id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *Detector) inputs() Inputs {
	return Inputs{
		LastHeartbeat:       d.lastHeartbeat,
		ThresholdMs:         d.thresholdMs,
		ForcedDesyncUntilMs: d.forcedDesyncUntilMs,
		NowMs:               d.nowMs,
		LastTxSubmittedAtMs: d.lastTxSubmittedAtMs,
		LastTxConfirmedAtMs: d.lastTxConfirmedAtMs,
	}
}

func (d *Detector) recompute() {
	prev := d.status
	d.status = ComputeStatus(d.inputs())
	if prev.SameVerdict(d.status) {
		return
	}
	for _, l := range d.listeners {
		l.fn(d.status.clone())
	}
}
