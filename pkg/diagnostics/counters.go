package diagnostics

import (
	"client-telemetry/pkg/clock"
)

// Counters accumulates map-pipeline events. A Counters value has a single
// writer; callers that share one across goroutines must serialise access.
type Counters struct {
	TransitionStarted             uint64 `json:"transitionStarted"`
	TransitionCommitted           uint64 `json:"transitionCommitted"`
	TransitionRolledBack          uint64 `json:"transitionRolledBack"`
	TransitionPrepareStaleDropped uint64 `json:"transitionPrepareStaleDropped"`

	ManagerUpdateStarted      uint64 `json:"managerUpdateStarted"`
	ManagerUpdateSkippedStale uint64 `json:"managerUpdateSkippedStale"`
	ManagerUpdateFailed       uint64 `json:"managerUpdateFailed"`

	TileFetchStarted   uint64 `json:"tileFetchStarted"`
	TileFetchSucceeded uint64 `json:"tileFetchSucceeded"`
	TileFetchFailed    uint64 `json:"tileFetchFailed"`

	PrefetchQueued   uint64 `json:"prefetchQueued"`
	PrefetchSkipped  uint64 `json:"prefetchSkipped"`
	PrefetchExecuted uint64 `json:"prefetchExecuted"`

	BoundsSwitchRequested            uint64 `json:"boundsSwitchRequested"`
	BoundsSwitchApplied              uint64 `json:"boundsSwitchApplied"`
	BoundsSwitchSkippedSameSignature uint64 `json:"boundsSwitchSkippedSameSignature"`
	BoundsSwitchStaleDropped         uint64 `json:"boundsSwitchStaleDropped"`
	BoundsSwitchSkippedStaleToken    uint64 `json:"boundsSwitchSkippedStaleToken"`
	BoundsSwitchFailed               uint64 `json:"boundsSwitchFailed"`

	RefreshRequested  uint64 `json:"refreshRequested"`
	RefreshExecuted   uint64 `json:"refreshExecuted"`
	RefreshSuperseded uint64 `json:"refreshSuperseded"`

	DuplicateTileCacheInvalidated   uint64 `json:"duplicateTileCacheInvalidated"`
	DuplicateTileReconcileRequested uint64 `json:"duplicateTileReconcileRequested"`

	SwitchDurationMs  DurationSeries `json:"switchDurationMs"`
	ManagerDurationMs DurationSeries `json:"managerDurationMs"`

	UpdatedAtMs int64 `json:"updatedAtMs"`

	clock clock.Clock
}

// NewCounters returns zeroed counters stamped with the current time.
func NewCounters(clk clock.Clock) *Counters {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Counters{
		UpdatedAtMs: clock.NowMs(clk),
		clock:       clk,
	}
}

// Record applies one event. Counting kinds increment their counter by one,
// duration kinds fold ev.DurationMs into their series, unknown kinds only
// refresh UpdatedAtMs.
func (c *Counters) Record(ev Event) {
	c.UpdatedAtMs = clock.NowMs(c.clock)

	switch ev.Kind {
	case SwitchDurationRecorded:
		c.SwitchDurationMs.add(ev.DurationMs)
		return
	case ManagerDurationRecorded:
		c.ManagerDurationMs.add(ev.DurationMs)
		return
	}

	if counter := c.counter(ev.Kind); counter != nil {
		*counter++
	}
}

// Count returns the counter for kind, or zero for duration and unknown kinds.
func (c *Counters) Count(kind EventKind) uint64 {
	if counter := c.counter(kind); counter != nil {
		return *counter
	}
	return 0
}

// Counts returns every counting kind with its current value.
func (c *Counters) Counts() map[EventKind]uint64 {
	out := make(map[EventKind]uint64, len(allKinds))
	for _, kind := range allKinds {
		if counter := c.counter(kind); counter != nil {
			out[kind] = *counter
		}
	}
	return out
}

// Clone returns a copy that shares no mutable state with c.
func (c *Counters) Clone() Counters {
	out := *c
	out.SwitchDurationMs = c.SwitchDurationMs.Clone()
	out.ManagerDurationMs = c.ManagerDurationMs.Clone()
	return out
}

func (c *Counters) counter(kind EventKind) *uint64 {
	switch kind {
	case TransitionStarted:
		return &c.TransitionStarted
	case TransitionCommitted:
		return &c.TransitionCommitted
	case TransitionRolledBack:
		return &c.TransitionRolledBack
	case TransitionPrepareStaleDropped:
		return &c.TransitionPrepareStaleDropped
	case ManagerUpdateStarted:
		return &c.ManagerUpdateStarted
	case ManagerUpdateSkippedStale:
		return &c.ManagerUpdateSkippedStale
	case ManagerUpdateFailed:
		return &c.ManagerUpdateFailed
	case TileFetchStarted:
		return &c.TileFetchStarted
	case TileFetchSucceeded:
		return &c.TileFetchSucceeded
	case TileFetchFailed:
		return &c.TileFetchFailed
	case PrefetchQueued:
		return &c.PrefetchQueued
	case PrefetchSkipped:
		return &c.PrefetchSkipped
	case PrefetchExecuted:
		return &c.PrefetchExecuted
	case BoundsSwitchRequested:
		return &c.BoundsSwitchRequested
	case BoundsSwitchApplied:
		return &c.BoundsSwitchApplied
	case BoundsSwitchSkippedSameSignature:
		return &c.BoundsSwitchSkippedSameSignature
	case BoundsSwitchStaleDropped:
		return &c.BoundsSwitchStaleDropped
	case BoundsSwitchSkippedStaleToken:
		return &c.BoundsSwitchSkippedStaleToken
	case BoundsSwitchFailed:
		return &c.BoundsSwitchFailed
	case RefreshRequested:
		return &c.RefreshRequested
	case RefreshExecuted:
		return &c.RefreshExecuted
	case RefreshSuperseded:
		return &c.RefreshSuperseded
	case DuplicateTileCacheInvalidated:
		return &c.DuplicateTileCacheInvalidated
	case DuplicateTileReconcileRequested:
		return &c.DuplicateTileReconcileRequested
	default:
		return nil
	}
}
