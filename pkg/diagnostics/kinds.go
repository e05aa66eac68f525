package diagnostics

// EventKind tags a map-pipeline event. Unrecognised kinds are accepted and
// ignored so producers can ship new kinds ahead of this package.
type EventKind string

const (
	TransitionStarted             EventKind = "transition_started"
	TransitionCommitted           EventKind = "transition_committed"
	TransitionRolledBack          EventKind = "transition_rolled_back"
	TransitionPrepareStaleDropped EventKind = "transition_prepare_stale_dropped"

	ManagerUpdateStarted      EventKind = "manager_update_started"
	ManagerUpdateSkippedStale EventKind = "manager_update_skipped_stale"
	ManagerUpdateFailed       EventKind = "manager_update_failed"

	TileFetchStarted   EventKind = "tile_fetch_started"
	TileFetchSucceeded EventKind = "tile_fetch_succeeded"
	TileFetchFailed    EventKind = "tile_fetch_failed"

	PrefetchQueued   EventKind = "prefetch_queued"
	PrefetchSkipped  EventKind = "prefetch_skipped"
	PrefetchExecuted EventKind = "prefetch_executed"

	BoundsSwitchRequested            EventKind = "bounds_switch_requested"
	BoundsSwitchApplied              EventKind = "bounds_switch_applied"
	BoundsSwitchSkippedSameSignature EventKind = "bounds_switch_skipped_same_signature"
	BoundsSwitchStaleDropped         EventKind = "bounds_switch_stale_dropped"
	BoundsSwitchSkippedStaleToken    EventKind = "bounds_switch_skipped_stale_token"
	BoundsSwitchFailed               EventKind = "bounds_switch_failed"

	RefreshRequested  EventKind = "refresh_requested"
	RefreshExecuted   EventKind = "refresh_executed"
	RefreshSuperseded EventKind = "refresh_superseded"

	DuplicateTileCacheInvalidated   EventKind = "duplicate_tile_cache_invalidated"
	DuplicateTileReconcileRequested EventKind = "duplicate_tile_reconcile_requested"

	SwitchDurationRecorded  EventKind = "switch_duration_recorded"
	ManagerDurationRecorded EventKind = "manager_duration_recorded"
)

var allKinds = []EventKind{
	TransitionStarted,
	TransitionCommitted,
	TransitionRolledBack,
	TransitionPrepareStaleDropped,
	ManagerUpdateStarted,
	ManagerUpdateSkippedStale,
	ManagerUpdateFailed,
	TileFetchStarted,
	TileFetchSucceeded,
	TileFetchFailed,
	PrefetchQueued,
	PrefetchSkipped,
	PrefetchExecuted,
	BoundsSwitchRequested,
	BoundsSwitchApplied,
	BoundsSwitchSkippedSameSignature,
	BoundsSwitchStaleDropped,
	BoundsSwitchSkippedStaleToken,
	BoundsSwitchFailed,
	RefreshRequested,
	RefreshExecuted,
	RefreshSuperseded,
	DuplicateTileCacheInvalidated,
	DuplicateTileReconcileRequested,
	SwitchDurationRecorded,
	ManagerDurationRecorded,
}

// Kinds returns every recognised kind in declaration order.
func Kinds() []EventKind {
	out := make([]EventKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Known reports whether k is one of the recognised kinds.
func (k EventKind) Known() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RecordsDuration reports whether k feeds a duration series instead of a counter.
func (k EventKind) RecordsDuration() bool {
	return k == SwitchDurationRecorded || k == ManagerDurationRecorded
}

// Event is a single recordable occurrence. DurationMs is only read for the
// duration-recording kinds.
type Event struct {
	Kind       EventKind `json:"kind"`
	DurationMs float64   `json:"durationMs,omitempty"`
}
