package baseline

import (
	"strings"

	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/diagnostics"
)

const (
	DefaultLabel      = "manual"
	DefaultMaxEntries = 20
)

// Entry is a frozen copy of the diagnostics counters. Entries are never
// mutated once captured.
type Entry struct {
	Label        string               `json:"label"`
	CapturedAtMs int64                `json:"capturedAtMs"`
	Diagnostics  diagnostics.Counters `json:"diagnostics"`
}

// Clone returns an entry that shares no storage with e.
func (e Entry) Clone() Entry {
	return Entry{
		Label:        e.Label,
		CapturedAtMs: e.CapturedAtMs,
		Diagnostics:  e.Diagnostics.Clone(),
	}
}

// SanitizeLabel trims label and falls back to fallback (itself trimmed, then
// DefaultLabel) when nothing is left.
func SanitizeLabel(label, fallback string) string {
	if trimmed := strings.TrimSpace(label); trimmed != "" {
		return trimmed
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return trimmed
	}
	return DefaultLabel
}

// Snapshot deep-copies the live counters.
func Snapshot(counters *diagnostics.Counters) diagnostics.Counters {
	if counters == nil {
		return diagnostics.Counters{}
	}
	return counters.Clone()
}

// CaptureOptions configures Capture. CapturedAtMs of zero means "now".
//
// MaxEntries of zero is the unset value and means DefaultMaxEntries, not a
// limit of zero: an explicit 0 cannot be told apart from an omitted field,
// so it keeps 20 entries rather than clamping to 1. Negative limits clamp to
// one. Pass 1 to keep only the newest entry.
type CaptureOptions struct {
	Baselines    []Entry
	Diagnostics  *diagnostics.Counters
	Label        string
	CapturedAtMs int64
	MaxEntries   int
	Clock        clock.Clock
}

// Capture freezes opts.Diagnostics and appends it to a copy of
// opts.Baselines, dropping the oldest entries beyond the limit. The returned
// entry is independent of the one stored in the returned history.
func Capture(opts CaptureOptions) (Entry, []Entry) {
	maxEntries := opts.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxEntries < 1 {
		maxEntries = 1
	}

	capturedAt := opts.CapturedAtMs
	if capturedAt == 0 {
		capturedAt = clock.NowMs(opts.Clock)
	}

	entry := Entry{
		Label:        SanitizeLabel(opts.Label, DefaultLabel),
		CapturedAtMs: capturedAt,
		Diagnostics:  Snapshot(opts.Diagnostics),
	}

	next := make([]Entry, 0, len(opts.Baselines)+1)
	next = append(next, opts.Baselines...)
	next = append(next, entry)
	if len(next) > maxEntries {
		next = next[len(next)-maxEntries:]
	}

	return entry.Clone(), next
}

// CloneBaselines deep-copies a baseline history.
func CloneBaselines(baselines []Entry) []Entry {
	if baselines == nil {
		return nil
	}
	out := make([]Entry, len(baselines))
	for i, entry := range baselines {
		out[i] = entry.Clone()
	}
	return out
}
