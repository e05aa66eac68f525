package baseline

import (
	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/diagnostics"
)

// Store owns an ordered, bounded baseline history. Like the counters it
// snapshots, a Store has a single writer.
type Store struct {
	entries    []Entry
	maxEntries int
	clock      clock.Clock
}

func NewStore(maxEntries int, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{maxEntries: maxEntries, clock: clk}
}

// Capture snapshots counters under label and returns an independent copy of
// the stored entry.
func (s *Store) Capture(counters *diagnostics.Counters, label string) Entry {
	entry, next := Capture(CaptureOptions{
		Baselines:   s.entries,
		Diagnostics: counters,
		Label:       label,
		MaxEntries:  s.maxEntries,
		Clock:       s.clock,
	})
	s.entries = next
	return entry
}

// Entries returns a deep copy of the history, oldest first.
func (s *Store) Entries() []Entry {
	return CloneBaselines(s.entries)
}

func (s *Store) Len() int { return len(s.entries) }

// Latest returns the most recently captured entry.
func (s *Store) Latest() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1].Clone(), true
}

// Find returns the most recent entry whose label matches after sanitising.
func (s *Store) Find(label string) (Entry, bool) {
	want := SanitizeLabel(label, DefaultLabel)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Label == want {
			return s.entries[i].Clone(), true
		}
	}
	return Entry{}, false
}

func (s *Store) Clear() {
	s.entries = nil
}
