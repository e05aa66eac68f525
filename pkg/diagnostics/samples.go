package diagnostics

import (
	"encoding/json"
	"math"
)

// MaxSamples bounds every sample window. Older samples are evicted first.
const MaxSamples = 512

// SampleWindow is a fixed-capacity ring of the most recent duration samples.
// The zero value is an empty window ready for use.
type SampleWindow struct {
	buf   []float64
	start int
	n     int
}

// Push appends v, evicting the oldest sample once the window is full.
func (w *SampleWindow) Push(v float64) {
	if w.buf == nil {
		w.buf = make([]float64, MaxSamples)
	}
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of retained samples.
func (w SampleWindow) Len() int { return w.n }

// Values returns the retained samples oldest-first in a new slice.
func (w SampleWindow) Values() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Clone returns a window that shares no storage with w.
func (w SampleWindow) Clone() SampleWindow {
	if w.buf == nil {
		return SampleWindow{}
	}
	buf := make([]float64, len(w.buf))
	copy(buf, w.buf)
	return SampleWindow{buf: buf, start: w.start, n: w.n}
}

func (w SampleWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Values())
}

func (w *SampleWindow) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*w = SampleWindow{}
	for _, v := range values {
		w.Push(v)
	}
	return nil
}

// DurationSeries keeps all-time totals next to a windowed sample history.
// TotalMs and MaxMs are never reduced by eviction.
type DurationSeries struct {
	TotalMs float64      `json:"totalMs"`
	MaxMs   float64      `json:"maxMs"`
	Samples SampleWindow `json:"samples"`
}

func (s *DurationSeries) add(durationMs float64) {
	if math.IsNaN(durationMs) || math.IsInf(durationMs, 0) || durationMs < 0 {
		return
	}
	s.TotalMs += durationMs
	s.MaxMs = math.Max(s.MaxMs, durationMs)
	s.Samples.Push(durationMs)
}

// Clone returns a deep copy of the series.
func (s DurationSeries) Clone() DurationSeries {
	return DurationSeries{
		TotalMs: s.TotalMs,
		MaxMs:   s.MaxMs,
		Samples: s.Samples.Clone(),
	}
}
