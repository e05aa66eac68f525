package diagnostics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"client-telemetry/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCounters_ZeroedAndStamped(t *testing.T) {
	clk := clock.NewMockMs(1_700_000_000_000)
	c := NewCounters(clk)

	assert.Equal(t, int64(1_700_000_000_000), c.UpdatedAtMs)
	for kind, v := range c.Counts() {
		assert.Zerof(t, v, "counter %s should start at zero", kind)
	}
	assert.Zero(t, c.SwitchDurationMs.Samples.Len())
	assert.Zero(t, c.ManagerDurationMs.TotalMs)
}

func TestRecord_CountsEveryCountingKind(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))

	for i, kind := range Kinds() {
		if kind.RecordsDuration() {
			continue
		}
		for n := 0; n <= i; n++ {
			c.Record(Event{Kind: kind})
		}
	}

	for i, kind := range Kinds() {
		if kind.RecordsDuration() {
			continue
		}
		assert.Equalf(t, uint64(i+1), c.Count(kind), "counter %s", kind)
	}
	assert.Len(t, c.Counts(), len(Kinds())-2)
}

func TestRecord_UpdatesTimestamp(t *testing.T) {
	clk := clock.NewMockMs(1000)
	c := NewCounters(clk)

	clk.Advance(250 * time.Millisecond)
	c.Record(Event{Kind: TileFetchStarted})
	assert.Equal(t, int64(1250), c.UpdatedAtMs)

	clk.Advance(time.Second)
	c.Record(Event{Kind: "not_a_real_kind"})
	assert.Equal(t, int64(2250), c.UpdatedAtMs, "unknown kinds still refresh the timestamp")
}

func TestRecord_UnknownKindIsNoop(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))
	before := c.Counts()

	c.Record(Event{Kind: "camera_panned", DurationMs: 42})

	assert.Equal(t, before, c.Counts())
	assert.Zero(t, c.SwitchDurationMs.Samples.Len())
	assert.Zero(t, c.ManagerDurationMs.Samples.Len())
}

func TestRecord_DurationSeries(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))

	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 40})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 120})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 80})
	c.Record(Event{Kind: ManagerDurationRecorded, DurationMs: 7})
	c.Record(Event{Kind: ManagerDurationRecorded})

	assert.Equal(t, 240.0, c.SwitchDurationMs.TotalMs)
	assert.Equal(t, 120.0, c.SwitchDurationMs.MaxMs)
	assert.Equal(t, []float64{40, 120, 80}, c.SwitchDurationMs.Samples.Values())

	assert.Equal(t, 7.0, c.ManagerDurationMs.TotalMs)
	assert.Equal(t, []float64{7, 0}, c.ManagerDurationMs.Samples.Values(), "missing duration defaults to zero")

	assert.Zero(t, c.Count(SwitchDurationRecorded), "duration kinds do not have counters")
}

func TestRecord_SampleEvictionKeepsAllTimeTotals(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))

	total := 0.0
	for i := 1; i <= MaxSamples+10; i++ {
		c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: float64(i)})
		total += float64(i)
	}

	samples := c.SwitchDurationMs.Samples.Values()
	require.Len(t, samples, MaxSamples)
	assert.Equal(t, 11.0, samples[0], "oldest samples are evicted first")
	assert.Equal(t, float64(MaxSamples+10), samples[len(samples)-1])
	assert.Equal(t, total, c.SwitchDurationMs.TotalMs)
	assert.Equal(t, float64(MaxSamples+10), c.SwitchDurationMs.MaxMs)
}

func TestRecord_InvalidDurationsAreDropped(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))

	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: math.NaN()})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: math.Inf(1)})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: -5})

	assert.Zero(t, c.SwitchDurationMs.Samples.Len())
	assert.Zero(t, c.SwitchDurationMs.TotalMs)
	assert.Zero(t, c.SwitchDurationMs.MaxMs)
}

func TestRecord_NegativeDurationsDoNotEvictSamples(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))

	for i := 1; i <= MaxSamples; i++ {
		c.Record(Event{Kind: ManagerDurationRecorded, DurationMs: float64(i)})
	}
	before := c.ManagerDurationMs.Clone()

	for i := 0; i < 10; i++ {
		c.Record(Event{Kind: ManagerDurationRecorded, DurationMs: -1})
	}

	assert.Equal(t, before.Samples.Values(), c.ManagerDurationMs.Samples.Values())
	assert.Equal(t, before.TotalMs, c.ManagerDurationMs.TotalMs)
	assert.Equal(t, before.MaxMs, c.ManagerDurationMs.MaxMs)
}

func TestClone_IsIndependent(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))
	c.Record(Event{Kind: TileFetchStarted})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 10})

	snap := c.Clone()

	c.Record(Event{Kind: TileFetchStarted})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 20})

	assert.Equal(t, uint64(1), snap.TileFetchStarted)
	assert.Equal(t, []float64{10}, snap.SwitchDurationMs.Samples.Values())

	snap.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 99})
	assert.Equal(t, []float64{10, 20}, c.SwitchDurationMs.Samples.Values())
}

func TestClone_IndependentAfterWrap(t *testing.T) {
	c := NewCounters(clock.NewMockMs(0))
	for i := 0; i < MaxSamples+3; i++ {
		c.Record(Event{Kind: ManagerDurationRecorded, DurationMs: float64(i)})
	}

	snap := c.Clone()
	c.Record(Event{Kind: ManagerDurationRecorded, DurationMs: 1e6})

	values := snap.ManagerDurationMs.Samples.Values()
	assert.Equal(t, 3.0, values[0])
	assert.Equal(t, float64(MaxSamples+2), values[len(values)-1])
}

func TestCounters_JSONRoundTripPreservesSampleOrder(t *testing.T) {
	c := NewCounters(clock.NewMockMs(5))
	c.Record(Event{Kind: BoundsSwitchApplied})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 3})
	c.Record(Event{Kind: SwitchDurationRecorded, DurationMs: 1})

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"samples":[3,1]`)

	var decoded Counters
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(1), decoded.BoundsSwitchApplied)
	assert.Equal(t, []float64{3, 1}, decoded.SwitchDurationMs.Samples.Values())
}

func TestEventKind_Known(t *testing.T) {
	assert.True(t, TileFetchFailed.Known())
	assert.True(t, ManagerDurationRecorded.Known())
	assert.False(t, EventKind("tile_fetch_exploded").Known())
	assert.Len(t, Kinds(), 26)
}
