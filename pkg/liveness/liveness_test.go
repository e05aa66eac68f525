package liveness

import (
	"encoding/json"
	"testing"
	"time"

	"client-telemetry/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) *int64 { return &v }

func TestComputeStatus_Priority(t *testing.T) {
	hb := &Heartbeat{TimestampMs: 1_000, Origin: OriginGeneric}

	tests := []struct {
		name    string
		in      Inputs
		want    Reason
		desync  bool
		elapsed *int64
	}{
		{
			name: "no heartbeat",
			in:   Inputs{ThresholdMs: 10_000, NowMs: 1_000_000},
			want: ReasonNoHeartbeat,
		},
		{
			name:    "default measures from heartbeat",
			in:      Inputs{LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 4_000},
			elapsed: ms(3_000),
		},
		{
			name:    "stale heartbeat alone is not desync",
			in:      Inputs{LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 100_000},
			elapsed: ms(99_000),
		},
		{
			name: "pending tx under threshold measures from submission",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 6_000,
				LastTxSubmittedAtMs: ms(2_000),
			},
			elapsed: ms(4_000),
		},
		{
			name: "pending tx at threshold is not desync",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 12_000,
				LastTxSubmittedAtMs: ms(2_000),
			},
			elapsed: ms(10_000),
		},
		{
			name: "pending tx past threshold",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 12_001,
				LastTxSubmittedAtMs: ms(2_000),
			},
			want: ReasonPendingTx, desync: true, elapsed: ms(10_001),
		},
		{
			name: "older confirmation leaves tx pending",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 20_000,
				LastTxSubmittedAtMs: ms(2_000), LastTxConfirmedAtMs: ms(1_500),
			},
			want: ReasonPendingTx, desync: true, elapsed: ms(18_000),
		},
		{
			name: "equal confirmation clears pending",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 20_000,
				LastTxSubmittedAtMs: ms(2_000), LastTxConfirmedAtMs: ms(2_000),
			},
			elapsed: ms(19_000),
		},
		{
			name: "forced beats pending tx",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 20_000,
				ForcedDesyncUntilMs: ms(25_000), LastTxSubmittedAtMs: ms(2_000),
			},
			want: ReasonForced, desync: true, elapsed: ms(18_000),
		},
		{
			name: "forced without any signal",
			in:   Inputs{ThresholdMs: 10_000, NowMs: 20_000, ForcedDesyncUntilMs: ms(25_000)},
			want: ReasonForced, desync: true,
		},
		{
			name: "forced window expired",
			in: Inputs{
				LastHeartbeat: hb, ThresholdMs: 10_000, NowMs: 25_000,
				ForcedDesyncUntilMs: ms(25_000),
			},
			elapsed: ms(24_000),
		},
		{
			name:    "heartbeat from the future clamps elapsed",
			in:      Inputs{LastHeartbeat: &Heartbeat{TimestampMs: 9_000}, ThresholdMs: 10_000, NowMs: 5_000},
			elapsed: ms(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(tt.in)
			assert.Equal(t, tt.want, got.Reason)
			assert.Equal(t, tt.desync, got.IsDesynced)
			assert.Equal(t, tt.elapsed, got.ElapsedMs)
		})
	}
}

func TestDetector_NoHeartbeatRegardlessOfTime(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 0)

	assert.Equal(t, DefaultThresholdMs, d.ThresholdMs())
	for i := 0; i < 5; i++ {
		clk.Advance(time.Hour)
		require.True(t, d.Tick())
		status := d.Status()
		assert.False(t, status.IsDesynced)
		assert.Equal(t, ReasonNoHeartbeat, status.Reason)
		assert.Nil(t, status.ElapsedMs)
	}
}

func TestDetector_TickOnlyWhenTimeMoves(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 10_000)

	assert.False(t, d.Tick())
	clk.Advance(time.Millisecond)
	assert.True(t, d.Tick())
	assert.False(t, d.Tick())
	assert.Equal(t, int64(1_001), d.State().NowMs)
}

func TestDetector_StatusIsCachedUntilTick(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 10_000)
	d.SetHeartbeat(Heartbeat{TimestampMs: 1_000, Origin: OriginGeneric})

	clk.Advance(3 * time.Second)
	assert.Equal(t, ms(0), d.Status().ElapsedMs, "reads never recompute")

	d.Tick()
	assert.Equal(t, ms(3_000), d.Status().ElapsedMs)
}

func TestDetector_ForceDesyncWindow(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 10_000)
	d.SetHeartbeat(Heartbeat{TimestampMs: 1_000, Origin: OriginGeneric})

	d.ForceDesync(5_000)
	status := d.Status()
	assert.True(t, status.IsDesynced)
	assert.Equal(t, ReasonForced, status.Reason)
	assert.Equal(t, ms(6_000), d.State().ForcedDesyncUntilMs)

	clk.Advance(4_999 * time.Millisecond)
	d.Tick()
	assert.Equal(t, ReasonForced, d.Status().Reason)

	clk.Advance(time.Millisecond)
	d.Tick()
	status = d.Status()
	assert.False(t, status.IsDesynced)
	assert.Equal(t, ReasonNone, status.Reason)
	assert.Equal(t, ms(5_000), status.ElapsedMs)
}

func TestDetector_ForceDesyncDefaultsToTwiceThreshold(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 3_000)

	clk.Advance(time.Second)
	d.ForceDesync(0)

	state := d.State()
	assert.Equal(t, int64(2_000), state.NowMs, "forcing also advances now")
	assert.Equal(t, ms(8_000), state.ForcedDesyncUntilMs)
	assert.Equal(t, ReasonForced, state.Status.Reason)

	d.ClearForcedDesync()
	assert.Nil(t, d.State().ForcedDesyncUntilMs)
	assert.Equal(t, ReasonNoHeartbeat, d.Status().Reason)

	d.ClearForcedDesync()
	assert.Equal(t, ReasonNoHeartbeat, d.Status().Reason)
}

func TestDetector_OutOfOrderHeartbeatIgnored(t *testing.T) {
	clk := clock.NewMockMs(5_000)
	d := NewDetector(clk, 10_000)

	require.True(t, d.SetHeartbeat(Heartbeat{TimestampMs: 5_000, Origin: OriginGeneric}))
	before := d.State()

	assert.False(t, d.SetHeartbeat(Heartbeat{TimestampMs: 4_000, Origin: OriginTransactionSubmitted}))
	after := d.State()
	assert.Equal(t, before.LastHeartbeat, after.LastHeartbeat)
	assert.Equal(t, before.Status, after.Status)
	assert.Nil(t, after.LastTxSubmittedAtMs, "ignored heartbeats leave tx timestamps alone")

	assert.True(t, d.SetHeartbeat(Heartbeat{TimestampMs: 5_000, Origin: OriginGeneric}), "equal timestamps are applied")
}

func TestDetector_PendingTransactionLifecycle(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 10_000)

	d.SetHeartbeat(Heartbeat{TimestampMs: 1_000, Origin: OriginTransactionSubmitted})
	assert.False(t, d.Status().IsDesynced)
	assert.Equal(t, ms(1_000), d.State().LastTxSubmittedAtMs)

	clk.Advance(10_001 * time.Millisecond)
	d.Tick()
	status := d.Status()
	assert.True(t, status.IsDesynced)
	assert.Equal(t, ReasonPendingTx, status.Reason)
	assert.Equal(t, ms(10_001), status.ElapsedMs)

	d.SetHeartbeat(Heartbeat{TimestampMs: 11_001, Origin: OriginTransactionConfirmed})
	status = d.Status()
	assert.False(t, status.IsDesynced)
	assert.Equal(t, ReasonNone, status.Reason)
	assert.Equal(t, ms(0), status.ElapsedMs)
}

func TestDetector_SetThresholdRecomputes(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 10_000)
	d.SetHeartbeat(Heartbeat{TimestampMs: 1_000, Origin: OriginTransactionSubmitted})
	clk.Advance(5 * time.Second)
	d.Tick()
	assert.False(t, d.Status().IsDesynced)

	d.SetThreshold(4_000)
	assert.Equal(t, ReasonPendingTx, d.Status().Reason)

	d.SetThreshold(-1)
	assert.Equal(t, int64(4_000), d.ThresholdMs())
}

func TestDetector_Subscribe(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	d := NewDetector(clk, 10_000)

	var seen []Reason
	cancel := d.Subscribe(func(s NetworkStatus) { seen = append(seen, s.Reason) })

	d.SetHeartbeat(Heartbeat{TimestampMs: 1_000, Origin: OriginGeneric})
	clk.Advance(time.Second)
	d.Tick()
	d.ForceDesync(500)
	clk.Advance(time.Second)
	d.Tick()

	assert.Equal(t, []Reason{ReasonNone, ReasonForced, ReasonNone}, seen, "elapsed-only changes are not reported")

	cancel()
	d.ForceDesync(500)
	assert.Len(t, seen, 3)
}

func TestDetectors_AreIndependent(t *testing.T) {
	clk := clock.NewMockMs(1_000)
	a := NewDetector(clk, 10_000)
	b := NewDetector(clk, 10_000)

	a.ForceDesync(1_000)
	assert.True(t, a.Status().IsDesynced)
	assert.False(t, b.Status().IsDesynced)
}

func TestNetworkStatus_JSON(t *testing.T) {
	data, err := json.Marshal(NetworkStatus{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"isDesynced":false,"reason":null,"elapsedMs":null}`, string(data))

	data, err = json.Marshal(NetworkStatus{IsDesynced: true, Reason: ReasonPendingTx, ElapsedMs: ms(12)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"isDesynced":true,"reason":"pending-tx","elapsedMs":12}`, string(data))
}

func TestOrigin_Valid(t *testing.T) {
	assert.True(t, OriginGeneric.Valid())
	assert.True(t, OriginTransactionConfirmed.Valid())
	assert.False(t, Origin("mempool").Valid())
}
