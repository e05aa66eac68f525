package archive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/diagnostics"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/regression"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestClient(t *testing.T, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := NewClient("localhost:9080", maxRetries, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "busy"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad schema"), false},
		{"aborted", status.Error(codes.Aborted, "conflict"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(1))
	assert.Equal(t, 200*time.Millisecond, backoff(2))
	assert.Equal(t, 400*time.Millisecond, backoff(3))
}

func TestWithRetries_SucceedsAfterTransientErrors(t *testing.T) {
	c, slept := newTestClient(t, 3)

	calls := 0
	err := c.withRetries(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return status.Error(codes.Unavailable, "down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestWithRetries_GivesUp(t *testing.T) {
	c, slept := newTestClient(t, 3)

	calls := 0
	err := c.withRetries(context.Background(), "save baseline", func(ctx context.Context) error {
		calls++
		return status.Error(codes.DeadlineExceeded, "slow")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
	assert.Contains(t, err.Error(), "save baseline failed after 3 attempts")
	assert.Equal(t, codes.DeadlineExceeded, status.Code(errors.Unwrap(err)))
}

func TestWithRetries_StopsOnPermanentError(t *testing.T) {
	c, slept := newTestClient(t, 5)

	calls := 0
	err := c.withRetries(context.Background(), "alter schema", func(ctx context.Context) error {
		calls++
		return status.Error(codes.InvalidArgument, "bad schema")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestWithRetries_ZeroRetriesStillRunsOnce(t *testing.T) {
	c, _ := newTestClient(t, 0)

	calls := 0
	require.NoError(t, c.withRetries(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestWithRetries_ContextCancelledDuringBackoff(t *testing.T) {
	c, _ := newTestClient(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := c.withRetries(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return status.Error(codes.Unavailable, "down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func testEntry() baseline.Entry {
	clk := clock.NewMockMs(1700000000000)
	c := diagnostics.NewCounters(clk)
	c.Record(diagnostics.Event{Kind: diagnostics.TileFetchStarted})
	c.Record(diagnostics.Event{Kind: diagnostics.TileFetchStarted})
	c.Record(diagnostics.Event{Kind: diagnostics.SwitchDurationRecorded, DurationMs: 42})
	entry, _ := baseline.Capture(baseline.CaptureOptions{Diagnostics: c, Label: "nightly", Clock: clk})
	return entry
}

func TestNewBaselineNode(t *testing.T) {
	node, err := newBaselineNode(testEntry())
	require.NoError(t, err)

	assert.Equal(t, "_:baseline", node.UID)
	assert.Equal(t, []string{"Baseline"}, node.DType)
	assert.Equal(t, "nightly", node.Label)
	assert.Equal(t, int64(1700000000000), node.CapturedAt)
	assert.Equal(t, uint64(2), node.TileFetchStarted)
	assert.Equal(t, 1, node.SwitchSampleCount)

	var diag diagnostics.Counters
	require.NoError(t, json.Unmarshal([]byte(node.Diagnostics), &diag))
	assert.Equal(t, uint64(2), diag.TileFetchStarted)
	assert.Equal(t, []float64{42}, diag.SwitchDurationMs.Samples.Values())

	payload, err := json.Marshal(node)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"dgraph.type":["Baseline"]`)
	assert.Contains(t, string(payload), `"baseline_label":"nightly"`)
}

func TestNewReportNode(t *testing.T) {
	entry := testEntry()
	current := entry.Diagnostics.Clone()
	current.Record(diagnostics.Event{Kind: diagnostics.TileFetchStarted})
	report := regression.Evaluate(entry, &current, 1700000005000, regression.DefaultTolerances())

	node, err := newReportNode(report)
	require.NoError(t, err)

	assert.Equal(t, "_:report", node.UID)
	assert.Equal(t, []string{"RegressionReport"}, node.DType)
	assert.Equal(t, "nightly", node.Label)
	assert.Equal(t, int64(1700000005000), node.EvaluatedAt)
	assert.Equal(t, "fail", node.Status)
	assert.Contains(t, node.Report, `"tileFetchVolume"`)
}
