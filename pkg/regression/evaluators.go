package regression

import (
	"fmt"
	"math"

	"client-telemetry/pkg/diagnostics"
)

const p95 = 0.95

// P95Result compares chunk switch latency. The metrics are nil when the
// matching sample set is empty, and RegressionFraction is nil while pending.
type P95Result struct {
	Verdict
	BaselineP95Ms             *float64  `json:"baselineP95Ms"`
	CurrentP95Ms              *float64  `json:"currentP95Ms"`
	AllowedRegressionFraction float64   `json:"allowedRegressionFraction"`
	RegressionFraction        *Fraction `json:"regressionFraction"`
}

// EvaluateChunkSwitchP95Regression compares the nearest-rank P95 of the switch
// duration samples. Neither input is modified.
func EvaluateChunkSwitchP95Regression(baseline, current *diagnostics.Counters, opts ...Option) P95Result {
	o := applyOptions(DefaultAllowedP95Fraction, opts)
	res := P95Result{AllowedRegressionFraction: o.allowed}

	basePtr := switchP95(baseline)
	curPtr := switchP95(current)
	res.BaselineP95Ms = basePtr
	res.CurrentP95Ms = curPtr

	if basePtr == nil || curPtr == nil {
		res.Verdict = Verdict{Status: StatusPending, Reason: pendingReason(basePtr, curPtr)}
		return res
	}
	base, cur := *basePtr, *curPtr

	if base <= 0 {
		if cur <= 0 {
			zero := Fraction(0)
			res.RegressionFraction = &zero
			res.Verdict = Verdict{Status: StatusPass}
			return res
		}
		inf := Fraction(math.Inf(1))
		res.RegressionFraction = &inf
		res.Verdict = Verdict{
			Status: StatusFail,
			Reason: fmt.Sprintf("chunk switch p95 rose to %.1fms from a zero baseline", cur),
		}
		return res
	}

	fraction := Fraction((cur - base) / base)
	res.RegressionFraction = &fraction
	if float64(fraction) <= o.allowed {
		res.Verdict = Verdict{Status: StatusPass}
		return res
	}
	res.Verdict = Verdict{
		Status: StatusFail,
		Reason: fmt.Sprintf("chunk switch p95 regressed by %s (%.1fms -> %.1fms), allowed %s",
			percent(float64(fraction)), base, cur, percent(o.allowed)),
	}
	return res
}

func switchP95(c *diagnostics.Counters) *float64 {
	if c == nil {
		return nil
	}
	v, ok := Percentile(c.SwitchDurationMs.Samples.Values(), p95)
	if !ok {
		return nil
	}
	return &v
}

func pendingReason(base, cur *float64) string {
	switch {
	case base == nil && cur == nil:
		return "no switch duration samples in baseline or current"
	case base == nil:
		return "no switch duration samples in baseline"
	default:
		return "no switch duration samples in current"
	}
}

// FetchVolumeResult compares tile fetch counts. It is never pending.
type FetchVolumeResult struct {
	Verdict
	BaselineCount           uint64   `json:"baselineCount"`
	CurrentCount            uint64   `json:"currentCount"`
	AllowedIncreaseFraction float64  `json:"allowedIncreaseFraction"`
	IncreaseFraction        Fraction `json:"increaseFraction"`
}

// EvaluateTileFetchVolumeRegression compares the tile_fetch_started counters.
// A nil counters value counts as zero fetches.
func EvaluateTileFetchVolumeRegression(baseline, current *diagnostics.Counters, opts ...Option) FetchVolumeResult {
	o := applyOptions(DefaultAllowedFetchIncreaseFraction, opts)
	res := FetchVolumeResult{
		BaselineCount:           fetchCount(baseline),
		CurrentCount:            fetchCount(current),
		AllowedIncreaseFraction: o.allowed,
	}

	if res.BaselineCount == 0 {
		if res.CurrentCount == 0 {
			res.Verdict = Verdict{Status: StatusPass}
			return res
		}
		res.IncreaseFraction = Fraction(math.Inf(1))
		res.Verdict = Verdict{
			Status: StatusFail,
			Reason: fmt.Sprintf("tile fetches rose to %d from a zero baseline", res.CurrentCount),
		}
		return res
	}

	base := float64(res.BaselineCount)
	res.IncreaseFraction = Fraction((float64(res.CurrentCount) - base) / base)
	if float64(res.IncreaseFraction) <= o.allowed {
		res.Verdict = Verdict{Status: StatusPass}
		return res
	}
	res.Verdict = Verdict{
		Status: StatusFail,
		Reason: fmt.Sprintf("tile fetch volume increased by %s (%d -> %d), allowed %s",
			percent(float64(res.IncreaseFraction)), res.BaselineCount, res.CurrentCount, percent(o.allowed)),
	}
	return res
}

func fetchCount(c *diagnostics.Counters) uint64 {
	if c == nil {
		return 0
	}
	return c.TileFetchStarted
}
