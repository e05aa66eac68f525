package regression

import (
	"encoding/json"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/diagnostics"
)

// Tolerances holds the allowed fractions for each evaluator.
type Tolerances struct {
	AllowedP95Fraction           float64
	AllowedFetchIncreaseFraction float64
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		AllowedP95Fraction:           DefaultAllowedP95Fraction,
		AllowedFetchIncreaseFraction: DefaultAllowedFetchIncreaseFraction,
	}
}

// Report bundles both evaluations of one baseline against the live counters.
type Report struct {
	Label           string            `json:"label"`
	CapturedAtMs    int64             `json:"capturedAtMs"`
	EvaluatedAtMs   int64             `json:"evaluatedAtMs"`
	ChunkSwitchP95  P95Result         `json:"chunkSwitchP95"`
	TileFetchVolume FetchVolumeResult `json:"tileFetchVolume"`
}

func Evaluate(entry baseline.Entry, current *diagnostics.Counters, evaluatedAtMs int64, cfg Tolerances) Report {
	return Report{
		Label:         entry.Label,
		CapturedAtMs:  entry.CapturedAtMs,
		EvaluatedAtMs: evaluatedAtMs,
		ChunkSwitchP95: EvaluateChunkSwitchP95Regression(&entry.Diagnostics, current,
			WithAllowedFraction(cfg.AllowedP95Fraction)),
		TileFetchVolume: EvaluateTileFetchVolumeRegression(&entry.Diagnostics, current,
			WithAllowedFraction(cfg.AllowedFetchIncreaseFraction)),
	}
}

// Status is fail if any evaluation failed, pending if any is pending and pass
// otherwise.
func (r Report) Status() Status {
	verdicts := []Verdict{r.ChunkSwitchP95.Verdict, r.TileFetchVolume.Verdict}
	status := StatusPass
	for _, v := range verdicts {
		switch v.Status {
		case StatusFail:
			return StatusFail
		case StatusPending:
			status = StatusPending
		}
	}
	return status
}

// Reasons lists the reasons of every failed evaluation.
func (r Report) Reasons() []string {
	var out []string
	for _, v := range []Verdict{r.ChunkSwitchP95.Verdict, r.TileFetchVolume.Verdict} {
		if v.Failed() && v.Reason != "" {
			out = append(out, v.Reason)
		}
	}
	return out
}

func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		Status Status `json:"status"`
	}{plain(r), r.Status()})
}
