package regression

import (
	"encoding/json"
	"fmt"
	"math"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
)

// Verdict is the outcome shared by every evaluator. A pending verdict means
// there is not enough data yet and must never be read as a pass.
type Verdict struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (v Verdict) Passed() bool  { return v.Status == StatusPass }
func (v Verdict) Pending() bool { return v.Status == StatusPending }
func (v Verdict) Failed() bool  { return v.Status == StatusFail }

// Fraction is a relative change. It is +Inf when a zero baseline is exceeded,
// which JSON carries as the string "Infinity".
type Fraction float64

func (f Fraction) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(v)
}

func (f *Fraction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*f = Fraction(math.Inf(1))
		case "-Infinity":
			*f = Fraction(math.Inf(-1))
		case "NaN":
			*f = Fraction(math.NaN())
		default:
			return fmt.Errorf("invalid fraction %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid fraction: %w", err)
	}
	*f = Fraction(v)
	return nil
}

func (f Fraction) IsInf() bool { return math.IsInf(float64(f), 1) }

const (
	DefaultAllowedP95Fraction           = 0.10
	DefaultAllowedFetchIncreaseFraction = 0.0
)

type options struct {
	allowed float64
}

// Option tunes an evaluator.
type Option func(*options)

// WithAllowedFraction sets the tolerated relative increase. NaN and negative
// values clamp to zero.
func WithAllowedFraction(f float64) Option {
	return func(o *options) {
		o.allowed = clampAllowed(f)
	}
}

func clampAllowed(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return f
}

func applyOptions(defaultAllowed float64, opts []Option) options {
	o := options{allowed: defaultAllowed}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
