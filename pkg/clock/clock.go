package clock

import "time"

// Clock interface allows for deterministic testing
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// NowMs returns the clock reading in Unix milliseconds, falling back to the
// wall clock when clk is nil.
func NowMs(clk Clock) int64 {
	if clk == nil {
		clk = RealClock{}
	}
	return clk.Now().UnixMilli()
}
