package liveness

import "encoding/json"

// DefaultThresholdMs is how long a transaction may stay unconfirmed before
// the client counts as desynced.
const DefaultThresholdMs int64 = 10_000

type Origin string

const (
	OriginGeneric              Origin = "generic"
	OriginTransactionSubmitted Origin = "transaction-submitted"
	OriginTransactionConfirmed Origin = "transaction-confirmed"
)

func (o Origin) Valid() bool {
	switch o {
	case OriginGeneric, OriginTransactionSubmitted, OriginTransactionConfirmed:
		return true
	}
	return false
}

type Heartbeat struct {
	TimestampMs int64  `json:"timestamp"`
	Origin      Origin `json:"origin"`
}

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonForced      Reason = "forced"
	ReasonPendingTx   Reason = "pending-tx"
	ReasonNoHeartbeat Reason = "no-heartbeat"
)

// MarshalJSON encodes ReasonNone as null.
func (r Reason) MarshalJSON() ([]byte, error) {
	if r == ReasonNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// NetworkStatus is the derived liveness verdict. ElapsedMs is nil when there
// is nothing to measure from.
type NetworkStatus struct {
	IsDesynced bool   `json:"isDesynced"`
	Reason     Reason `json:"reason"`
	ElapsedMs  *int64 `json:"elapsedMs"`
}

// SameVerdict reports whether s and other agree on desync state and reason,
// ignoring elapsed time.
func (s NetworkStatus) SameVerdict(other NetworkStatus) bool {
	return s.IsDesynced == other.IsDesynced && s.Reason == other.Reason
}

func (s NetworkStatus) clone() NetworkStatus {
	s.ElapsedMs = copyMs(s.ElapsedMs)
	return s
}

// Inputs are every value the verdict is derived from. Nil pointers mean the
// value was never observed.
type Inputs struct {
	LastHeartbeat       *Heartbeat
	ThresholdMs         int64
	ForcedDesyncUntilMs *int64
	NowMs               int64
	LastTxSubmittedAtMs *int64
	LastTxConfirmedAtMs *int64
}

// ComputeStatus applies the rules in priority order: forced override, pending
// transaction timeout, no heartbeat, then the default in-sync verdict.
func ComputeStatus(in Inputs) NetworkStatus {
	pending := in.LastTxSubmittedAtMs != nil &&
		(in.LastTxConfirmedAtMs == nil || *in.LastTxConfirmedAtMs < *in.LastTxSubmittedAtMs)

	var sinceTx, sinceHeartbeat *int64
	if pending {
		sinceTx = elapsed(in.NowMs, *in.LastTxSubmittedAtMs)
	}
	if in.LastHeartbeat != nil {
		sinceHeartbeat = elapsed(in.NowMs, in.LastHeartbeat.TimestampMs)
	}

	if in.ForcedDesyncUntilMs != nil && in.NowMs < *in.ForcedDesyncUntilMs {
		el := sinceHeartbeat
		if pending {
			el = sinceTx
		}
		return NetworkStatus{IsDesynced: true, Reason: ReasonForced, ElapsedMs: el}
	}

	if pending && in.NowMs-*in.LastTxSubmittedAtMs > in.ThresholdMs {
		return NetworkStatus{IsDesynced: true, Reason: ReasonPendingTx, ElapsedMs: sinceTx}
	}

	if in.LastHeartbeat == nil {
		return NetworkStatus{Reason: ReasonNoHeartbeat}
	}

	if pending {
		return NetworkStatus{ElapsedMs: sinceTx}
	}
	return NetworkStatus{ElapsedMs: sinceHeartbeat}
}

func elapsed(now, since int64) *int64 {
	d := now - since
	if d < 0 {
		d = 0
	}
	return &d
}

func copyMs(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
