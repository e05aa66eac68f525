package ingest

import (
	"encoding/json"
	"fmt"
)

// MsgType selects what an input line carries.
type MsgType string

const (
	MsgTypeEvent     MsgType = "event"
	MsgTypeHeartbeat MsgType = "heartbeat"
	MsgTypeCapture   MsgType = "capture"
	MsgTypeEvaluate  MsgType = "evaluate"
)

// Action represents the output action for an input line.
type Action string

const (
	ActionAccepted Action = "accepted"
	ActionRejected Action = "rejected"
)

// RejectReason represents the reason for rejecting an input line.
type RejectReason string

const (
	RejectReasonMalformed     RejectReason = "rejected: malformed json"
	RejectReasonUnknownType   RejectReason = "rejected: unknown message type"
	RejectReasonMissingKind   RejectReason = "rejected: event kind is required"
	RejectReasonUnknownOrigin RejectReason = "rejected: unknown heartbeat origin"
	RejectReasonNoBaseline    RejectReason = "rejected: no matching baseline"
	RejectReasonNotFlushed    RejectReason = "rejected: queued events not applied"
)

// InputMsg is one JSONL input line. Fields not used by Type are ignored.
type InputMsg struct {
	Type       MsgType  `json:"type"`
	Kind       string   `json:"kind,omitempty"`       // event: pipeline event kind
	DurationMs *float64 `json:"durationMs,omitempty"` // event: duration for *_duration_recorded kinds
	TileKey    string   `json:"tileKey,omitempty"`    // event: tile identity for fetch events
	Origin     string   `json:"origin,omitempty"`     // heartbeat: empty means generic
	Timestamp  *int64   `json:"timestamp,omitempty"`  // heartbeat: Unix ms, defaults to now
	Label      string   `json:"label,omitempty"`      // capture / evaluate
}

// OutputMsg is written once per non-empty input line.
type OutputMsg struct {
	Seq    uint64 `json:"seq"`
	Action Action `json:"action"`
	Msg    string `json:"msg"`
}

// SerializeInputMsg serializes an InputMsg to minified JSONL (JSON + newline).
func SerializeInputMsg(msg InputMsg) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize InputMsg: %w", err)
	}
	return append(data, '\n'), nil
}

// DeserializeInputMsg deserializes a JSONL line to an InputMsg.
func DeserializeInputMsg(data []byte) (InputMsg, error) {
	var msg InputMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to deserialize InputMsg: %w", err)
	}
	return msg, nil
}

// SerializeOutputMsg serializes an OutputMsg to minified JSONL (JSON + newline).
func SerializeOutputMsg(msg OutputMsg) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize OutputMsg: %w", err)
	}
	return append(data, '\n'), nil
}

// DeserializeOutputMsg deserializes a JSONL line to an OutputMsg.
func DeserializeOutputMsg(data []byte) (OutputMsg, error) {
	var msg OutputMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to deserialize OutputMsg: %w", err)
	}
	return msg, nil
}

func Accept(seq uint64, msg string) OutputMsg {
	return OutputMsg{Seq: seq, Action: ActionAccepted, Msg: msg}
}

func Reject(seq uint64, reason RejectReason) OutputMsg {
	return OutputMsg{Seq: seq, Action: ActionRejected, Msg: string(reason)}
}
