package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/identity"
	"client-telemetry/pkg/regression"

	"github.com/nbd-wtf/go-nostr"
)

type Relay interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Publish(ctx context.Context, event nostr.Event) error
}

// ReportEventKind is a parameterised replaceable kind, so the relay keeps
// only the latest report per label.
const ReportEventKind = 30078

const dTagPrefix = "regression:"

// Published is a report as read back from the relay.
type Published struct {
	Label         string
	Status        regression.Status
	CapturedAtMs  int64
	EvaluatedAtMs int64
	Report        regression.Report
}

type Publisher struct {
	relay   Relay
	keyPair identity.KeyPair
}

func NewPublisher(relay Relay, keyPair identity.KeyPair) *Publisher {
	return &Publisher{relay: relay, keyPair: keyPair}
}

// DTag is the d tag identifying the report for label.
func DTag(label string) string {
	return dTagPrefix + baseline.SanitizeLabel(label, baseline.DefaultLabel)
}

func (p *Publisher) Publish(ctx context.Context, r regression.Report) error {
	content, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	event := nostr.Event{
		CreatedAt: nostr.Timestamp(r.EvaluatedAtMs / 1000),
		Kind:      ReportEventKind,
		Tags: nostr.Tags{
			{"d", DTag(r.Label)},
			{"status", string(r.Status())},
			{"captured_at", strconv.FormatInt(r.CapturedAtMs, 10)},
			{"evaluated_at", strconv.FormatInt(r.EvaluatedAtMs, 10)},
		},
		Content: string(content),
	}

	if err := p.keyPair.Sign(&event); err != nil {
		return fmt.Errorf("failed to sign report event: %w", err)
	}

	if err := p.relay.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish report event: %w", err)
	}
	return nil
}

// Last returns the most recent report for label, or nil when the relay
// holds none.
func (p *Publisher) Last(ctx context.Context, label string) (*Published, error) {
	filter := nostr.Filter{
		Kinds:   []int{ReportEventKind},
		Authors: []string{p.keyPair.PublicKeyHex},
		Tags:    nostr.TagMap{"d": []string{DTag(label)}},
		Limit:   1,
	}

	events, err := p.relay.QuerySync(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query report events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	latest := events[0]
	for _, ev := range events[1:] {
		if ev.CreatedAt > latest.CreatedAt {
			latest = ev
		}
	}
	return parseReport(latest)
}

func parseReport(event *nostr.Event) (*Published, error) {
	var statusStr, capturedStr, evaluatedStr string

	for _, tag := range event.Tags {
		if len(tag) >= 2 {
			switch tag[0] {
			case "status":
				statusStr = tag[1]
			case "captured_at":
				capturedStr = tag[1]
			case "evaluated_at":
				evaluatedStr = tag[1]
			}
		}
	}

	if statusStr == "" || capturedStr == "" || evaluatedStr == "" {
		return nil, fmt.Errorf("missing status/captured_at/evaluated_at tags in report event")
	}

	capturedAt, err := strconv.ParseInt(capturedStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid captured_at timestamp: %w", err)
	}
	evaluatedAt, err := strconv.ParseInt(evaluatedStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluated_at timestamp: %w", err)
	}

	var r regression.Report
	if err := json.Unmarshal([]byte(event.Content), &r); err != nil {
		return nil, fmt.Errorf("invalid report content: %w", err)
	}

	return &Published{
		Label:         r.Label,
		Status:        regression.Status(statusStr),
		CapturedAtMs:  capturedAt,
		EvaluatedAtMs: evaluatedAt,
		Report:        r,
	}, nil
}
