package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/diagnostics"
	"client-telemetry/pkg/liveness"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/regression"
	"client-telemetry/pkg/telemetry"

	"github.com/sirupsen/logrus"
)

const (
	maxLineSize  = 1 << 20
	flushTimeout = 2 * time.Second
)

type IOAdapter interface {
	Input(input []byte) (InputMsg, error)
	Write(OutputMsg) error
}

type Handler interface {
	Handle(seq uint64, input InputMsg) OutputMsg
}

// Sink receives the decoded input. *telemetry.Aggregator satisfies it.
type Sink interface {
	telemetry.TelemetryPublisher
	CaptureBaseline(label string) baseline.Entry
	Evaluate(label string) (regression.Report, error)
}

// Flusher is implemented by sinks that apply published events
// asynchronously. The handler flushes before capture and evaluate so that
// both see every event read before them.
type Flusher interface {
	Flush(ctx context.Context) error
}

type TelemetryHandler struct {
	sink  Sink
	clock clock.Clock
}

func NewTelemetryHandler(sink Sink, clk clock.Clock) *TelemetryHandler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &TelemetryHandler{sink: sink, clock: clk}
}

// Handle maps one input line onto the sink. Events and heartbeats are
// enqueued, so acceptance means well-formed rather than applied.
func (h *TelemetryHandler) Handle(seq uint64, input InputMsg) OutputMsg {
	switch input.Type {
	case MsgTypeEvent:
		if input.Kind == "" {
			return Reject(seq, RejectReasonMissingKind)
		}
		ev := diagnostics.Event{Kind: diagnostics.EventKind(input.Kind)}
		if input.DurationMs != nil {
			ev.DurationMs = *input.DurationMs
		}
		h.sink.Publish(telemetry.NewPipelineEventRecorded(ev, input.TileKey))
		return Accept(seq, input.Kind)

	case MsgTypeHeartbeat:
		origin := liveness.OriginGeneric
		if input.Origin != "" {
			origin = liveness.Origin(input.Origin)
		}
		if !origin.Valid() {
			return Reject(seq, RejectReasonUnknownOrigin)
		}
		ts := clock.NowMs(h.clock)
		if input.Timestamp != nil {
			ts = *input.Timestamp
		}
		h.sink.Publish(telemetry.NewHeartbeatObserved(liveness.Heartbeat{TimestampMs: ts, Origin: origin}, "ingest"))
		return Accept(seq, string(origin))

	case MsgTypeCapture:
		if err := h.flush(); err != nil {
			return h.notFlushed(seq, err)
		}
		entry := h.sink.CaptureBaseline(input.Label)
		return Accept(seq, entry.Label)

	case MsgTypeEvaluate:
		if err := h.flush(); err != nil {
			return h.notFlushed(seq, err)
		}
		report, err := h.sink.Evaluate(input.Label)
		if errors.Is(err, telemetry.ErrBaselineNotFound) {
			return Reject(seq, RejectReasonNoBaseline)
		}
		if err != nil {
			return OutputMsg{Seq: seq, Action: ActionRejected, Msg: err.Error()}
		}
		return Accept(seq, string(report.Status()))

	default:
		return Reject(seq, RejectReasonUnknownType)
	}
}

func (h *TelemetryHandler) flush() error {
	f, ok := h.sink.(Flusher)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush queued events: %w", err)
	}
	return nil
}

// notFlushed rejects a capture or evaluate whose preceding events could not
// be applied, since its result would not reflect the stream.
func (h *TelemetryHandler) notFlushed(seq uint64, err error) OutputMsg {
	h.sink.Publish(telemetry.NewClientError(err, "ingest_flush", telemetry.ErrorSeverityError))
	return Reject(seq, RejectReasonNotFlushed)
}

// Run reads JSONL from r until EOF or ctx ends, answering every non-empty
// line on adapter. Malformed lines are rejected and reported as client errors.
func Run(ctx context.Context, r io.Reader, adapter IOAdapter, h Handler, errs telemetry.TelemetryPublisher, log logrus.FieldLogger) error {
	log = logging.Component(log, "ingest")
	if errs == nil {
		errs = telemetry.NewNoopPublisher()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var seq uint64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		seq++

		var out OutputMsg
		input, err := adapter.Input(line)
		if err != nil {
			log.WithError(err).WithField("seq", seq).Debug("malformed input line")
			errs.Publish(telemetry.NewClientError(err, "ingest", telemetry.ErrorSeverityWarning))
			out = Reject(seq, RejectReasonMalformed)
		} else {
			out = h.Handle(seq, input)
		}

		if err := adapter.Write(out); err != nil {
			return fmt.Errorf("failed to write reply %d: %w", seq, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}
