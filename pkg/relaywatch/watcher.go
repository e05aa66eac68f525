package relaywatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/identity"
	"client-telemetry/pkg/liveness"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/relay"
	"client-telemetry/pkg/telemetry"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

// ProbeKind is an ephemeral kind; relays acknowledge it without storing it.
const ProbeKind = 20078

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	heartbeatSource    = "relay"
)

var ErrNotConnected = errors.New("relay not connected")

type Config struct {
	URL         string
	KeyPair     identity.KeyPair
	MaxAttempts int
	RetryDelay  time.Duration // multiplied by the attempt number
}

// Watcher keeps one relay connection open and turns relay traffic into
// liveness heartbeats.
type Watcher struct {
	cfg       Config
	connect   relay.Connector
	publisher telemetry.TelemetryPublisher
	clock     clock.Clock
	log       logrus.FieldLogger

	mu    sync.Mutex
	relay relay.Relay
}

func New(cfg Config, connect relay.Connector, publisher telemetry.TelemetryPublisher, clk clock.Clock, log logrus.FieldLogger) *Watcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if connect == nil {
		connect = relay.Connect
	}
	if publisher == nil {
		publisher = telemetry.NewNoopPublisher()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Watcher{
		cfg:       cfg,
		connect:   connect,
		publisher: publisher,
		clock:     clk,
		log:       logging.Component(log, "relaywatch").WithField("relay", cfg.URL),
	}
}

// Relay returns the current connection, or nil.
func (w *Watcher) Relay() relay.Relay {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.relay
}

// Connect dials the relay, retrying with a linear backoff.
func (w *Watcher) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		r, err := w.connect(ctx, w.cfg.URL)
		if err == nil {
			w.mu.Lock()
			w.relay = r
			w.mu.Unlock()
			w.emitConn(true)
			w.log.Info("connected")
			return nil
		}
		lastErr = err
		w.emitErr(fmt.Errorf("attempt %d/%d: %w", attempt, w.cfg.MaxAttempts, err), "relay_connect", telemetry.ErrorSeverityError)
		w.emitConn(false)

		if attempt == w.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.RetryDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("failed to connect to %s after %d attempts: %w", w.cfg.URL, w.cfg.MaxAttempts, lastErr)
}

// Close drops the current connection.
func (w *Watcher) Close() {
	w.mu.Lock()
	r := w.relay
	w.relay = nil
	w.mu.Unlock()

	if r != nil {
		_ = r.Close()
		w.emitConn(false)
	}
}

// Run subscribes to live relay traffic until ctx ends. Every event and EOSE
// counts as a generic heartbeat. A closed subscription triggers a reconnect;
// Run returns an error only when reconnecting fails.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if w.Relay() == nil {
			if err := w.Connect(ctx); err != nil {
				return err
			}
		}

		err := w.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.WithError(err).Warn("subscription ended, reconnecting")
		w.emitErr(err, "relay_subscription", telemetry.ErrorSeverityWarning)
		w.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.RetryDelay):
		}
	}
}

func (w *Watcher) stream(ctx context.Context) error {
	r := w.Relay()
	if r == nil {
		return ErrNotConnected
	}

	since := nostr.Timestamp(w.clock.Now().Unix())
	sub, err := r.Subscribe(ctx, nostr.Filters{{Since: &since}})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer safeCloseSubscription(sub)

	w.log.Debug("live subscription established")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-sub.ClosedReason:
			return fmt.Errorf("subscription closed by relay: %s", reason)
		case <-sub.EndOfStoredEvents:
			w.heartbeat(liveness.OriginGeneric)
		case event, ok := <-sub.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if event == nil {
				continue
			}
			w.heartbeat(liveness.OriginGeneric)
		}
	}
}

// Probe publishes a signed ephemeral event. A transaction-submitted heartbeat
// goes out first and a transaction-confirmed heartbeat only once the relay
// accepts the event, so a probe that never lands leaves a pending transaction.
func (w *Watcher) Probe(ctx context.Context) error {
	w.heartbeat(liveness.OriginTransactionSubmitted)

	r := w.Relay()
	if r == nil {
		w.emitErr(ErrNotConnected, "relay_probe", telemetry.ErrorSeverityWarning)
		return ErrNotConnected
	}

	ev := nostr.Event{
		CreatedAt: nostr.Timestamp(w.clock.Now().Unix()),
		Kind:      ProbeKind,
		Tags:      nostr.Tags{{"t", "telemetry-probe"}},
		Content:   "",
	}
	if err := w.cfg.KeyPair.Sign(&ev); err != nil {
		w.emitErr(err, "relay_probe", telemetry.ErrorSeverityError)
		return fmt.Errorf("failed to sign probe: %w", err)
	}

	if err := r.Publish(ctx, ev); err != nil {
		w.emitErr(err, "relay_probe", telemetry.ErrorSeverityWarning)
		return fmt.Errorf("failed to publish probe: %w", err)
	}

	w.heartbeat(liveness.OriginTransactionConfirmed)
	return nil
}

func (w *Watcher) heartbeat(origin liveness.Origin) {
	w.publisher.Publish(telemetry.NewHeartbeatObserved(liveness.Heartbeat{
		TimestampMs: clock.NowMs(w.clock),
		Origin:      origin,
	}, heartbeatSource))
}

func (w *Watcher) emitConn(connected bool) {
	w.publisher.Publish(telemetry.NewConnectionStatusChanged(w.cfg.URL, connected))
}

func (w *Watcher) emitErr(err error, where string, severity telemetry.ErrorSeverity) {
	w.publisher.Publish(telemetry.NewClientError(err, where, severity))
}

func safeCloseSubscription(sub *nostr.Subscription) {
	defer func() { _ = recover() }()
	sub.Close()
}
