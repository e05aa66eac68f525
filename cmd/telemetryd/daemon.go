package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"client-telemetry/pkg/archive"
	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/config"
	"client-telemetry/pkg/debugserver"
	"client-telemetry/pkg/ingest"
	"client-telemetry/pkg/regression"
	"client-telemetry/pkg/relay"
	"client-telemetry/pkg/relaywatch"
	"client-telemetry/pkg/report"
	"client-telemetry/pkg/scheduler"
	"client-telemetry/pkg/telemetry"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

const (
	hookTimeout     = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	statusInterval  = 10 * time.Second

	jobRetries = 2
	jobBackoff = time.Second
)

type daemon struct {
	cfg *config.Config
	log *logrus.Logger
	clk clock.Clock

	agg      *telemetry.Aggregator
	jobs     scheduler.Group
	roller   *scheduler.Periodic
	watcher  *relaywatch.Watcher
	reports  *report.Publisher
	archive  *archive.Client
	debug    *debugserver.Server
	cli      *CLI
	hooks    sync.WaitGroup
	watchErr chan error
}

// newDaemon builds every component the configuration enables. connect may be
// nil to dial real relays.
func newDaemon(ctx context.Context, cfg *config.Config, log *logrus.Logger, connect relay.Connector) (*daemon, error) {
	clk := clock.RealClock{}

	aggCfg := telemetry.DefaultConfig()
	aggCfg.BufferSize = cfg.Telemetry.BufferSize
	aggCfg.MaxRecentErrors = cfg.Telemetry.MaxRecentErrors
	aggCfg.BaselineMaxEntries = cfg.Baseline.MaxEntries
	aggCfg.DefaultLabel = cfg.Baseline.DefaultLabel
	aggCfg.LivenessThresholdMs = cfg.Liveness.ThresholdMs
	aggCfg.ForcedDesyncMs = cfg.Liveness.ForcedDesyncMs
	aggCfg.Tolerances = regression.Tolerances{
		AllowedP95Fraction:           cfg.Regression.AllowedP95Fraction,
		AllowedFetchIncreaseFraction: cfg.Regression.AllowedFetchIncreaseFraction,
	}

	d := &daemon{
		cfg:      cfg,
		log:      log,
		clk:      clk,
		agg:      telemetry.NewAggregator(clk, aggCfg, log),
		watchErr: make(chan error, 1),
	}
	d.cli = NewCLI(d.agg, cfg, log)

	d.jobs.Add(scheduler.NewPeriodic("liveness-tick", cfg.Liveness.TickInterval(), func(context.Context) error {
		d.agg.Tick()
		return nil
	}, log, scheduler.WithRunOnStart()))

	if cfg.Baseline.AutoCaptureSeconds > 0 {
		interval := time.Duration(cfg.Baseline.AutoCaptureSeconds) * time.Second
		d.roller = scheduler.NewPeriodic("baseline-capture", interval, d.rollBaseline, log,
			scheduler.WithRetries(jobRetries, jobBackoff))
		d.jobs.Add(d.roller)
	}

	if cfg.Relay.Enabled() {
		d.watcher = relaywatch.New(relaywatch.Config{
			URL:     cfg.Relay.URL,
			KeyPair: cfg.Relay.KeyPair,
		}, connect, d.agg, clk, log)

		if cfg.Relay.ProbeIntervalSeconds > 0 {
			interval := time.Duration(cfg.Relay.ProbeIntervalSeconds) * time.Second
			d.jobs.Add(scheduler.NewPeriodic("relay-probe", interval, d.watcher.Probe, log,
				scheduler.WithRetries(jobRetries, jobBackoff)))
		}
	}

	if cfg.Archive.Enabled() {
		client, err := archive.NewClient(cfg.Archive.DgraphAddr, cfg.Archive.MaxRetries, log)
		if err != nil {
			return nil, err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, hookTimeout)
		defer cancel()
		if err := client.EnsureSchema(schemaCtx); err != nil {
			// writes retry on their own; a down archive must not block telemetry
			log.WithError(err).Warn("archive schema not applied")
		}
		d.archive = client
	}

	if cfg.Debug.Enabled() {
		d.debug = debugserver.New(d.agg, debugserver.Config{
			ListenAddr:     cfg.Debug.ListenAddr,
			StreamInterval: time.Duration(cfg.Debug.StreamIntervalMs) * time.Millisecond,
		}, log)
	}

	d.registerHooks()
	return d, nil
}

// rollBaseline evaluates against the previous automatic baseline, then
// captures a new one.
func (d *daemon) rollBaseline(context.Context) error {
	if _, err := d.agg.Evaluate(""); err != nil && !errors.Is(err, telemetry.ErrBaselineNotFound) {
		return err
	}
	d.agg.CaptureBaseline("")
	return nil
}

func (d *daemon) registerHooks() {
	if d.watcher != nil {
		d.reports = report.NewPublisher(relayHandle{d.watcher}, d.cfg.Relay.KeyPair)
	}

	d.agg.OnReport(func(r regression.Report) {
		if r.Status() == regression.StatusFail {
			d.log.WithFields(logrus.Fields{
				"label":   r.Label,
				"reasons": r.Reasons(),
			}).Warn("regression detected")
		}
		if d.reports != nil {
			d.async("report_publish", func(ctx context.Context) error { return d.reports.Publish(ctx, r) })
		}
		if d.archive != nil {
			d.async("archive_report", func(ctx context.Context) error { return d.archive.SaveReport(ctx, r) })
		}
	})

	d.agg.OnBaselineCaptured(func(e baseline.Entry) {
		if d.archive != nil {
			d.async("archive_baseline", func(ctx context.Context) error { return d.archive.SaveBaseline(ctx, e) })
		}
	})
}

// async runs fn off the aggregator's call path with its own timeout, so a
// slow relay or archive cannot stall capture or evaluation.
func (d *daemon) async(where string, fn func(ctx context.Context) error) {
	d.hooks.Add(1)
	go func() {
		defer d.hooks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.WithError(err).WithField("where", where).Warn("hook failed")
			d.agg.Publish(telemetry.NewClientError(err, where, telemetry.ErrorSeverityWarning))
		}
	}()
}

// Run blocks until ctx ends. When nothing but stdin feeds the daemon, the end
// of input also ends the run.
func (d *daemon) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stop drains the buffer; a cancelled context would discard it
	d.agg.Start(context.Background())
	d.jobs.Start()
	d.log.WithField("jobs", d.jobs.Len()).Debug("scheduler started")

	if d.watcher != nil {
		go func() { d.watchErr <- d.watcher.Run(ctx) }()
	}
	if d.debug != nil {
		if _, err := d.debug.Start(); err != nil {
			d.shutdown()
			return fmt.Errorf("failed to start debug server: %w", err)
		}
	}

	ingestDone := make(chan error, 1)
	if stdin != nil {
		go func() {
			ingestDone <- ingest.Run(ctx, stdin, ingest.NewJSONLIOAdapter(stdout),
				ingest.NewTelemetryHandler(d.agg, d.clk), d.agg, d.log)
		}()
	}

	cliDone := make(chan error, 1)
	go func() { cliDone <- d.cli.Run(ctx, statusInterval) }()

	var runErr error
	for runErr == nil {
		select {
		case <-ctx.Done():
			d.log.Info("shutting down")
			d.shutdown()
			return nil
		case err := <-ingestDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				d.log.WithError(err).Error("input failed")
			}
			if d.watcher == nil && d.debug == nil {
				d.log.Info("input closed, shutting down")
				cancel()
				<-cliDone
				d.shutdown()
				return err
			}
			d.log.Info("input closed, still serving")
			ingestDone = nil
		case err := <-d.watchErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				runErr = fmt.Errorf("relay watcher stopped: %w", err)
			}
		}
	}

	cancel()
	d.shutdown()
	return runErr
}

func (d *daemon) shutdown() {
	d.finalRoll()
	d.jobs.Stop()
	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.debug != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.debug.Shutdown(ctx); err != nil {
			d.log.WithError(err).Warn("debug server shutdown")
		}
		cancel()
	}
	d.agg.Stop()
	d.hooks.Wait()
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			d.log.WithError(err).Warn("archive close")
		}
	}
	d.cli.printSummary()
}

// finalRoll gives the window since the last automatic capture its report.
func (d *daemon) finalRoll() {
	if d.roller == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.agg.Flush(ctx); err != nil {
		d.log.WithError(err).Warn("final baseline roll skipped")
		return
	}
	d.roller.RunNow()
}

// relayHandle resolves the watcher's current connection on every call, so
// report publishing follows reconnects.
type relayHandle struct {
	w *relaywatch.Watcher
}

func (h relayHandle) current() (relay.Relay, error) {
	r := h.w.Relay()
	if r == nil {
		return nil, relaywatch.ErrNotConnected
	}
	return r, nil
}

func (h relayHandle) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	r, err := h.current()
	if err != nil {
		return nil, err
	}
	return r.QuerySync(ctx, filter)
}

func (h relayHandle) Publish(ctx context.Context, event nostr.Event) error {
	r, err := h.current()
	if err != nil {
		return err
	}
	return r.Publish(ctx, event)
}
