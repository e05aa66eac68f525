package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"client-telemetry/pkg/config"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s %s\n", config.AppName, version.Info())
		return
	}

	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", config.AppName, err)
		os.Exit(1)
	}
}

// run wires the daemon. Ingest replies go to stdout; logs and status lines
// go to stderr.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(args, stdout)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil // help printed
	}

	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	logger.WithField("build", version.Info().String()).Infof("starting %s", config.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	return d.Run(ctx, stdin, stdout)
}
