// Command proxy runs the forwarding HTTP proxy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hallvik/gatekeeper/internal/config"
	"github.com/hallvik/gatekeeper/internal/engine"
	"github.com/hallvik/gatekeeper/internal/events"
	"github.com/hallvik/gatekeeper/internal/filter"
)

const defaultConfigPath = "config/proxy_config.json"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sink, err := events.New(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("opening event sink: %w", err)
	}
	defer sink.Sync()

	f, err := filter.New(cfg.BlockedDomainsFile, sink)
	if err != nil {
		return fmt.Errorf("loading host filter: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go f.Watch(ctx)

	e := engine.New(cfg, sink, f)
	if err := e.Run(ctx); err != nil {
		sink.Error("failed to start server: " + err.Error())
		return err
	}

	sink.Info("proxy server shut down")
	return nil
}
