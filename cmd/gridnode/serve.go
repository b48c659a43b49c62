package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/loykin/gridnode"
)

// runServeCommand starts a node and blocks until SIGINT or SIGTERM.
func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := gridnode.LoadConfig(configPath)
	if err != nil {
		return err
	}

	handler, closer := gridnode.SetupLogging(cfg)
	defer func() { _ = closer.Close() }()
	slog.SetDefault(slog.New(handler))

	if err := gridnode.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := gridnode.ServerOptionsFromConfig(flags.NodeType, cfg, handler)
	if flags.Listen != "" {
		opts.Listen = flags.Listen
	}
	if flags.NoDashboard {
		opts.DisableDashboard = true
	}

	n := gridnode.NewServer(opts)

	sinks, err := gridnode.SinksFromConfig(cfg)
	if err != nil {
		return err
	}
	n.SetHistorySinks(sinks...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return n.Run(ctx, func(ctx context.Context) error {
		n.Logger().Info("node running",
			"type", n.NodeType(),
			"address", n.ListenAddress(),
			"service-ports", n.ServicePorts())
		<-ctx.Done()
		n.Logger().Info("shutdown signal received")
		return nil
	})
}
