// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// crew-hub runs the message hub and a simulated terminal host: it
// assigns instance IDs, fans messages out to the peer group, keeps
// the tab inventory, and applies rename requests from the Authority.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/crew-foundation/crew/bus"
	"github.com/crew-foundation/crew/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("crew-hub", pflag.ContinueOnError)
	socketPath := flags.String("socket", "", "Unix socket to listen on (default from configuration)")
	prefix := flags.String("prefix", "", "placeholder tab label prefix (default from configuration)")
	tabs := flags.Int("tabs", 3, "number of simulated tabs")
	interval := flags.Duration("interval", time.Second, "inventory rebroadcast interval")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if *socketPath == "" {
		*socketPath = cfg.HubSocket
	}
	if *prefix == "" {
		*prefix = cfg.PlaceholderPrefix
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := &bus.Hub{SocketPath: *socketPath, Logger: logger}
	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer hub.Stop()

	client, err := bus.Dial(ctx, *socketPath, logger.With("component", "host"))
	if err != nil {
		return err
	}
	defer client.Close()

	h := newHost(client, *prefix, *tabs, *interval, logger.With("component", "host"))
	if err := h.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
