// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// crew-peer is one instance of the subsystem: it connects to the hub,
// joins the election, and runs the event loop, applying the peer's
// effects against the bus and the timers. On shutdown it resigns so
// the next Authority inherits its state.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/crew-foundation/crew/bus"
	"github.com/crew-foundation/crew/lib/clock"
	"github.com/crew-foundation/crew/lib/config"
	"github.com/crew-foundation/crew/peer"
	"github.com/crew-foundation/crew/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("crew-peer", pflag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file (default $"+config.EnvVar+")")
	socketPath := flags.String("socket", "", "hub socket path (default from configuration)")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *socketPath == "" {
		*socketPath = cfg.HubSocket
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	events, closeEvents, err := eventLogger(cfg.EventLog)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := bus.Dial(ctx, *socketPath, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	r := &runtime{
		client: client,
		clock:  clock.Real(),
		logger: logger.With("instance_id", client.InstanceID()),
		peer: peer.New(peer.Options{
			InstanceID: client.InstanceID(),
			Config:     cfg,
			Clock:      clock.Real(),
			Logger:     logger,
			Events:     events,
		}),
		timerEvents: make(chan peer.Event, 16),
		timers:      make(map[peer.TimerKind]*clock.Timer),
		quit:        make(chan struct{}),
	}
	return r.run(ctx)
}

// eventLogger opens the append-only JSON-lines event log. An empty
// path disables it.
func eventLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening event log %s: %w", path, err)
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return logger, func() { file.Close() }, nil
}

// runtime applies peer effects against the bus, the timers, and the
// log. The peer itself stays pure; this is the only place effects
// touch the outside world.
type runtime struct {
	client *bus.Client
	clock  clock.Clock
	logger *slog.Logger
	peer   *peer.Peer

	timerEvents chan peer.Event
	timers      map[peer.TimerKind]*clock.Timer

	// quit is closed when the event loop exits, so a timer callback
	// firing during shutdown drops its event instead of blocking.
	quit chan struct{}
}

func (r *runtime) run(ctx context.Context) error {
	defer close(r.quit)
	r.apply(r.peer.Start())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down")
			r.apply(r.peer.HandleEvent(peer.EventShutdown{}))
			return nil

		case inbound, ok := <-r.client.Inbox():
			if !ok {
				return fmt.Errorf("hub connection lost")
			}
			r.apply(r.peer.HandleEvent(peer.EventMessage{
				Sender:  inbound.Sender,
				Message: inbound.Message,
			}))

		case event := <-r.timerEvents:
			r.apply(r.peer.HandleEvent(event))
		}
	}
}

func (r *runtime) apply(effects []peer.Effect) {
	for _, effect := range effects {
		switch effect := effect.(type) {
		case peer.EffectPublish:
			if err := r.client.Publish(effect.Message); err != nil {
				r.logger.Error("publish failed",
					"name", effect.Message.MessageName(), "error", err)
			}

		case peer.EffectRename:
			if err := r.client.Publish(protocol.Rename{TabID: effect.TabID, Name: effect.Name}); err != nil {
				r.logger.Error("rename failed", "tab_id", effect.TabID, "error", err)
			}

		case peer.EffectWritePane:
			if err := r.client.Publish(protocol.WritePane{Pane: effect.Pane, Data: effect.Data}); err != nil {
				r.logger.Error("pane write failed", "pane", effect.Pane, "error", err)
			}

		case peer.EffectReply:
			if err := r.client.Send(effect.To, protocol.Reply{Text: effect.Text}); err != nil {
				r.logger.Error("reply failed", "to", effect.To, "error", err)
			}

		case peer.EffectStartTimer:
			if timer := r.timers[effect.Kind]; timer != nil {
				timer.Stop()
			}
			kind := effect.Kind
			r.timers[kind] = r.clock.AfterFunc(effect.Timeout, func() {
				select {
				case r.timerEvents <- peer.EventTimer{Kind: kind}:
				case <-r.quit:
				}
			})

		case peer.EffectStopTimer:
			if timer := r.timers[effect.Kind]; timer != nil {
				timer.Stop()
				delete(r.timers, effect.Kind)
			}

		case peer.EffectRender:
			// Rendering is the host's concern; surface the visible
			// state for debugging.
			r.logger.Debug("state changed", "role", r.peer.Role(), "tabs", len(r.peer.Visible()))
		}
	}
}
