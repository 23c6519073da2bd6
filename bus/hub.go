// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/crew-foundation/crew/lib/codec"
)

// Hub is the message fan-out: every envelope published by one
// subscriber is delivered to every other subscriber, except envelopes
// addressed to a single instance. The hub assigns each connection a
// monotonically increasing instance ID; later connections always have
// higher IDs, which is what the election tie-break leans on.
type Hub struct {
	// SocketPath is the Unix socket to listen on. An existing socket
	// file at the path is removed first.
	SocketPath string

	// Logger receives structured log output. Nil means slog.Default.
	Logger *slog.Logger

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}

	mutex       sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
}

// subscriberQueueDepth bounds each subscriber's outbound queue. The
// bus is lossy under pressure: a full queue drops the envelope, and
// the full-snapshot broadcast model heals the gap on the next change.
const subscriberQueueDepth = 64

type subscriber struct {
	id       uint64
	outbound chan Envelope
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Start binds the socket and begins accepting connections. It returns
// once listening, and runs until Stop or context cancellation.
func (h *Hub) Start(ctx context.Context) error {
	if h.SocketPath == "" {
		return fmt.Errorf("bus: SocketPath is required")
	}
	if err := os.Remove(h.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bus: removing stale socket %s: %w", h.SocketPath, err)
	}
	listener, err := net.Listen("unix", h.SocketPath)
	if err != nil {
		return fmt.Errorf("bus: listen on %s: %w", h.SocketPath, err)
	}
	h.listener = listener
	h.subscribers = make(map[uint64]*subscriber)

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		h.acceptLoop(ctx)
	}()

	h.logger().Info("hub started", "socket", h.SocketPath)
	return nil
}

// Stop closes the listener and waits for all connection goroutines.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.listener != nil {
		h.listener.Close()
	}
	if h.done != nil {
		<-h.done
	}
}

func (h *Hub) acceptLoop(ctx context.Context) {
	var connections sync.WaitGroup
	for {
		connection, err := h.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				connections.Wait()
				return
			default:
				h.logger().Error("accept failed", "error", err)
				continue
			}
		}
		connections.Add(1)
		go func() {
			defer connections.Done()
			h.handleConnection(ctx, connection)
		}()
	}
}

func (h *Hub) handleConnection(ctx context.Context, connection net.Conn) {
	defer connection.Close()

	// Subscriber connections are long-lived, so the reader below can
	// sit in ReadEnvelope indefinitely. Close the connection on
	// shutdown to unblock it; Stop would otherwise wait forever.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			connection.Close()
		case <-watchDone:
		}
	}()

	sub := h.subscribe()
	defer h.unsubscribe(sub.id)

	logger := h.logger().With("instance_id", sub.id)
	logger.Info("peer connected")
	defer logger.Info("peer disconnected")

	welcome, err := welcomeEnvelope(sub.id)
	if err != nil {
		logger.Error("building welcome", "error", err)
		return
	}
	if err := WriteEnvelope(connection, welcome); err != nil {
		logger.Error("sending welcome", "error", err)
		return
	}

	// Writer: drain the outbound queue onto the connection.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for envelope := range sub.outbound {
			if err := WriteEnvelope(connection, envelope); err != nil {
				logger.Debug("write failed", "error", err)
				return
			}
		}
	}()

	// Reader: stamp and route everything the peer publishes.
	for {
		envelope, err := ReadEnvelope(connection)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("read failed", "error", err)
			}
			break
		}
		envelope.Sender = sub.id
		h.route(envelope, logger)
	}

	h.unsubscribe(sub.id)
	<-writerDone
}

func (h *Hub) subscribe() *subscriber {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.nextID++
	sub := &subscriber{
		id:       h.nextID,
		outbound: make(chan Envelope, subscriberQueueDepth),
	}
	h.subscribers[sub.id] = sub
	return sub
}

func (h *Hub) unsubscribe(id uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.outbound)
	}
}

// route delivers an envelope to its audience: one subscriber when To
// is set, everyone but the sender otherwise.
func (h *Hub) route(envelope Envelope, logger *slog.Logger) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id, sub := range h.subscribers {
		if id == envelope.Sender {
			continue
		}
		if envelope.To != 0 && envelope.To != id {
			continue
		}
		select {
		case sub.outbound <- envelope:
		default:
			logger.Warn("dropping envelope for slow subscriber",
				"name", envelope.Name, "subscriber", id)
		}
	}
}

func welcomeEnvelope(id uint64) (Envelope, error) {
	payload, err := codec.Marshal(welcomePayload{InstanceID: id})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Name: welcomeName, Payload: payload}, nil
}
