// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crew-foundation/crew/bus"
	"github.com/crew-foundation/crew/protocol"
)

// Session is a short-lived bus connection for one CLI invocation.
type Session struct {
	client *bus.Client
}

// Connect dials the hub socket.
func Connect(ctx context.Context, socketPath string, logger *slog.Logger) (*Session, error) {
	client, err := bus.Dial(ctx, socketPath, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to crew hub: %w", err)
	}
	return &Session{client: client}, nil
}

// Close tears down the connection.
func (s *Session) Close() { s.client.Close() }

// Publish broadcasts a message without waiting for a response.
func (s *Session) Publish(message protocol.Message) error {
	return s.client.Publish(message)
}

// Request broadcasts a message and waits for the Authority's reply.
// Cancellation of ctx bounds the wait.
func (s *Session) Request(ctx context.Context, message protocol.Message) (string, error) {
	if err := s.client.Publish(message); err != nil {
		return "", err
	}
	for {
		select {
		case inbound, ok := <-s.client.Inbox():
			if !ok {
				return "", fmt.Errorf("hub connection closed before a reply arrived")
			}
			if reply, isReply := inbound.Message.(protocol.Reply); isReply {
				return reply.Text, nil
			}
			// Broadcast traffic for the peers; not for us.
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for reply: %w", ctx.Err())
		}
	}
}
