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
	"sync"

	"github.com/crew-foundation/crew/lib/codec"
	"github.com/crew-foundation/crew/protocol"
)

// Inbound is one decoded message received from the bus.
type Inbound struct {
	// Sender is the hub-assigned instance ID of the publisher. Zero
	// for hub-originated envelopes.
	Sender uint64

	Message protocol.Message
}

// Client is one peer's bus connection. Messages published by other
// subscribers arrive decoded on the Inbox channel; undecodable
// envelopes are logged and skipped, never fatal.
type Client struct {
	connection net.Conn
	logger     *slog.Logger
	instanceID uint64

	inbox chan Inbound

	writeMutex sync.Mutex
	closeOnce  sync.Once
	closing    chan struct{}
	done       chan struct{}
}

// inboxDepth bounds the decoded-message queue feeding the event loop.
const inboxDepth = 64

// Dial connects to the hub at socketPath and completes the welcome
// handshake. The returned client's receive loop runs until Close or
// connection loss.
func Dial(ctx context.Context, socketPath string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var dialer net.Dialer
	connection, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("bus: dialing hub at %s: %w", socketPath, err)
	}

	welcome, err := ReadEnvelope(connection)
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("bus: reading welcome: %w", err)
	}
	if welcome.Name != welcomeName {
		connection.Close()
		return nil, fmt.Errorf("bus: expected welcome, got %q", welcome.Name)
	}
	var payload welcomePayload
	if err := codec.Unmarshal(welcome.Payload, &payload); err != nil {
		connection.Close()
		return nil, fmt.Errorf("bus: decoding welcome: %w", err)
	}

	client := &Client{
		connection: connection,
		logger:     logger.With("instance_id", payload.InstanceID),
		instanceID: payload.InstanceID,
		inbox:      make(chan Inbound, inboxDepth),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	go client.receiveLoop()
	return client, nil
}

// InstanceID returns the hub-assigned identifier for this connection.
func (c *Client) InstanceID() uint64 { return c.instanceID }

// Inbox returns the channel of decoded inbound messages. The channel
// closes when the connection ends.
func (c *Client) Inbox() <-chan Inbound { return c.inbox }

// Done closes when the receive loop has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Publish broadcasts a message to every other subscriber.
func (c *Client) Publish(message protocol.Message) error {
	return c.send(0, message)
}

// Send delivers a message to a single subscriber, used for replies to
// a specific requester.
func (c *Client) Send(to uint64, message protocol.Message) error {
	if to == 0 {
		return fmt.Errorf("bus: Send needs a destination instance")
	}
	return c.send(to, message)
}

func (c *Client) send(to uint64, message protocol.Message) error {
	name, payload, err := protocol.Encode(message)
	if err != nil {
		return fmt.Errorf("bus: encoding %T: %w", message, err)
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return WriteEnvelope(c.connection, Envelope{Name: name, To: to, Payload: payload})
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.connection.Close()
		<-c.done
	})
	return err
}

func (c *Client) receiveLoop() {
	defer close(c.done)
	defer close(c.inbox)
	for {
		envelope, err := ReadEnvelope(c.connection)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("bus read failed", "error", err)
			}
			return
		}
		message, err := protocol.Decode(envelope.Name, envelope.Payload)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownMessage) {
				c.logger.Debug("ignoring unknown message", "name", envelope.Name)
			} else {
				c.logger.Warn("undecodable message", "name", envelope.Name, "error", err)
			}
			continue
		}
		select {
		case c.inbox <- Inbound{Sender: envelope.Sender, Message: message}:
		case <-c.closing:
			return
		}
	}
}
