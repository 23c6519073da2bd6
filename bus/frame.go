// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/crew-foundation/crew/lib/codec"
)

// Envelope is one bus frame: a named payload with delivery metadata.
// On the wire it is a 4-byte big-endian length followed by the
// envelope's CBOR encoding.
type Envelope struct {
	// Name is the message name, matching the protocol package's
	// message-name constants (plus the bus-internal "welcome").
	Name string `cbor:"name"`

	// Sender is the hub-assigned instance ID of the publishing
	// connection. The hub stamps this; anything a client sets is
	// overwritten.
	Sender uint64 `cbor:"sender,omitempty"`

	// To restricts delivery to one instance ID. Zero means broadcast
	// to every other subscriber.
	To uint64 `cbor:"to,omitempty"`

	// Payload is the raw CBOR message body, decoded by the receiver
	// through protocol.Decode.
	Payload []byte `cbor:"payload,omitempty"`
}

// frameHeaderLength is the fixed frame prefix: 4 bytes payload length.
const frameHeaderLength = 4

// maxFrameLength bounds a single envelope. State snapshots are small;
// 1 MB leaves room for very large layouts.
const maxFrameLength = 1 << 20

// welcomeName is the hub's first envelope on every connection,
// carrying the assigned instance ID.
const welcomeName = "welcome"

// welcomePayload is the body of the hub's welcome envelope.
type welcomePayload struct {
	InstanceID uint64 `cbor:"instance_id"`
}

// WriteEnvelope writes one framed envelope to w.
func WriteEnvelope(w io.Writer, envelope Envelope) error {
	body, err := codec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("bus: encoding envelope %q: %w", envelope.Name, err)
	}
	if len(body) > maxFrameLength {
		return fmt.Errorf("bus: envelope %q is %d bytes, limit %d", envelope.Name, len(body), maxFrameLength)
	}
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("bus: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("bus: write frame body: %w", err)
	}
	return nil
}

// ReadEnvelope reads one framed envelope from r.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Envelope{}, io.EOF
		}
		return Envelope{}, fmt.Errorf("bus: read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLength {
		return Envelope{}, fmt.Errorf("bus: frame length %d exceeds limit %d", length, maxFrameLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, fmt.Errorf("bus: read frame body: %w", err)
	}
	var envelope Envelope
	if err := codec.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("bus: decoding envelope: %w", err)
	}
	return envelope, nil
}
