// Copyright 2026 The MottoMesh Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport defines the uniform framed byte-channel abstraction
// that unifies WebTransport (QUIC datagrams/streams) and WebSocket
// binary frames (§4.7). A Conn exposes read-next-frame, write-frame, and
// close; framing specifics live in the per-transport subpackages.
package transport

import (
	"context"

	"github.com/pkg/errors"
)

// MaxFrameSize is the hard cap on a single frame's byte length, shared by
// both transport implementations (spec §9 open question, resolved here).
const MaxFrameSize = 16 * 1024 * 1024

// KeepaliveInterval and PongDeadline implement the keepalive cadence
// noted as an open question in spec §9.
const (
	KeepaliveInterval = 30_000 // milliseconds
	PongDeadline      = 10_000 // milliseconds
)

var (
	// ErrClosed is returned by ReadFrame/WriteFrame after Close.
	ErrClosed = errors.New("transport: connection closed")
	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")
	// ErrUnsupportedMessage is returned for non-binary WebSocket frames.
	ErrUnsupportedMessage = errors.New("transport: unsupported message type")
)

// Conn is the transport-agnostic framed byte channel a Session reads
// from and writes to. Implementations must report close with a reason
// string and surface I/O errors as typed errors, never panics.
type Conn interface {
	// ReadFrame blocks until the next complete frame arrives, ctx is
	// cancelled, or the connection closes.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame sends a complete frame. Implementations MUST preserve
	// send order for frames written on the same logical stream.
	WriteFrame(ctx context.Context, frame []byte) error
	// Close closes the connection, reporting reason to the peer where
	// the underlying transport supports it.
	Close(reason string) error
	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string
}
