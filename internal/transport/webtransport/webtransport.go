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

// Package webtransport implements the transport.Conn contract over
// HTTP/3 (QUIC): each incoming bidirectional stream delivers one frame
// (terminated by end-of-stream), each datagram is one frame, and writes
// pick a datagram when the payload fits the MTU or else open a fresh
// stream and close its send side (§4.7). The HTTP/3 `CONNECT` handshake
// that establishes the WebTransport session is handled by the listener
// (internal/gateway) via github.com/quic-go/webtransport-go's
// Server.Upgrade; this package operates on the already-established
// *webtransport.Session.
package webtransport

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/quic-go/webtransport-go"

	"github.com/bowber/mottomesh/internal/transport"
)

// datagramMTU is the safe upper bound for a single QUIC datagram payload
// on a typical path; larger frames fall back to a dedicated stream.
const datagramMTU = 1200

// Conn adapts an established *webtransport.Session to transport.Conn.
type Conn struct {
	qc *webtransport.Session

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps qc, a session already upgraded by the HTTP/3 CONNECT
// handshake.
func New(qc *webtransport.Session) *Conn {
	return &Conn{qc: qc, closed: make(chan struct{})}
}

// ReadFrame returns the next complete frame, whichever arrives first:
// a fully-drained bidirectional stream or a datagram.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		stream, err := c.qc.AcceptStream(ctx)
		if err != nil {
			ch <- result{nil, c.classifyErr(err)}
			return
		}
		defer stream.Close()
		data, err := readStreamFrame(stream)
		ch <- result{data, c.classifyErr(err)}
	}()

	go func() {
		data, err := c.qc.ReceiveDatagram(ctx)
		if err != nil {
			ch <- result{nil, c.classifyErr(err)}
			return
		}
		ch <- result{data, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, transport.ErrClosed
	case r := <-ch:
		return r.data, r.err
	}
}

func readStreamFrame(stream webtransport.Stream) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > transport.MaxFrameSize {
				return nil, transport.ErrFrameTooLarge
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
	}
}

// WriteFrame sends frame as a datagram when it fits the MTU, or opens a
// new bidirectional stream and closes its send side otherwise.
func (c *Conn) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > transport.MaxFrameSize {
		return transport.ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(frame) <= datagramMTU {
		if err := c.qc.SendDatagram(frame); err == nil {
			return nil
		}
		// Datagram path unavailable (disabled/oversized on this path):
		// fall through to the stream path.
	}

	stream, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return errors.Wrap(err, "webtransport: open stream")
	}
	if _, err := stream.Write(frame); err != nil {
		return errors.Wrap(err, "webtransport: stream write")
	}
	return stream.Close()
}

func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.qc.CloseWithError(0, reason)
}

func (c *Conn) RemoteAddr() string {
	return c.qc.RemoteAddr().String()
}

// classifyErr maps any read/accept failure that follows the session's
// own context closing to transport.ErrClosed (peer or local close);
// anything else passes through unchanged.
func (c *Conn) classifyErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-c.qc.Context().Done():
		return transport.ErrClosed
	default:
		return err
	}
}

var _ transport.Conn = (*Conn)(nil)
