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

// Package ws implements the transport.Conn contract over a WebSocket
// binary sub-protocol (§4.7): each binary frame carries exactly one
// logical frame, text frames are rejected, and a max frame size
// terminates the connection with a protocol error.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/bowber/mottomesh/internal/transport"
)

// Upgrader is shared by the listener for every incoming WebSocket
// connection. CheckOrigin is permissive here; origin policy belongs to
// the reverse proxy/TLS termination layer in front of the gateway.
var Upgrader = websocket.Upgrader{
	CheckOrigin:     func(*http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn adapts a *websocket.Conn to transport.Conn.
type Conn struct {
	writeMu sync.Mutex
	c       *websocket.Conn
}

// Accept upgrades an HTTP request to a WebSocket connection and wraps it.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	c, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ws: upgrade failed")
	}
	c.SetReadLimit(transport.MaxFrameSize)
	conn := &Conn{c: c}
	conn.armKeepalive()
	return conn, nil
}

func (c *Conn) armKeepalive() {
	deadline := time.Duration(transport.KeepaliveInterval+transport.PongDeadline) * time.Millisecond
	c.c.SetReadDeadline(time.Now().Add(deadline))
	c.c.SetPongHandler(func(string) error {
		c.c.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})
	// Ping every KeepaliveInterval; the peer's pong renews the read deadline.
	go func() {
		ticker := time.NewTicker(time.Duration(transport.KeepaliveInterval) * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			wd := time.Now().Add(time.Duration(transport.PongDeadline) * time.Millisecond)
			if err := c.c.WriteControl(websocket.PingMessage, nil, wd); err != nil {
				return
			}
		}
	}()
}

// ReadFrame reads exactly one binary WebSocket message as one logical
// frame. Text frames are a protocol error per §4.7.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		typ, data, err := c.c.ReadMessage()
		if err != nil {
			ch <- result{nil, classifyReadErr(err)}
			return
		}
		if typ != websocket.BinaryMessage {
			ch <- result{nil, transport.ErrUnsupportedMessage}
			return
		}
		ch <- result{data, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}

func classifyReadErr(err error) error {
	if websocket.IsUnexpectedCloseError(err) || websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return transport.ErrClosed
	}
	return err
}

// WriteFrame sends frame as a single binary WebSocket message. Frames
// written here are delivered in send order (inherent to one underlying
// TCP-like WS connection).
func (c *Conn) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > transport.MaxFrameSize {
		return transport.ErrFrameTooLarge
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.c.SetWriteDeadline(dl)
	}
	if err := c.c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errors.Wrap(err, "ws: write failed")
	}
	return nil
}

// Close closes the connection, sending a close frame carrying reason.
func (c *Conn) Close(reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.c.Close()
}

func (c *Conn) RemoteAddr() string {
	return c.c.RemoteAddr().String()
}

var _ transport.Conn = (*Conn)(nil)
