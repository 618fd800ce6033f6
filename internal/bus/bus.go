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

// Package bus adapts the external NATS broker to the narrow interface the
// gateway needs: subscribe/unsubscribe, publish, and request-reply,
// each exposing an async message stream per subscription (§4.5).
package bus

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// ErrUnavailable wraps any broker connectivity failure surfaced to a
// session (§7: "Bus unavailable").
var ErrUnavailable = errors.New("bus: broker unavailable")

// ErrRequestTimeout is returned by Request when no reply arrives in time.
var ErrRequestTimeout = errors.New("bus: request timeout")

// Msg is a message delivered on a subscription: its concrete subject
// (needed to populate codec.Message.Subject) and raw payload.
type Msg struct {
	Subject string
	Payload []byte
}

// Conn is the narrow broker contract a Session depends on. *Client
// implements it; tests substitute a fake to avoid a live NATS broker.
type Conn interface {
	Subscribe(pattern string) (Sub, error)
	Publish(subject string, payload []byte) error
	Request(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error)
}

// Sub is the narrow per-subscription contract a Session depends on.
// *Subscription implements it.
type Sub interface {
	Messages() <-chan Msg
	Unsubscribe() error
}

// inboundBuffer bounds how many undelivered messages a single
// subscription channel holds before the adapter itself starts dropping;
// the session's own MPSC fan-in (internal/session) applies the stricter
// backpressure policy described in spec §5.
const inboundBuffer = 1024

// Client wraps a *nats.Conn with the operations the gateway needs.
// A single Client is shared read-only across every session.
type Client struct {
	conn *nats.Conn
}

// Connect dials the configured NATS broker.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return &Client{conn: nc}, nil
}

// Close closes the underlying connection without draining it.
func (c *Client) Close() {
	c.conn.Close()
}

// Subscription is a live bus-side subscription backing a session's
// client-chosen subscription id.
type Subscription struct {
	sub  *nats.Subscription
	ch   chan *nats.Msg
	out  chan Msg
	done chan struct{}
}

// Subscribe opens a bus-side subscription on pattern. The returned
// Subscription's Messages channel is closed by Unsubscribe, which also
// discards any messages still buffered on it (at-most-once delivery per
// subscription, P5).
func (c *Client) Subscribe(pattern string) (Sub, error) {
	ch := make(chan *nats.Msg, inboundBuffer)
	sub, err := c.conn.ChanSubscribe(pattern, ch)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}

	s := &Subscription{
		sub:  sub,
		ch:   ch,
		out:  make(chan Msg, inboundBuffer),
		done: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case m, ok := <-s.ch:
			if !ok {
				return
			}
			select {
			case s.out <- Msg{Subject: m.Subject, Payload: m.Data}:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

// Messages is the async stream of (subject, payload) pairs delivered to
// this subscription.
func (s *Subscription) Messages() <-chan Msg { return s.out }

// Unsubscribe is idempotent; after it returns no further message may be
// yielded on Messages().
func (s *Subscription) Unsubscribe() error {
	select {
	case <-s.done:
		return nil // already unsubscribed
	default:
	}
	close(s.done)
	err := s.sub.Unsubscribe()
	// Discard anything still buffered; pump closes out once it sees done.
	for range s.out {
	}
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	return nil
}

// Publish is fire-and-forget, best-effort.
func (c *Client) Publish(subject string, payload []byte) error {
	if err := c.conn.Publish(subject, payload); err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	return nil
}

// Request correlates a reply via the underlying bus's own request
// mechanism, bounded by ctx/timeout.
func (c *Client) Request(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, ErrRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return msg.Data, nil
}
