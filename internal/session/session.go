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

// Package session implements the per-connection gateway state machine
// (§4.6): awaiting-auth → authenticated → closing. It owns the
// subscription registry and pending-request map, and is the sole
// writer of outbound frames on its transport connection.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nuid"

	"github.com/bowber/mottomesh/internal/auth"
	"github.com/bowber/mottomesh/internal/bus"
	"github.com/bowber/mottomesh/internal/codec"
	"github.com/bowber/mottomesh/internal/glog"
	"github.com/bowber/mottomesh/internal/metrics"
	"github.com/bowber/mottomesh/internal/permission"
	"github.com/bowber/mottomesh/internal/transport"
)

// AuthTimeout bounds how long a connection may sit in AwaitingAuth.
const AuthTimeout = 10 * time.Second

// outboundBuffer is the bounded MPSC fan-in size from subscription pumps
// and request completions to the session's single writer (§5).
const outboundBuffer = 256

// Config bundles a Session's shared, process-wide collaborators.
type Config struct {
	Verifier *auth.Verifier
	Bus      bus.Conn
	Logger   glog.Logger
	// Transport labels this session's metrics ("websocket" or
	// "webtransport").
	Transport string
	// OnShutdown, if non-nil, is invoked once the session has fully torn
	// down (all child tasks joined), letting the listener track liveness.
	OnShutdown func(sessionID string)
}

// Session is one authenticated transport connection's owner of its
// subscription registry, pending-request map, and transport writer.
type Session struct {
	conn transport.Conn
	cfg  Config

	state atomic.Int32
	id    string // assigned on successful auth

	claims auth.Claims
	perms  permission.Set

	// subs and pending are touched only by the owning goroutine that
	// runs Run's loop: handleFrame and the closures received on internal
	// (I2, I3).
	subs    map[uint64]*subscriptionEntry
	pending map[uint64]*pendingEntry

	outbound chan []byte
	internal chan func(*Session)

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	closeOnce   sync.Once
	closeReason string
}

// subscriptionEntry backs one client-chosen subscription id.
type subscriptionEntry struct {
	subject string
	sub     bus.Sub
	cancel  context.CancelFunc
}

// pendingEntry backs one client-chosen request id.
type pendingEntry struct {
	cancel context.CancelFunc
}

// New constructs a Session over an already-accepted transport
// connection. The session starts in AwaitingAuth.
func New(conn transport.Conn, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = glog.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:     conn,
		cfg:      cfg,
		subs:     make(map[uint64]*subscriptionEntry),
		pending:  make(map[uint64]*pendingEntry),
		outbound: make(chan []byte, outboundBuffer),
		internal: make(chan func(*Session), outboundBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.state.Store(int32(AwaitingAuth))
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run drives the session to completion: it blocks until the session
// closes, by auth timeout, transport close, decode error, or explicit
// shutdown. It never returns early while the transport still has data.
func (s *Session) Run(parent context.Context) {
	metrics.SessionsAccepted.WithLabelValues(s.cfg.Transport).Inc()
	metrics.SessionsActive.WithLabelValues(s.cfg.Transport).Inc()
	defer metrics.SessionsActive.WithLabelValues(s.cfg.Transport).Dec()

	stop := context.AfterFunc(parent, s.shutdownClose)
	defer stop()

	s.wg.Add(1)
	go s.writeLoop()

	frames := make(chan frameOrErr, 1)
	go s.readLoop(frames)

	authTimer := time.NewTimer(AuthTimeout)
	defer authTimer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			s.wg.Wait()
			metrics.SessionsClosed.WithLabelValues(s.closeReason).Inc()
			if s.cfg.OnShutdown != nil {
				s.cfg.OnShutdown(s.id)
			}
			return

		case <-authTimer.C:
			if s.State() == AwaitingAuth {
				s.sendNow(codec.EncodeServer(codec.AuthError{Reason: "authentication timeout"}))
				s.closeWith("authentication timeout")
			}

		case fe := <-frames:
			if fe.err != nil {
				s.handleReadError(fe.err)
				continue
			}
			s.handleFrame(fe.frame)

		case fn := <-s.internal:
			fn(s)
		}
	}
}

type frameOrErr struct {
	frame []byte
	err   error
}

func (s *Session) readLoop(out chan<- frameOrErr) {
	for {
		frame, err := s.conn.ReadFrame(s.ctx)
		select {
		case out <- frameOrErr{frame, err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case frame := <-s.outbound:
			s.writeDirect(frame)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) writeDirect(frame []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conn.WriteFrame(ctx, frame); err != nil {
		s.closeWith("transport write error")
	}
}

// sendNow writes a frame immediately, bypassing the bounded outbound
// channel. Used for the terminal frames (AuthError, Error) emitted at
// the moment a session decides to close.
func (s *Session) sendNow(frame []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.conn.WriteFrame(ctx, frame)
}

// enqueue attempts a non-blocking send on the bounded outbound channel.
// Overflow is the backpressure policy of §5/§7: the session is closed
// with Error{500,"backpressure"} rather than buffering unboundedly.
func (s *Session) enqueue(frame []byte) {
	select {
	case s.outbound <- frame:
	default:
		s.backpressureClose()
	}
}

func (s *Session) backpressureClose() {
	s.closeOnce.Do(func() {
		s.cfg.Logger.Warnf("session %s: outbound backpressure, closing", s.id)
		metrics.Backpressure.WithLabelValues(s.cfg.Transport).Inc()
		s.sendNow(codec.EncodeServer(codec.Error{Code: 500, Message: "backpressure"}))
		s.closeReason = "backpressure"
		s.cancel()
	})
}

// closeWith cancels the session exactly once, recording reason.
func (s *Session) closeWith(reason string) {
	s.closeOnce.Do(func() {
		s.cfg.Logger.Debugf("session %s: closing: %s", s.id, reason)
		s.closeReason = reason
		s.cancel()
	})
}

// shutdownClose is the §4.8 graceful-shutdown path: the server politely
// terminates the session with Error{503} while the transport still
// permits a write, then cancels like any other close.
func (s *Session) shutdownClose() {
	s.closeOnce.Do(func() {
		s.cfg.Logger.Debugf("session %s: closing: %s", s.id, "server shutting down")
		s.sendNow(codec.EncodeServer(codec.Error{Code: 503, Message: "server shutting down"}))
		s.closeReason = "server shutting down"
		s.cancel()
	})
}

// teardown cancels every child subscription/request and closes the
// transport. Per I3, every pending request is failed exactly once here
// if it has not already completed.
func (s *Session) teardown() {
	s.setState(Closing)
	for id, entry := range s.subs {
		entry.cancel()
		_ = entry.sub.Unsubscribe()
		delete(s.subs, id)
		metrics.SubscriptionsActive.Dec()
	}
	for id, entry := range s.pending {
		entry.cancel()
		delete(s.pending, id)
		metrics.RequestsInFlight.Dec()
	}
	_ = s.conn.Close(s.closeReason)
}

func (s *Session) handleReadError(err error) {
	s.closeWith("transport read error: " + err.Error())
}

// newSessionID assigns the opaque session id on successful auth.
func newSessionID() string {
	return nuid.Next()
}
