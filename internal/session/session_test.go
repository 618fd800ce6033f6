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

package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/bowber/mottomesh/internal/auth"
	"github.com/bowber/mottomesh/internal/bus"
	"github.com/bowber/mottomesh/internal/codec"
	"github.com/bowber/mottomesh/internal/subject"
	"github.com/bowber/mottomesh/internal/transport"
)

func require_True(t *testing.T, b bool, msg string) {
	t.Helper()
	if !b {
		t.Fatalf("require true: %s", msg)
	}
}

func require_NoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("require no error, but got: %v", err)
	}
}

// --- test token minting, mirroring internal/auth's blake2b-mac scheme ---

const testSecret = "test-secret"

func mintToken(t *testing.T, sub string, perms []string, allow, deny []string) string {
	t.Helper()
	header := map[string]string{}
	payload := map[string]interface{}{
		"sub":              sub,
		"iat":              time.Now().Unix(),
		"exp":              time.Now().Add(time.Hour).Unix(),
		"permissions":      perms,
		"allowed_subjects": allow,
		"deny_subjects":    deny,
	}
	h, err := json.Marshal(header)
	require_NoError(t, err)
	p, err := json.Marshal(payload)
	require_NoError(t, err)

	seg := func(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
	signed := seg(h) + "." + seg(p)

	mac, err := blake2b.New256([]byte(testSecret))
	require_NoError(t, err)
	mac.Write([]byte(signed))
	return signed + "." + seg(mac.Sum(nil))
}

// --- in-memory bus fake, routing Publish to every matching Subscribe ---

type memBroker struct {
	mu   sync.Mutex
	subs []*memSub
}

type memSub struct {
	pattern string
	out     chan bus.Msg
	closed  atomic.Bool
	done    chan struct{}
}

func (b *memBroker) Subscribe(pattern string) (bus.Sub, error) {
	s := &memSub{pattern: pattern, out: make(chan bus.Msg, 16), done: make(chan struct{})}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s, nil
}

func (s *memSub) Messages() <-chan bus.Msg { return s.out }

func (s *memSub) Unsubscribe() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	return nil
}

func (b *memBroker) Publish(subj string, payload []byte) error {
	b.mu.Lock()
	snapshot := append([]*memSub{}, b.subs...)
	b.mu.Unlock()
	for _, s := range snapshot {
		if s.closed.Load() {
			continue
		}
		if subject.Match(s.pattern, subj) {
			select {
			case s.out <- bus.Msg{Subject: subj, Payload: payload}:
			default:
			}
		}
	}
	return nil
}

func (b *memBroker) Request(ctx context.Context, subj string, payload []byte, timeout time.Duration) ([]byte, error) {
	// No responder is ever attached in these tests: every request times out.
	select {
	case <-time.After(timeout):
		return nil, bus.ErrRequestTimeout
	case <-ctx.Done():
		return nil, bus.ErrRequestTimeout
	}
}

// --- in-memory transport fake ---

type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 32), out: make(chan []byte, 64), closed: make(chan struct{})}
}

func (f *fakeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case fr, ok := <-f.in:
		if !ok {
			return nil, transport.ErrClosed
		}
		return fr, nil
	case <-f.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case f.out <- frame:
		return nil
	case <-f.closed:
		return transport.ErrClosed
	}
}

func (f *fakeConn) Close(reason string) error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "fake-addr" }

var _ transport.Conn = (*fakeConn)(nil)

func mustRecv(t *testing.T, ch chan []byte) codec.ServerMessage {
	t.Helper()
	select {
	case frame := <-ch:
		msg, err := codec.DecodeServer(frame)
		require_NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server frame")
		return nil
	}
}

func authenticate(t *testing.T, conn *fakeConn, token string) {
	t.Helper()
	conn.in <- codec.EncodeClient(codec.Auth{Token: token})
	msg := mustRecv(t, conn.out)
	_, ok := msg.(codec.AuthOk)
	require_True(t, ok, "expected AuthOk")
}

func newTestSession(conn *fakeConn, b bus.Conn) *Session {
	return New(conn, Config{
		Verifier: auth.NewVerifier(testSecret),
		Bus:      b,
	})
}

// Scenario 1: happy-path publish across two sessions sharing one broker.
func TestHappyPathPublish(t *testing.T) {
	broker := &memBroker{}

	connA := newFakeConn()
	sessA := newTestSession(connA, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessA.Run(ctx)

	tokenA := mintToken(t, "userA", []string{"publish", "subscribe"}, []string{"messages.>"}, nil)
	authenticate(t, connA, tokenA)

	connA.in <- codec.EncodeClient(codec.Subscribe{Subject: "messages.*", ID: 1})
	okMsg := mustRecv(t, connA.out)
	subOk, ok := okMsg.(codec.SubscribeOk)
	require_True(t, ok, "expected SubscribeOk")
	require_True(t, subOk.ID == 1, "subscribe id echoed")

	connB := newFakeConn()
	sessB := newTestSession(connB, broker)
	go sessB.Run(ctx)
	tokenB := mintToken(t, "userB", []string{"publish"}, []string{"messages.>"}, nil)
	authenticate(t, connB, tokenB)

	connB.in <- codec.EncodeClient(codec.Publish{Subject: "messages.x", Payload: []byte{1, 2, 3}})

	delivered := mustRecv(t, connA.out)
	m, ok := delivered.(codec.Message)
	require_True(t, ok, "expected Message delivery")
	require_True(t, m.SubscriptionID == 1, "subscription id")
	require_True(t, m.Subject == "messages.x", "subject")
	require_True(t, len(m.Payload) == 3 && m.Payload[0] == 1, "payload")
}

// Scenario 2: deny wins over allow.
func TestDenyWins(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"publish"}, []string{"messages.>"}, []string{"messages.admin"})
	authenticate(t, conn, token)

	conn.in <- codec.EncodeClient(codec.Publish{Subject: "messages.admin", Payload: nil})
	errMsg := mustRecv(t, conn.out)
	e, ok := errMsg.(codec.Error)
	require_True(t, ok, "expected Error")
	require_True(t, e.Code == 403, "forbidden code")

	// Publishing an allowed, non-denied subject produces no frame; prove
	// the session is still alive by pinging it.
	conn.in <- codec.EncodeClient(codec.Publish{Subject: "messages.user", Payload: nil})
	conn.in <- codec.EncodeClient(codec.Ping{})
	pong := mustRecv(t, conn.out)
	_, ok = pong.(codec.Pong)
	require_True(t, ok, "expected Pong, session must still be open")
}

// Scenario 4: request timeout with no responder attached.
func TestRequestTimeout(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"request"}, []string{"svc.>"}, nil)
	authenticate(t, conn, token)

	conn.in <- codec.EncodeClient(codec.Request{Subject: "svc.q", Payload: nil, TimeoutMs: 50, RequestID: 7})
	reply := mustRecv(t, conn.out)
	re, ok := reply.(codec.RequestError)
	require_True(t, ok, "expected RequestError")
	require_True(t, re.RequestID == 7, "request id echoed")
	require_True(t, re.Reason == "timeout", "timeout reason")
}

// Request timeout_ms = 0 is an immediate timeout (§4.6 edge case).
func TestRequestImmediateTimeout(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"request"}, []string{"svc.>"}, nil)
	authenticate(t, conn, token)

	conn.in <- codec.EncodeClient(codec.Request{Subject: "svc.q", Payload: nil, TimeoutMs: 0, RequestID: 1})
	reply := mustRecv(t, conn.out)
	_, ok := reply.(codec.RequestError)
	require_True(t, ok, "expected RequestError")
}

// Scenario 5: duplicate subscription id.
func TestDuplicateSubscriptionID(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"subscribe"}, []string{">"}, nil)
	authenticate(t, conn, token)

	conn.in <- codec.EncodeClient(codec.Subscribe{Subject: "a", ID: 1})
	first := mustRecv(t, conn.out)
	_, ok := first.(codec.SubscribeOk)
	require_True(t, ok, "expected first SubscribeOk")

	conn.in <- codec.EncodeClient(codec.Subscribe{Subject: "b", ID: 1})
	second := mustRecv(t, conn.out)
	se, ok := second.(codec.SubscribeError)
	require_True(t, ok, "expected SubscribeError")
	require_True(t, se.Reason == "duplicate id", "duplicate id reason")
}

// Scenario 6 / P7: unauthenticated publish is rejected and the session closes.
func TestUnauthenticatedPublishRejected(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	conn.in <- codec.EncodeClient(codec.Publish{Subject: "x", Payload: nil})
	reply := mustRecv(t, conn.out)
	e, ok := reply.(codec.Error)
	require_True(t, ok, "expected Error")
	require_True(t, e.Code == 401, "unauthenticated code")

	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to close after unauthenticated operation")
	}
}

// Unsubscribe on an unknown id is a silent no-op.
func TestUnsubscribeUnknownIDNoop(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"subscribe"}, []string{">"}, nil)
	authenticate(t, conn, token)

	conn.in <- codec.EncodeClient(codec.Unsubscribe{ID: 999})
	conn.in <- codec.EncodeClient(codec.Ping{})
	reply := mustRecv(t, conn.out)
	_, ok := reply.(codec.Pong)
	require_True(t, ok, "session must still be responsive after unknown unsubscribe")
}

// Scenario 7 / §4.8: cancelling the parent context politely terminates
// the session with Error{503} before the transport closes.
func TestGracefulShutdownSends503(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"publish"}, []string{">"}, nil)
	authenticate(t, conn, token)

	cancel()

	reply := mustRecv(t, conn.out)
	e, ok := reply.(codec.Error)
	require_True(t, ok, "expected Error")
	require_True(t, e.Code == 503, "shutdown code")

	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected transport to close after shutdown")
	}
}

// Invalid frame closes the session with Error{400}.
func TestInvalidFrameCloses(t *testing.T) {
	broker := &memBroker{}
	conn := newFakeConn()
	sess := newTestSession(conn, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	token := mintToken(t, "u", []string{"publish"}, []string{">"}, nil)
	authenticate(t, conn, token)

	conn.in <- []byte{codec.ProtocolVersion + 1, 0}
	reply := mustRecv(t, conn.out)
	e, ok := reply.(codec.Error)
	require_True(t, ok, "expected Error")
	require_True(t, e.Code == 400, "invalid message code")

	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to close after invalid frame")
	}
}
