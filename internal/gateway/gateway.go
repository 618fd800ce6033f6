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

// Package gateway binds the WebTransport and WebSocket listeners, wires
// each accepted connection to a new session, and drives graceful
// shutdown (§4.8). It owns no per-connection state itself; the bus
// client, verifier, and logger are constructed once and shared
// read-only across every session this package spawns.
package gateway

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"golang.org/x/time/rate"

	"github.com/bowber/mottomesh/internal/auth"
	"github.com/bowber/mottomesh/internal/bus"
	"github.com/bowber/mottomesh/internal/config"
	"github.com/bowber/mottomesh/internal/glog"
	"github.com/bowber/mottomesh/internal/session"
	"github.com/bowber/mottomesh/internal/transport"
	wtconn "github.com/bowber/mottomesh/internal/transport/webtransport"
	"github.com/bowber/mottomesh/internal/transport/ws"
)

// drainPeriod bounds how long a session is given to observe its
// shutdown and close on its own before Shutdown returns and the caller
// force-closes the process.
const drainPeriod = 2 * time.Second

// acceptRate/acceptBurst bound how fast a single remote host may open
// new sessions, independent of the per-session message backpressure
// policy in internal/session — this guards listener accept loops, not
// message throughput (spec's flow-control non-goal concerns the latter).
const (
	acceptRate  = 5 // connections/sec per host
	acceptBurst = 20
)

// Gateway binds both transport listeners and tracks every live session
// so Shutdown can drain them in §4.8 order: stop accepting, notify,
// drain, force-close.
type Gateway struct {
	cfg      config.Config
	verifier *auth.Verifier
	busConn  bus.Conn
	log      glog.Logger
	tlsConf  *tls.Config

	wsServer *http.Server
	wtServer *webtransport.Server

	mu       sync.Mutex
	sessions map[string]*session.Session
	closing  bool

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Gateway ready to Serve. tlsConf must carry the
// gateway's certificate; WebTransport requires TLS, and the WebSocket
// listener reuses the same certificate (matches the teacher's own
// "TLS only, bearer tokens over the wire" posture for its own websocket
// listener).
func New(cfg config.Config, verifier *auth.Verifier, busConn bus.Conn, log glog.Logger, tlsConf *tls.Config) *Gateway {
	if log == nil {
		log = glog.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:      cfg,
		verifier: verifier,
		busConn:  busConn,
		log:      log,
		tlsConf:  tlsConf,
		sessions: make(map[string]*session.Session),
		limiters: make(map[string]*rate.Limiter),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// admitAddr reports whether a new connection from addr's host is within
// the per-host accept rate, lazily creating that host's bucket.
func (g *Gateway) admitAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	g.limitersMu.Lock()
	lim, ok := g.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(acceptRate), acceptBurst)
		g.limiters[host] = lim
	}
	g.limitersMu.Unlock()

	return lim.Allow()
}

// Serve starts both listeners. Each runs its accept loop in its own
// goroutine; Serve itself only reports bind-time errors.
func (g *Gateway) Serve() error {
	if err := g.serveWebTransport(); err != nil {
		return errors.Wrap(err, "gateway: webtransport listen")
	}
	if err := g.serveWebSocket(); err != nil {
		return errors.Wrap(err, "gateway: websocket listen")
	}
	return nil
}

func (g *Gateway) serveWebSocket() error {
	hp := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.WebSocketPort()))

	ln, err := tls.Listen("tcp", hp, g.tlsConf)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleWebSocket)
	hs := &http.Server{
		Addr:    hp,
		Handler: mux,
	}

	g.wsServer = hs

	g.log.Noticef("listening for websocket clients on wss://%s", hp)
	go func() {
		if err := hs.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.log.Errorf("websocket listener error: %v", err)
		}
	}()
	return nil
}

func (g *Gateway) serveWebTransport() error {
	hp := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))

	pc, err := net.ListenPacket("udp", hp)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleWebTransportUpgrade)

	wt := &webtransport.Server{
		H3: http3.Server{
			Addr:      hp,
			TLSConfig: g.tlsConf,
			Handler:   mux,
		},
		CheckOrigin: func(*http.Request) bool { return true },
	}
	g.wtServer = wt

	g.log.Noticef("listening for webtransport clients on https://%s", hp)
	go func() {
		if err := wt.Serve(pc); err != nil {
			g.log.Debugf("webtransport listener stopped: %v", err)
		}
	}()
	return nil
}

// handleWebSocket upgrades one incoming HTTP request to a WebSocket and
// hands it to a new session.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !g.admitAddr(r.RemoteAddr) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	conn, err := ws.Accept(w, r)
	if err != nil {
		g.log.Errorf("ws accept: %v", err)
		return
	}
	g.startSession(conn, "websocket")
}

// handleWebTransportUpgrade completes the HTTP/3 CONNECT handshake via
// webtransport-go and hands the resulting session to a new Session.
func (g *Gateway) handleWebTransportUpgrade(w http.ResponseWriter, r *http.Request) {
	if !g.admitAddr(r.RemoteAddr) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	wtSess, err := g.wtServer.Upgrade(w, r)
	if err != nil {
		g.log.Errorf("webtransport upgrade: %v", err)
		http.Error(w, "webtransport upgrade failed", http.StatusBadRequest)
		return
	}
	g.startSession(wtconn.New(wtSess), "webtransport")
}

func (g *Gateway) startSession(conn transport.Conn, transportLabel string) {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		_ = conn.Close("server shutting down")
		return
	}
	g.mu.Unlock()

	key := conn.RemoteAddr()
	sess := session.New(conn, session.Config{
		Verifier:  g.verifier,
		Bus:       g.busConn,
		Logger:    g.log,
		Transport: transportLabel,
		OnShutdown: func(string) {
			g.mu.Lock()
			delete(g.sessions, key)
			g.mu.Unlock()
		},
	})

	g.mu.Lock()
	g.sessions[key] = sess
	g.mu.Unlock()

	go sess.Run(g.ctx)
}

// Shutdown implements the teacher's own accept-then-drain-then-close
// sequencing (§4.8): stop accepting new connections, cancel the shared
// context so every live session observes it via context.AfterFunc
// inside Session.Run, then wait out drainPeriod before returning.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	if g.wsServer != nil {
		_ = g.wsServer.Close()
	}
	if g.wtServer != nil {
		_ = g.wtServer.Close()
	}

	g.cancel()

	drain, cancel := context.WithTimeout(ctx, drainPeriod)
	defer cancel()
	<-drain.Done()
	return nil
}
