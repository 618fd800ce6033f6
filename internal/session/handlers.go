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
	"time"

	"github.com/bowber/mottomesh/internal/codec"
	"github.com/bowber/mottomesh/internal/metrics"
	"github.com/bowber/mottomesh/internal/permission"
	"github.com/bowber/mottomesh/internal/subject"
)

// handleFrame decodes and dispatches one incoming client frame. Any
// decode error closes the session with Error{400,"invalid message"}
// (§7).
func (s *Session) handleFrame(frame []byte) {
	msg, err := codec.DecodeClient(frame)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues("client").Inc()
		s.sendNow(codec.EncodeServer(codec.Error{Code: 400, Message: "invalid message"}))
		s.closeWith("invalid message")
		return
	}

	switch m := msg.(type) {
	case codec.Auth:
		s.handleAuth(m)
	default:
		if s.State() != Authenticated {
			s.sendNow(codec.EncodeServer(codec.Error{Code: 401, Message: "unauthenticated"}))
			s.closeWith("unauthenticated operation")
			return
		}
		switch m := msg.(type) {
		case codec.Subscribe:
			s.handleSubscribe(m)
		case codec.Unsubscribe:
			s.handleUnsubscribe(m)
		case codec.Publish:
			s.handlePublish(m)
		case codec.Request:
			s.handleRequest(m)
		case codec.Ping:
			s.handlePing()
		}
	}
}

func (s *Session) handleAuth(m codec.Auth) {
	if s.State() != AwaitingAuth {
		// Re-auth on an existing session is not supported (§4.6).
		s.sendNow(codec.EncodeServer(codec.Error{Code: 400, Message: "already authenticated"}))
		s.closeWith("duplicate auth")
		return
	}

	claims, err := s.cfg.Verifier.Verify(m.Token)
	if err != nil {
		s.sendNow(codec.EncodeServer(codec.AuthError{Reason: err.Error()}))
		s.closeWith("auth failed")
		return
	}

	s.claims = claims
	s.perms = claims.PermissionSet()
	s.id = newSessionID()
	s.setState(Authenticated)
	s.enqueue(codec.EncodeServer(codec.AuthOk{SessionID: s.id}))
}

func (s *Session) handleSubscribe(m codec.Subscribe) {
	if _, exists := s.subs[m.ID]; exists {
		s.enqueue(codec.EncodeServer(codec.SubscribeError{ID: m.ID, Reason: "duplicate id"}))
		return
	}
	if !subject.Valid(m.Subject) {
		s.enqueue(codec.EncodeServer(codec.SubscribeError{ID: m.ID, Reason: "invalid pattern"}))
		return
	}
	if !s.perms.Allowed(permission.Subscribe, m.Subject) {
		s.enqueue(codec.EncodeServer(codec.SubscribeError{ID: m.ID, Reason: "forbidden"}))
		return
	}

	busSub, err := s.cfg.Bus.Subscribe(m.Subject)
	if err != nil {
		s.enqueue(codec.EncodeServer(codec.SubscribeError{ID: m.ID, Reason: "bus unavailable"}))
		return
	}

	subCtx, cancel := context.WithCancel(s.ctx)
	entry := &subscriptionEntry{subject: m.Subject, sub: busSub, cancel: cancel}
	s.subs[m.ID] = entry

	// SubscribeOk must precede any Message on this subscription: enqueue
	// it before starting the pump that can deliver Message frames.
	s.enqueue(codec.EncodeServer(codec.SubscribeOk{ID: m.ID}))
	metrics.SubscriptionsActive.Inc()
	s.startSubscriptionPump(subCtx, m.ID, busSub)
}

func (s *Session) handleUnsubscribe(m codec.Unsubscribe) {
	entry, ok := s.subs[m.ID]
	if !ok {
		return // silent no-op on unknown id
	}
	delete(s.subs, m.ID)
	entry.cancel()
	_ = entry.sub.Unsubscribe()
	metrics.SubscriptionsActive.Dec()
}

func (s *Session) handlePublish(m codec.Publish) {
	if !s.perms.Allowed(permission.Publish, m.Subject) {
		s.enqueue(codec.EncodeServer(codec.Error{Code: 403, Message: "forbidden"}))
		return
	}
	if err := s.cfg.Bus.Publish(m.Subject, m.Payload); err != nil {
		s.enqueue(codec.EncodeServer(codec.Error{Code: 503, Message: "bus unavailable"}))
	}
}

func (s *Session) handleRequest(m codec.Request) {
	if !s.perms.Allowed(permission.Request, m.Subject) {
		s.enqueue(codec.EncodeServer(codec.RequestError{RequestID: m.RequestID, Reason: "forbidden"}))
		return
	}
	if _, exists := s.pending[m.RequestID]; exists {
		s.enqueue(codec.EncodeServer(codec.RequestError{RequestID: m.RequestID, Reason: "duplicate request id"}))
		return
	}

	reqCtx, cancel := context.WithCancel(s.ctx)
	s.pending[m.RequestID] = &pendingEntry{cancel: cancel}
	metrics.RequestsInFlight.Inc()
	s.startRequest(reqCtx, m)
}

func (s *Session) handlePing() {
	s.enqueue(codec.EncodeServer(codec.Pong{}))
}

// requestTimeout converts the wire's millisecond timeout, treating 0 as
// an immediate timeout (§4.6 edge case).
func requestTimeout(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
