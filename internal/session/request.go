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

	"github.com/bowber/mottomesh/internal/bus"
	"github.com/bowber/mottomesh/internal/codec"
	"github.com/bowber/mottomesh/internal/metrics"
)

// startRequest spawns a bounded child task awaiting the bus reply. The
// task never touches the pending map directly; it hands a closure back
// through s.internal so the map mutation happens on the session's own
// goroutine (I3: removed exactly once, by response, error, or timeout).
func (s *Session) startRequest(reqCtx context.Context, m codec.Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timeout := requestTimeout(m.TimeoutMs)
		payload, err := s.cfg.Bus.Request(reqCtx, m.Subject, m.Payload, timeout)

		var reply func(*Session)
		switch {
		case err == nil:
			reply = func(s *Session) {
				s.completeRequest(m.RequestID, codec.Response{RequestID: m.RequestID, Payload: payload})
			}
		case err == bus.ErrRequestTimeout:
			reply = func(s *Session) {
				s.completeRequest(m.RequestID, codec.RequestError{RequestID: m.RequestID, Reason: "timeout"})
			}
		default:
			reply = func(s *Session) {
				s.completeRequest(m.RequestID, codec.RequestError{RequestID: m.RequestID, Reason: "broker error"})
			}
		}

		select {
		case s.internal <- reply:
		case <-s.ctx.Done():
			// Session is tearing down; teardown() already cancels and
			// drops every pending entry itself.
		}
	}()
}

// completeRequest removes id from the pending map (if still present —
// teardown may have already removed it) and enqueues the reply frame.
func (s *Session) completeRequest(id uint64, reply codec.ServerMessage) {
	entry, ok := s.pending[id]
	if !ok {
		return
	}
	entry.cancel()
	delete(s.pending, id)
	metrics.RequestsInFlight.Dec()
	s.enqueue(codec.EncodeServer(reply))
}
