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
)

// startSubscriptionPump runs as a child task of the session (structured
// concurrency: cancelled deterministically via subCtx when the
// subscription is unsubscribed or the session closes). It never touches
// the registry map directly — subID is captured in the closure.
func (s *Session) startSubscriptionPump(subCtx context.Context, subID uint64, sub bus.Sub) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-sub.Messages():
				if !ok {
					return
				}
				frame := codec.EncodeServer(codec.Message{
					SubscriptionID: subID,
					Subject:        m.Subject,
					Payload:        m.Payload,
				})
				select {
				case s.outbound <- frame:
				case <-subCtx.Done():
					return
				default:
					s.backpressureClose()
					return
				}
			}
		}
	}()
}
