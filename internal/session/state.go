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

// State is a Session's place in its lifecycle (§4.6, §3 invariant I4).
type State int32

const (
	AwaitingAuth State = iota
	Authenticated
	Closing
)

func (s State) String() string {
	switch s {
	case AwaitingAuth:
		return "awaiting-auth"
	case Authenticated:
		return "authenticated"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}
