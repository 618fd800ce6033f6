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

// Package permission evaluates (capability, subject) requests against a
// session's capability set and allow/deny pattern lists.
package permission

import "github.com/bowber/mottomesh/internal/subject"

// Capability is an operation class a token may authorize.
type Capability int

const (
	Publish Capability = iota
	Subscribe
	Request
)

// Set is the evaluation input derived from verified token claims.
type Set struct {
	Capabilities map[Capability]bool
	Allow        []string
	Deny         []string
}

// Allowed evaluates a capability+subject request against the set.
// Deny takes precedence over allow; an empty allow list denies
// everything; an empty deny list denies nothing.
func (s Set) Allowed(cap Capability, subj string) bool {
	if !s.Capabilities[cap] {
		return false
	}
	for _, pat := range s.Deny {
		if subject.Match(pat, subj) {
			return false
		}
	}
	for _, pat := range s.Allow {
		if subject.Match(pat, subj) {
			return true
		}
	}
	return false
}
