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

// Package subject implements NATS-style dot-separated subject matching
// with the `*` (single token) and `>` (remaining tokens) wildcards.
package subject

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	tokenWildcardOne = "*"
	tokenWildcardAll = ">"
)

// ErrInvalidPattern describes a pattern that fails Valid. No function in
// this package returns it: Valid and Match report an ill-formed pattern
// by returning false.
var ErrInvalidPattern = errors.New("subject: invalid pattern")

// Valid reports whether pattern is well-formed: non-empty tokens, and a
// `>` wildcard only as the last token.
func Valid(pattern string) bool {
	if pattern == "" {
		return false
	}
	toks := strings.Split(pattern, ".")
	for i, tok := range toks {
		if tok == "" {
			return false
		}
		if tok == tokenWildcardAll && i != len(toks)-1 {
			return false
		}
	}
	return true
}

// Match reports whether subject matches pattern per the gateway's subject
// matching rules. An ill-formed pattern never matches (callers that need
// to distinguish "invalid pattern" from "no match" should call Valid
// first; the session's subscribe handler does this before its
// permission check).
func Match(pattern, subject string) bool {
	if subject == "" || !Valid(pattern) {
		return false
	}
	pToks := strings.Split(pattern, ".")
	sToks := strings.Split(subject, ".")

	for i, pTok := range pToks {
		switch pTok {
		case tokenWildcardAll:
			// `>` must be final and matches one-or-more remaining tokens.
			return i < len(sToks)
		case tokenWildcardOne:
			if i >= len(sToks) {
				return false
			}
		default:
			if i >= len(sToks) || sToks[i] != pTok {
				return false
			}
		}
	}
	// No trailing `>`: token counts must match exactly.
	return len(pToks) == len(sToks)
}
