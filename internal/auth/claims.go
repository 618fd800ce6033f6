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

// Package auth verifies signed session tokens and extracts claims, per
// the token format in spec §6: three dot-separated base64url segments
// (header, payload, signature).
package auth

import "github.com/bowber/mottomesh/internal/permission"

// Claims is the immutable, verified content of a token. Once verified it
// is copied into the owning Session and never mutated.
type Claims struct {
	Subject         string
	IssuedAt        int64
	Expiry          int64
	Permissions     []string
	AllowedSubjects []string
	DenySubjects    []string
}

// PermissionSet derives the permission.Set this token's claims authorize.
func (c Claims) PermissionSet() permission.Set {
	caps := make(map[permission.Capability]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		switch p {
		case "publish":
			caps[permission.Publish] = true
		case "subscribe":
			caps[permission.Subscribe] = true
		case "request":
			caps[permission.Request] = true
		}
	}
	return permission.Set{
		Capabilities: caps,
		Allow:        c.AllowedSubjects,
		Deny:         c.DenySubjects,
	}
}

// rawPayload is the on-the-wire JSON shape of the token's payload segment.
type rawPayload struct {
	Sub             string   `json:"sub"`
	Iat             int64    `json:"iat"`
	Exp             int64    `json:"exp"`
	Permissions     []string `json:"permissions"`
	AllowedSubjects []string `json:"allowed_subjects"`
	DenySubjects    []string `json:"deny_subjects"`
}

func (p rawPayload) toClaims() Claims {
	return Claims{
		Subject:         p.Sub,
		IssuedAt:        p.Iat,
		Expiry:          p.Exp,
		Permissions:     p.Permissions,
		AllowedSubjects: p.AllowedSubjects,
		DenySubjects:    p.DenySubjects,
	}
}

// rawHeader is the token's header segment. Alg selects the signature
// scheme: "blake2b-mac" (default, HMAC-style over JWT_SECRET) or
// "ed25519" (an nkey-signed token, verified against an nkey issuer).
type rawHeader struct {
	Alg string `json:"alg"`
	Iss string `json:"iss,omitempty"` // nkey public key, ed25519 path only
}
