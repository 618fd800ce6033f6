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

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nkeys"
	"golang.org/x/crypto/blake2b"
)

func require_NoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("require no error, but got: %v", err)
	}
}

func require_Error(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("require error, but got none")
	}
}

func require_True(t *testing.T, b bool, msg string) {
	t.Helper()
	if !b {
		t.Fatalf("require true: %s", msg)
	}
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func signToken(t *testing.T, secret []byte, header rawHeader, payload rawPayload) string {
	t.Helper()
	h, err := json.Marshal(header)
	require_NoError(t, err)
	p, err := json.Marshal(payload)
	require_NoError(t, err)

	headerSeg := encodeSegment(h)
	payloadSeg := encodeSegment(p)
	signed := headerSeg + "." + payloadSeg

	mac, err := blake2b.New256(secret)
	require_NoError(t, err)
	mac.Write([]byte(signed))
	sig := mac.Sum(nil)

	return signed + "." + encodeSegment(sig)
}

func TestVerifyValidToken(t *testing.T) {
	secret := []byte("top-secret")
	v := NewVerifier(string(secret))

	token := signToken(t, secret, rawHeader{}, rawPayload{
		Sub:             "user-1",
		Iat:             1000,
		Exp:             9999999999,
		Permissions:     []string{"publish", "subscribe"},
		AllowedSubjects: []string{"messages.>"},
	})

	claims, err := v.Verify(token)
	require_NoError(t, err)
	require_True(t, claims.Subject == "user-1", "subject")
	require_True(t, len(claims.Permissions) == 2, "permissions")
}

func TestVerifyExpiredToken(t *testing.T) {
	secret := []byte("top-secret")
	v := NewVerifier(string(secret))
	v.now = func() time.Time { return time.Unix(2000, 0) }

	token := signToken(t, secret, rawHeader{}, rawPayload{Sub: "u", Exp: 1000})
	_, err := v.Verify(token)
	require_Error(t, err)
	require_True(t, err == ErrExpired, "expired")
}

func TestVerifyBadSignature(t *testing.T) {
	v := NewVerifier("top-secret")
	token := signToken(t, []byte("wrong-secret"), rawHeader{}, rawPayload{Sub: "u", Exp: 9999999999})
	_, err := v.Verify(token)
	require_Error(t, err)
	require_True(t, err == ErrBadSignature, "bad signature")
}

func TestVerifyMalformedStructure(t *testing.T) {
	v := NewVerifier("top-secret")
	_, err := v.Verify("not-a-token")
	require_Error(t, err)
	require_True(t, err == ErrMalformed, "malformed")
}

func TestVerifyMissingClaims(t *testing.T) {
	secret := []byte("top-secret")
	v := NewVerifier(string(secret))
	token := signToken(t, secret, rawHeader{}, rawPayload{Exp: 9999999999}) // no sub
	_, err := v.Verify(token)
	require_Error(t, err)
	require_True(t, err == ErrMissingClaims, "missing claims")
}

func TestVerifyEd25519Path(t *testing.T) {
	kp, err := nkeys.CreateAccount()
	require_NoError(t, err)
	pub, err := kp.PublicKey()
	require_NoError(t, err)

	payload := rawPayload{Sub: "user-2", Exp: 9999999999, Permissions: []string{"request"}}
	p, err := json.Marshal(payload)
	require_NoError(t, err)
	header := rawHeader{Alg: "ed25519", Iss: pub}
	h, err := json.Marshal(header)
	require_NoError(t, err)

	signed := encodeSegment(h) + "." + encodeSegment(p)
	sig, err := kp.Sign([]byte(signed))
	require_NoError(t, err)

	token := signed + "." + encodeSegment(sig)
	v := NewVerifier("unused-for-ed25519-path")
	claims, err := v.Verify(token)
	require_NoError(t, err)
	require_True(t, claims.Subject == "user-2", "subject")
}

func TestConstantTimeCompareSanity(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	require_True(t, subtle.ConstantTimeCompare(a, b) == 1, "equal slices")
}
