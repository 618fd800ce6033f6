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
	"strings"
	"time"

	"github.com/nats-io/nkeys"
	"golang.org/x/crypto/blake2b"
)

// Verifier validates signed tokens and extracts claims (§4.4). A single
// Verifier is constructed at process start from JWT_SECRET and shared
// read-only across every session.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a Verifier around the shared symmetric secret
// configured via JWT_SECRET.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify validates token and returns its claims. Any failure — signature,
// expiry, missing/invalid claims, malformed structure — returns a typed
// error from this package; the session maps it to AuthError.
func (v *Verifier) Verify(token string) (Claims, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Claims{}, ErrMalformed
	}
	headerSeg, payloadSeg, sigSeg := segs[0], segs[1], segs[2]

	headerRaw, err := decodeSegment(headerSeg)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	var header rawHeader
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return Claims{}, ErrMalformed
	}

	payloadRaw, err := decodeSegment(payloadSeg)
	if err != nil {
		return Claims{}, ErrMalformed
	}

	sig, err := decodeSegment(sigSeg)
	if err != nil {
		return Claims{}, ErrMalformed
	}

	signed := headerSeg + "." + payloadSeg

	switch header.Alg {
	case "", "blake2b-mac":
		if err := v.verifyMAC(signed, sig); err != nil {
			return Claims{}, err
		}
	case "ed25519":
		if err := verifyNkey(header.Iss, signed, sig); err != nil {
			return Claims{}, err
		}
	default:
		return Claims{}, ErrUnknownAlg
	}

	var payload rawPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return Claims{}, ErrMalformed
	}
	if payload.Sub == "" || payload.Exp == 0 {
		return Claims{}, ErrMissingClaims
	}

	if payload.Exp <= v.now().Unix() {
		return Claims{}, ErrExpired
	}

	return payload.toClaims(), nil
}

// verifyMAC checks the keyed-blake2b signature over signed against v.secret.
func (v *Verifier) verifyMAC(signed string, sig []byte) error {
	mac, err := blake2b.New256(v.secret)
	if err != nil {
		return ErrMalformed
	}
	mac.Write([]byte(signed))
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(expected, sig) != 1 {
		return ErrBadSignature
	}
	return nil
}

// verifyNkey checks an Ed25519 signature from an nkey-identified issuer,
// the alternative signing path alongside the shared-secret path above.
func verifyNkey(issuerPublicKey, signed string, sig []byte) error {
	if issuerPublicKey == "" {
		return ErrMalformed
	}
	kp, err := nkeys.FromPublicKey(issuerPublicKey)
	if err != nil {
		return ErrMalformed
	}
	if err := kp.Verify([]byte(signed), sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(seg)
}
