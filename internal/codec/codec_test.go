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

package codec

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func require_True(t *testing.T, b bool) {
	t.Helper()
	if !b {
		t.Fatalf("require true, but got false")
	}
}

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

func require_Equal(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("require equal, but got: %v != %v", got, want)
	}
}

// P1: codec round-trip for every client/server message variant.
func TestClientRoundTrip(t *testing.T) {
	cases := []ClientMessage{
		Auth{Token: "abc.def.ghi"},
		Subscribe{Subject: "messages.*", ID: 1},
		Unsubscribe{ID: 42},
		Publish{Subject: "messages.x", Payload: []byte{1, 2, 3}},
		Request{Subject: "svc.q", Payload: []byte("hi"), TimeoutMs: 50, RequestID: 7},
		Ping{},
	}
	for _, c := range cases {
		encoded := EncodeClient(c)
		decoded, err := DecodeClient(encoded)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	}
}

func TestServerRoundTrip(t *testing.T) {
	cases := []ServerMessage{
		AuthOk{SessionID: "sess-1"},
		AuthError{Reason: "bad token"},
		SubscribeOk{ID: 1},
		SubscribeError{ID: 1, Reason: "duplicate id"},
		Message{SubscriptionID: 1, Subject: "messages.x", Payload: []byte{1, 2, 3}},
		Response{RequestID: 7, Payload: []byte("ok")},
		RequestError{RequestID: 7, Reason: "timeout"},
		Error{Code: 403, Message: "forbidden"},
		Pong{},
	}
	for _, c := range cases {
		encoded := EncodeServer(c)
		decoded, err := DecodeServer(encoded)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	}
}

// P2: version gate.
func TestVersionMismatch(t *testing.T) {
	frame := EncodeClient(Ping{})
	frame[0] = ProtocolVersion + 1
	_, err := DecodeClient(frame)
	require_Error(t, err)
	require_True(t, err == ErrVersionMismatch)
}

func TestUnknownDiscriminant(t *testing.T) {
	frame := EncodeClient(Ping{})
	frame[1] = 0xFF
	_, err := DecodeClient(frame)
	require_Error(t, err)
	require_True(t, err == ErrUnknownTag)
}

func TestTruncatedFrame(t *testing.T) {
	frame := EncodeClient(Subscribe{Subject: "a.b", ID: 1})
	_, err := DecodeClient(frame[:len(frame)-2])
	require_Error(t, err)
}

func TestTrailingBytes(t *testing.T) {
	frame := EncodeClient(Ping{})
	frame = append(frame, 0x00)
	_, err := DecodeClient(frame)
	require_Error(t, err)
	require_True(t, err == ErrTrailingBytes)
}

func TestInvalidUTF8(t *testing.T) {
	frame := EncodeClient(Subscribe{Subject: "a.b", ID: 1})
	// Corrupt the subject string bytes (after version+tag+len prefix) with
	// 0xFF, a byte that never appears in valid UTF-8.
	frame[6] = 0xFF
	_, err := DecodeClient(frame)
	require_Error(t, err)
}

func TestEmptyFrame(t *testing.T) {
	_, err := DecodeClient(nil)
	require_Error(t, err)
	require_True(t, err == ErrEmptyFrame)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint()
	b := Fingerprint()
	require_Equal(t, a, b)
	require_True(t, len(a) == 16)
	require_True(t, !strings.Contains(a, " "))
}
