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

// ClientMessage is the closed sum of frames a client may send. Each
// variant reports its wire discriminant via clientTag; DecodeClient
// dispatches on that discriminant, mirroring the wire layout directly.
type ClientMessage interface {
	clientTag() clientTag
}

type clientTag byte

const (
	ClientAuth clientTag = iota
	ClientSubscribe
	ClientUnsubscribe
	ClientPublish
	ClientRequest
	ClientPing
)

type Auth struct {
	Token string
}

type Subscribe struct {
	Subject string
	ID      uint64
}

type Unsubscribe struct {
	ID uint64
}

type Publish struct {
	Subject string
	Payload []byte
}

type Request struct {
	Subject   string
	Payload   []byte
	TimeoutMs uint32
	RequestID uint64
}

type Ping struct{}

func (Auth) clientTag() clientTag        { return ClientAuth }
func (Subscribe) clientTag() clientTag   { return ClientSubscribe }
func (Unsubscribe) clientTag() clientTag { return ClientUnsubscribe }
func (Publish) clientTag() clientTag     { return ClientPublish }
func (Request) clientTag() clientTag     { return ClientRequest }
func (Ping) clientTag() clientTag        { return ClientPing }

// EncodeClient serializes a ClientMessage into a complete versioned frame.
func EncodeClient(m ClientMessage) []byte {
	w := &writer{}
	w.byte(ProtocolVersion)
	w.byte(byte(m.clientTag()))

	switch v := m.(type) {
	case Auth:
		w.string(v.Token)
	case Subscribe:
		w.string(v.Subject)
		w.uint64(v.ID)
	case Unsubscribe:
		w.uint64(v.ID)
	case Publish:
		w.string(v.Subject)
		w.bytes(v.Payload)
	case Request:
		w.string(v.Subject)
		w.bytes(v.Payload)
		w.uint32(v.TimeoutMs)
		w.uint64(v.RequestID)
	case Ping:
		// no fields
	}
	return w.buf.Bytes()
}

// DecodeClient parses a complete frame (version byte + discriminant + body)
// into a ClientMessage. It rejects version mismatches, unknown
// discriminants, truncated input, and trailing bytes.
func DecodeClient(frame []byte) (ClientMessage, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(frame) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	r := newReader(frame)

	ver, err := r.byte()
	if err != nil {
		return nil, err
	}
	if ver != ProtocolVersion {
		return nil, ErrVersionMismatch
	}

	tag, err := r.byte()
	if err != nil {
		return nil, err
	}

	var msg ClientMessage
	switch clientTag(tag) {
	case ClientAuth:
		token, err := r.string()
		if err != nil {
			return nil, err
		}
		msg = Auth{Token: token}
	case ClientSubscribe:
		subject, err := r.string()
		if err != nil {
			return nil, err
		}
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		msg = Subscribe{Subject: subject, ID: id}
	case ClientUnsubscribe:
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		msg = Unsubscribe{ID: id}
	case ClientPublish:
		subject, err := r.string()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		msg = Publish{Subject: subject, Payload: payload}
	case ClientRequest:
		subject, err := r.string()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		timeoutMs, err := r.uint32()
		if err != nil {
			return nil, err
		}
		reqID, err := r.uint64()
		if err != nil {
			return nil, err
		}
		msg = Request{Subject: subject, Payload: payload, TimeoutMs: timeoutMs, RequestID: reqID}
	case ClientPing:
		msg = Ping{}
	default:
		return nil, ErrUnknownTag
	}

	if r.remaining() != 0 {
		return nil, ErrTrailingBytes
	}
	return msg, nil
}
