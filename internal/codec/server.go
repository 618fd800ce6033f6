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

// ServerMessage is the closed sum of frames the gateway may send.
type ServerMessage interface {
	serverTag() serverTag
}

type serverTag byte

const (
	ServerAuthOk serverTag = iota
	ServerAuthError
	ServerSubscribeOk
	ServerSubscribeError
	ServerMessageDelivery
	ServerResponse
	ServerRequestError
	ServerError
	ServerPong
)

type AuthOk struct {
	SessionID string
}

type AuthError struct {
	Reason string
}

type SubscribeOk struct {
	ID uint64
}

type SubscribeError struct {
	ID     uint64
	Reason string
}

// Message delivers a bus message matching an active subscription.
type Message struct {
	SubscriptionID uint64
	Subject        string
	Payload        []byte
}

type Response struct {
	RequestID uint64
	Payload   []byte
}

type RequestError struct {
	RequestID uint64
	Reason    string
}

type Error struct {
	Code    uint16
	Message string
}

type Pong struct{}

func (AuthOk) serverTag() serverTag         { return ServerAuthOk }
func (AuthError) serverTag() serverTag      { return ServerAuthError }
func (SubscribeOk) serverTag() serverTag    { return ServerSubscribeOk }
func (SubscribeError) serverTag() serverTag { return ServerSubscribeError }
func (Message) serverTag() serverTag        { return ServerMessageDelivery }
func (Response) serverTag() serverTag       { return ServerResponse }
func (RequestError) serverTag() serverTag   { return ServerRequestError }
func (Error) serverTag() serverTag          { return ServerError }
func (Pong) serverTag() serverTag           { return ServerPong }

// EncodeServer serializes a ServerMessage into a complete versioned frame.
func EncodeServer(m ServerMessage) []byte {
	w := &writer{}
	w.byte(ProtocolVersion)
	w.byte(byte(m.serverTag()))

	switch v := m.(type) {
	case AuthOk:
		w.string(v.SessionID)
	case AuthError:
		w.string(v.Reason)
	case SubscribeOk:
		w.uint64(v.ID)
	case SubscribeError:
		w.uint64(v.ID)
		w.string(v.Reason)
	case Message:
		w.uint64(v.SubscriptionID)
		w.string(v.Subject)
		w.bytes(v.Payload)
	case Response:
		w.uint64(v.RequestID)
		w.bytes(v.Payload)
	case RequestError:
		w.uint64(v.RequestID)
		w.string(v.Reason)
	case Error:
		w.uint16(v.Code)
		w.string(v.Message)
	case Pong:
		// no fields
	}
	return w.buf.Bytes()
}

// DecodeServer parses a complete frame into a ServerMessage. The gateway
// itself never decodes server frames; the codec and session tests use it
// to check round-trips and the frames a session sends.
func DecodeServer(frame []byte) (ServerMessage, error) {
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

	var msg ServerMessage
	switch serverTag(tag) {
	case ServerAuthOk:
		id, err := r.string()
		if err != nil {
			return nil, err
		}
		msg = AuthOk{SessionID: id}
	case ServerAuthError:
		reason, err := r.string()
		if err != nil {
			return nil, err
		}
		msg = AuthError{Reason: reason}
	case ServerSubscribeOk:
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		msg = SubscribeOk{ID: id}
	case ServerSubscribeError:
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		reason, err := r.string()
		if err != nil {
			return nil, err
		}
		msg = SubscribeError{ID: id, Reason: reason}
	case ServerMessageDelivery:
		subID, err := r.uint64()
		if err != nil {
			return nil, err
		}
		subject, err := r.string()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		msg = Message{SubscriptionID: subID, Subject: subject, Payload: payload}
	case ServerResponse:
		reqID, err := r.uint64()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		msg = Response{RequestID: reqID, Payload: payload}
	case ServerRequestError:
		reqID, err := r.uint64()
		if err != nil {
			return nil, err
		}
		reason, err := r.string()
		if err != nil {
			return nil, err
		}
		msg = RequestError{RequestID: reqID, Reason: reason}
	case ServerError:
		code, err := r.uint16()
		if err != nil {
			return nil, err
		}
		message, err := r.string()
		if err != nil {
			return nil, err
		}
		msg = Error{Code: code, Message: message}
	case ServerPong:
		msg = Pong{}
	default:
		return nil, ErrUnknownTag
	}

	if r.remaining() != 0 {
		return nil, ErrTrailingBytes
	}
	return msg, nil
}
