// Package protocol defines the JSON event envelope exchanged over a
// session: one object per frame, an event name plus an event-specific
// payload.
package protocol

import (
	"encoding/json"
	"errors"
)

var ErrInvalidEvent = errors.New("invalid event format")

// Inbound event names (client to server).
const (
	EventGetUsers          = "get_users"
	EventPrivateMessage    = "private message"
	EventMessages          = "messages"
	EventOffer             = "webrtc_offer"
	EventAnswer            = "webrtc_answer"
	EventICECandidate      = "webrtc_ice_candidate"
	EventPickCall          = "webrtc_pick_call"
	EventHangUp            = "webrtc_hang_up"
	EventUserDisconnecting = "user_disconnecting"
)

// Outbound event names (server to client).
const (
	EventUser                  = "user"
	EventUsers                 = "users"
	EventUserConnected         = "user_connected"
	EventOtherUserDisconnected = "other_user_disconnected"
	EventUserDisconnected      = "user_disconnected"
	EventError                 = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidEvent
	}
	if env.Event == "" {
		return nil, ErrInvalidEvent
	}
	return &env, nil
}

func Encode(event string, data interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Handshake is the credential bundle a client sends as its first frame.
// All fields are optional; the admission gate decides which path applies.
type Handshake struct {
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	IsAuthenticated bool   `json:"isAuthenticated,omitempty"`
	UserID          int64  `json:"userId,omitempty"`
	Token           string `json:"token,omitempty"`
}

type PrivateMessage struct {
	Content     string `json:"content"`
	OtherUserID int64  `json:"otherUserId"`
	To          string `json:"to"`
}

type MessagesRequest struct {
	// ID is accepted on the wire but the authenticated session's own user
	// id is what the history query uses.
	ID          int64 `json:"id,omitempty"`
	OtherUserID int64 `json:"otherUserId"`
}

// Signal carries the kind-specific fields of the five call-signaling
// events. SDP and candidate payloads are relayed verbatim, never parsed.
type Signal struct {
	To        string          `json:"to"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Pick      *bool           `json:"pick,omitempty"`
}

// UserRecord is a roster entry. Token is only populated on the `user`
// event a session receives about itself.
type UserRecord struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	IsOnline     bool   `json:"isOnline"`
	ConnectionID string `json:"connectionId,omitempty"`
	Token        string `json:"token,omitempty"`
}

type MessageRecord struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userId"`
	OtherUserID int64  `json:"otherUserId"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

type DeliveredMessage struct {
	UserID    int64  `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// MessageDelivery is the transient notification sent to the recipient's
// connection. From carries the sender's connection handle so the
// recipient can address a reply.
type MessageDelivery struct {
	FullMessage DeliveredMessage `json:"fullMessage"`
	From        string           `json:"from"`
}

// SignalDelivery mirrors the inbound signal fields, annotated with the
// sender's persistent connection handle.
type SignalDelivery struct {
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Pick      *bool           `json:"pick,omitempty"`
	From      string          `json:"from"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
