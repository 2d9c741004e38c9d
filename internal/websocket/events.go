package websocket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a frame on the socket.
type EventType string

const (
	// client -> server
	EventSetup       EventType = "setup"
	EventJoinChat    EventType = "join chat"
	EventSendMessage EventType = "send message"

	// server -> client
	EventConnected   EventType = "connected"
	EventNewMessage  EventType = "newMessage"
	EventMessageSent EventType = "message sent"
	EventError       EventType = "error"
)

// Error codes carried by EventError frames.
const (
	CodeInvalidPayload = "invalid_payload"
	CodeUnknownEvent   = "unknown_event"
	CodeNotIdentified  = "not_identified"
	CodeForbidden      = "forbidden"
	CodeNotInRoom      = "not_in_room"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal"
)

// WSMessage is every frame the server writes.
type WSMessage struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// IncomingMessage is every frame a client writes. Payload is decoded per event.
type IncomingMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// SentPayload acknowledges a relayed message to its sender.
type SentPayload struct {
	ChatID     string `json:"chatId"`
	Recipients int    `json:"recipients"`
}

type ErrorPayload struct {
	Event   EventType `json:"event,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// envelope is the part of a "send message" payload the relay looks at; the
// rest is forwarded untouched.
type envelope struct {
	ChatID string `json:"chatId"`
}

// canonicalID lower-cases and hyphenates anything uuid.Parse accepts; other
// strings are returned unchanged.
func canonicalID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}

// decodeID accepts either a bare JSON string or an object carrying the id
// under one of keys.
func decodeID(raw json.RawMessage, keys ...string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
