package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 << 10
)

// Conn is the part of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one socket connection. UserID comes from the verified token; a
// user may hold several connections.
type Client struct {
	ID     string
	UserID string

	hub        *Hub
	conn       Conn
	send       chan []byte
	registered chan struct{}
	limiter    *rate.Limiter
	log        logrus.FieldLogger

	identified atomic.Bool
	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	mu     sync.Mutex
	closed bool
}

// ReadPump dispatches incoming frames until the connection fails, then
// unregisters the client.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		c.handle(ctx, message)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, raw []byte) {
	var in IncomingMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		c.sendError("", CodeInvalidPayload, "Malformed frame")
		return
	}

	switch in.Type {
	case EventSetup:
		c.handleSetup(in.Payload)
	case EventJoinChat:
		c.handleJoin(ctx, in.Payload)
	case EventSendMessage:
		c.handleSendMessage(in.Payload)
	default:
		c.sendError(in.Type, CodeUnknownEvent, "Unknown event")
	}
}

func (c *Client) handleSetup(payload json.RawMessage) {
	userID := decodeID(payload, "id", "_id", "userId")
	if userID == "" {
		c.sendError(EventSetup, CodeInvalidPayload, "User id is required")
		return
	}
	if canonicalID(userID) != c.UserID {
		c.sendError(EventSetup, CodeForbidden, "User id does not match the token")
		return
	}

	if err := c.hub.Setup(c); err != nil {
		c.sendError(EventSetup, CodeInternal, "Connection is closing")
		return
	}
	c.emit(EventConnected, ConnectedPayload{UserID: c.UserID})
}

func (c *Client) handleJoin(ctx context.Context, payload json.RawMessage) {
	chatID := decodeID(payload, "chatId", "id", "_id")

	err := c.hub.Join(ctx, c, chatID)
	switch {
	case err == nil:
		c.log.WithField("chat_id", chatID).Debug("joined chat room")
	case errors.Is(err, ErrNotIdentified):
		c.sendError(EventJoinChat, CodeNotIdentified, "Send setup before joining a chat")
	case errors.Is(err, ErrInvalidRoom):
		c.sendError(EventJoinChat, CodeInvalidPayload, "Invalid chat id")
	case errors.Is(err, ErrNotMember):
		c.sendError(EventJoinChat, CodeForbidden, "Not a member of this chat")
	case errors.Is(err, ErrHubStopped):
		c.sendError(EventJoinChat, CodeInternal, "Connection is closing")
	default:
		c.log.WithError(err).WithField("chat_id", chatID).Error("membership check failed")
		c.sendError(EventJoinChat, CodeInternal, "Could not join chat")
	}
}

// handleSendMessage relays the payload as-is to the rest of the room.
func (c *Client) handleSendMessage(payload json.RawMessage) {
	if !c.limiter.Allow() {
		c.sendError(EventSendMessage, CodeRateLimited, "Too many messages")
		return
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.ChatID == "" {
		c.sendError(EventSendMessage, CodeInvalidPayload, "chatId is required")
		return
	}
	room := canonicalID(strings.TrimSpace(env.ChatID))
	if !c.hub.InRoom(c, room) {
		c.sendError(EventSendMessage, CodeNotInRoom, "Join the chat before sending")
		return
	}

	recipients := c.hub.Broadcast(room, WSMessage{
		Type:      EventNewMessage,
		Payload:   payload,
		Timestamp: time.Now(),
	}, c)

	c.emit(EventMessageSent, SentPayload{ChatID: room, Recipients: recipients})
}

func (c *Client) emit(event EventType, payload any) {
	data, err := json.Marshal(WSMessage{Type: event, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		c.log.WithError(err).Error("failed to marshal frame")
		return
	}
	if !c.trySend(data) {
		c.log.Warn("send queue full, dropping client")
		go c.hub.Unregister(c)
	}
}

func (c *Client) sendError(event EventType, code, message string) {
	c.emit(EventError, ErrorPayload{Event: event, Code: code, Message: message})
}

// trySend never blocks and reports false once the queue is full or closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
