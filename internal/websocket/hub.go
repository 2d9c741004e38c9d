package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	ErrNotIdentified = errors.New("connection has not completed setup")
	ErrInvalidRoom   = errors.New("invalid chat id")
	ErrNotMember     = errors.New("user is not a member of the chat")
	ErrHubStopped    = errors.New("hub stopped")
)

// Options tune the hub and every client it creates.
type Options struct {
	SendBuffer   int
	MessageRate  float64
	MessageBurst int
	CheckTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MessageRate <= 0 {
		o.MessageRate = 5
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 20
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = 5 * time.Second
	}
	return o
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections int `json:"connections"`
	Identified  int `json:"identified"`
	Rooms       int `json:"rooms"`
}

// Hub keeps the connections of this process and the rooms they joined.
// Registration goes through Run; rooms are guarded by mu.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	checker MembershipChecker
	opts    Options
	log     logrus.FieldLogger

	mu sync.RWMutex
}

func NewHub(checker MembershipChecker, log logrus.FieldLogger, opts Options) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		checker:    checker,
		opts:       opts.withDefaults(),
		log:        log.WithField("component", "hub"),
	}
}

// Run serves register and unregister requests until ctx ends, then closes
// every remaining client.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("hub started")
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// NewClient creates a client for an authenticated user. It still has to be
// registered.
func (h *Hub) NewClient(conn Conn, userID string) *Client {
	id := uuid.NewString()
	userID = canonicalID(userID)
	return &Client{
		ID:         id,
		UserID:     userID,
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.opts.SendBuffer),
		registered: make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Limit(h.opts.MessageRate), h.opts.MessageBurst),
		log:        h.log.WithFields(logrus.Fields{"conn_id": id, "user_id": userID}),
	}
}

// Register blocks until the run loop has added c.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
	case <-h.done:
		return ErrHubStopped
	}

	select {
	case <-c.registered:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	close(c.registered)
	c.log.Info("client connected")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for room := range c.rooms {
		h.leave(c, room)
	}
	h.mu.Unlock()

	c.close()
	c.log.Info("client disconnected")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	close(h.done)
	h.log.WithField("closed", len(clients)).Info("hub stopped")
}

// Setup marks the connection as identified and joins it to the room named by
// its own user id.
func (h *Hub) Setup(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.clients[c.ID]; !registered {
		return ErrHubStopped
	}
	c.identified.Store(true)
	h.join(c, c.UserID)
	return nil
}

// Join adds the connection to chatID's room after checking the user still
// belongs to the chat. Rooms are keyed by the canonical form of the id.
func (h *Hub) Join(ctx context.Context, c *Client, chatID string) error {
	if !c.identified.Load() {
		return ErrNotIdentified
	}
	parsed, err := uuid.Parse(chatID)
	if err != nil {
		return ErrInvalidRoom
	}
	chatID = parsed.String()

	ctx, cancel := context.WithTimeout(ctx, h.opts.CheckTimeout)
	defer cancel()

	ok, err := h.checker.IsMember(ctx, chatID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.clients[c.ID]; !registered {
		return ErrHubStopped
	}
	h.join(c, chatID)
	return nil
}

// join and leave expect h.mu to be held for writing.
func (h *Hub) join(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID] = c

	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.rooms[room][c.ID]
	return ok
}

// Broadcast queues message for every connection in room except the sender and
// returns how many accepted it. Connections whose queue is full are dropped.
func (h *Hub) Broadcast(room string, message WSMessage, except *Client) int {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal message")
		return 0
	}

	var delivered int
	var slow []*Client

	h.mu.RLock()
	for _, c := range h.rooms[room] {
		if c == except {
			continue
		}
		if c.trySend(data) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		c.log.Warn("send queue full, dropping client")
		h.Unregister(c)
	}
	return delivered
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{Connections: len(h.clients), Rooms: len(h.rooms)}
	for _, c := range h.clients {
		if c.identified.Load() {
			stats.Identified++
		}
	}
	return stats
}
