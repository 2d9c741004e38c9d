// Package storetest provides an in-memory store.Store for service and
// handler tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chatrelay/server/internal/models"
	"chatrelay/server/internal/store"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// chatEntry keeps members in join order.
type chatEntry struct {
	chat    models.Chat
	members []string
}

// Memory keeps everything in maps behind a single mutex. Timestamps come
// from a fake clock that advances one millisecond per write.
type Memory struct {
	mu       sync.Mutex
	users    map[string]*models.User
	chats    map[string]*chatEntry
	direct   map[string]string
	messages []models.Message
	clock    time.Time
}

var _ store.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]*models.User),
		chats:  make(map[string]*chatEntry),
		direct: make(map[string]string),
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *Memory) now() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

// AddUser inserts a user directly and returns its id.
func (m *Memory) AddUser(name, email string) string {
	user := &models.User{Name: name, Email: email, Password: "x"}
	_ = m.CreateUser(context.Background(), user)
	return user.ID
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return store.ErrEmailTaken
		}
	}

	now := m.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *Memory) GetUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]models.User, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		if u, ok := m.users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (m *Memory) SearchUsers(_ context.Context, term, excludeID string, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	term = strings.ToLower(strings.TrimSpace(term))
	users := make([]models.User, 0)
	for _, u := range m.users {
		if u.ID == excludeID {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(u.Name), term) && !strings.Contains(strings.ToLower(u.Email), term) {
			continue
		}
		users = append(users, *u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (m *Memory) FindDirectChat(_ context.Context, userA, userB string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *models.Chat
	for _, entry := range m.chats {
		if entry.chat.IsGroupChat || len(entry.members) != 2 {
			continue
		}
		if !entry.has(userA) || !entry.has(userB) {
			continue
		}
		if found == nil || entry.chat.UpdatedAt.After(found.UpdatedAt) {
			cp := entry.chat
			found = &cp
		}
	}
	if found == nil {
		return nil, store.ErrChatNotFound
	}
	return found, nil
}

func (m *Memory) CreateDirectChat(_ context.Context, userA, userB, name string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.DirectKey(userA, userB)
	if id, ok := m.direct[key]; ok {
		cp := m.chats[id].chat
		return &cp, nil
	}
	if _, ok := m.users[userA]; !ok {
		return nil, store.ErrUserNotFound
	}
	if _, ok := m.users[userB]; !ok {
		return nil, store.ErrUserNotFound
	}

	now := m.now()
	entry := &chatEntry{
		chat: models.Chat{
			ID:        uuid.NewString(),
			ChatName:  name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		members: []string{userA, userB},
	}
	m.chats[entry.chat.ID] = entry
	m.direct[key] = entry.chat.ID

	cp := entry.chat
	return &cp, nil
}

func (m *Memory) CreateGroupChat(_ context.Context, name, adminID string, memberIDs []string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := lo.Uniq(append([]string{adminID}, memberIDs...))
	for _, id := range ids {
		if _, ok := m.users[id]; !ok {
			return nil, store.ErrUserNotFound
		}
	}

	now := m.now()
	admin := adminID
	entry := &chatEntry{
		chat: models.Chat{
			ID:           uuid.NewString(),
			ChatName:     name,
			IsGroupChat:  true,
			GroupAdminID: &admin,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	entry.members = ids
	m.chats[entry.chat.ID] = entry

	cp := entry.chat
	return &cp, nil
}

func (m *Memory) GetChat(_ context.Context, id string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[id]
	if !ok {
		return nil, store.ErrChatNotFound
	}
	cp := entry.chat
	return &cp, nil
}

func (m *Memory) RenameChat(_ context.Context, id, name string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[id]
	if !ok {
		return nil, store.ErrChatNotFound
	}
	entry.chat.ChatName = name
	entry.chat.UpdatedAt = m.now()

	cp := entry.chat
	return &cp, nil
}

func (m *Memory) AddMember(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[chatID]
	if !ok {
		return store.ErrChatNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return store.ErrUserNotFound
	}
	if entry.has(userID) {
		return nil
	}

	now := m.now()
	entry.members = append(entry.members, userID)
	entry.chat.UpdatedAt = now
	return nil
}

func (m *Memory) RemoveMember(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[chatID]
	if !ok {
		return store.ErrChatNotFound
	}
	if !entry.has(userID) {
		return nil
	}

	entry.members = lo.Without(entry.members, userID)
	entry.chat.UpdatedAt = m.now()
	return nil
}

func (m *Memory) IsMember(_ context.Context, chatID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[chatID]
	return ok && entry.has(userID), nil
}

func (m *Memory) ListMembers(_ context.Context, chatID string) ([]models.UserResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[chatID]
	if !ok {
		return []models.UserResponse{}, nil
	}

	members := make([]models.UserResponse, 0, len(entry.members))
	for _, id := range entry.members {
		if u, ok := m.users[id]; ok {
			members = append(members, u.ToResponse())
		}
	}
	return members, nil
}

func (m *Memory) ListUserChats(_ context.Context, userID string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chats := make([]models.Chat, 0)
	for _, entry := range m.chats {
		if entry.has(userID) {
			chats = append(chats, entry.chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID < chats[j].ID
	})
	return chats, nil
}

func (m *Memory) AppendMessage(_ context.Context, chatID, senderID, content string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.chats[chatID]
	if !ok {
		return nil, store.ErrChatNotFound
	}
	if _, ok := m.users[senderID]; !ok {
		return nil, store.ErrUserNotFound
	}

	now := m.now()
	msg := models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}
	m.messages = append(m.messages, msg)
	if now.After(entry.chat.UpdatedAt) {
		entry.chat.UpdatedAt = now
	}
	return &msg, nil
}

func (m *Memory) LatestMessage(ctx context.Context, chatID string) (*models.MessageWithSender, error) {
	messages, err := m.ListMessages(ctx, chatID, 1, 0)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

func (m *Memory) ListMessages(_ context.Context, chatID string, limit, offset int) ([]models.MessageWithSender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.MessageWithSender, 0)
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.ChatID != chatID {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if len(out) == limit {
			break
		}

		var sender models.UserResponse
		if u, ok := m.users[msg.SenderID]; ok {
			sender = u.ToResponse()
		}
		out = append(out, models.MessageWithSender{
			ID:        msg.ID,
			ChatID:    msg.ChatID,
			Sender:    sender,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	return out, nil
}

func (e *chatEntry) has(userID string) bool {
	return lo.Contains(e.members, userID)
}
