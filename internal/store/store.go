//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"

	"chatrelay/server/internal/models"
)

var (
	ErrChatNotFound    = errors.New("chat does not exist")
	ErrUserNotFound    = errors.New("user does not exist")
	ErrEmailTaken      = errors.New("email already registered")
	ErrDuplicateMember = errors.New("user is already a member of the chat")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	SearchUsers(ctx context.Context, term, excludeID string, limit int) ([]models.User, error)
}

type ChatStore interface {
	// FindDirectChat returns the most recently updated non-group chat whose
	// members are exactly userA and userB.
	FindDirectChat(ctx context.Context, userA, userB string) (*models.Chat, error)
	// CreateDirectChat is idempotent per unordered pair: when the pair already
	// has a direct chat that chat is returned instead.
	CreateDirectChat(ctx context.Context, userA, userB, name string) (*models.Chat, error)
	CreateGroupChat(ctx context.Context, name, adminID string, memberIDs []string) (*models.Chat, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	RenameChat(ctx context.Context, id, name string) (*models.Chat, error)
	AddMember(ctx context.Context, chatID, userID string) error
	RemoveMember(ctx context.Context, chatID, userID string) error
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	ListMembers(ctx context.Context, chatID string) ([]models.UserResponse, error)
	ListUserChats(ctx context.Context, userID string) ([]models.Chat, error)
}

type MessageStore interface {
	// AppendMessage inserts the message and bumps the chat's updated_at atomically.
	AppendMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error)
	// LatestMessage returns nil without error for a chat with no messages.
	LatestMessage(ctx context.Context, chatID string) (*models.MessageWithSender, error)
	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.MessageWithSender, error)
}

type Store interface {
	UserStore
	ChatStore
	MessageStore
}
