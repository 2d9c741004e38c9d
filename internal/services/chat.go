package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/models"
	"chatrelay/server/internal/store"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// MinGroupMembers is the number of members, besides the admin, a new group needs.
const MinGroupMembers = 2

type ChatService struct {
	base
	direct singleflight.Group
}

func NewChatService(st store.Store, log logrus.FieldLogger, timeout time.Duration) *ChatService {
	return &ChatService{base: newBase(st, log.WithField("service", "chat"), timeout)}
}

// FindOrCreateDirectChat returns the direct chat between the two users,
// creating it on first contact. Concurrent calls for the same pair share one
// lookup and the store's unique pair key covers other processes.
func (s *ChatService) FindOrCreateDirectChat(ctx context.Context, currentUserID, otherUserID string) (*models.ChatWithMembers, error) {
	if strings.TrimSpace(otherUserID) == "" {
		return nil, apperror.InvalidInput("userId is required")
	}
	otherUserID, ok := canonicalID(otherUserID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid user id")
	}
	currentUserID = sameID(currentUserID)
	if otherUserID == currentUserID {
		return nil, apperror.InvalidInput("Cannot start a chat with yourself")
	}

	// callers sharing the flight must not inherit the first caller's cancellation
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.direct.Do(models.DirectKey(currentUserID, otherUserID), func() (any, error) {
		return s.resolveDirect(shared, currentUserID, otherUserID)
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, v.(*models.Chat))
}

func (s *ChatService) resolveDirect(ctx context.Context, currentUserID, otherUserID string) (*models.Chat, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chat, err := s.store.FindDirectChat(ctx, currentUserID, otherUserID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrChatNotFound) {
		return nil, s.fail("find direct chat", err)
	}

	users, err := s.store.GetUsersByIDs(ctx, []string{currentUserID, otherUserID})
	if err != nil {
		return nil, s.fail("load chat users", err)
	}
	names := lo.SliceToMap(users, func(u models.User) (string, string) { return u.ID, u.Name })
	if _, ok := names[otherUserID]; !ok {
		return nil, apperror.NotFound("User not found")
	}
	if _, ok := names[currentUserID]; !ok {
		return nil, apperror.Unauthorized("Unauthorized")
	}

	name := fmt.Sprintf("Chat between %s and %s", names[currentUserID], names[otherUserID])
	chat, err = s.store.CreateDirectChat(ctx, currentUserID, otherUserID, name)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, s.fail("create direct chat", err)
	}

	s.log.WithFields(logrus.Fields{"chat_id": chat.ID, "user_id": currentUserID, "other_user_id": otherUserID}).
		Info("direct chat resolved")
	return chat, nil
}

// FindDirectChat is the read-only lookup: NotFound when the pair never talked.
func (s *ChatService) FindDirectChat(ctx context.Context, currentUserID, otherUserID string) (*models.ChatWithMembers, error) {
	otherUserID, ok := canonicalID(otherUserID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid user id")
	}
	currentUserID = sameID(currentUserID)

	tctx, cancel := s.withTimeout(ctx)
	chat, err := s.store.FindDirectChat(tctx, currentUserID, otherUserID)
	cancel()
	if errors.Is(err, store.ErrChatNotFound) {
		return nil, apperror.NotFound("Chat not found")
	}
	if err != nil {
		return nil, s.fail("find direct chat", err)
	}
	return s.detail(ctx, chat)
}

// ListChats returns every chat of the user, most recently active first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatWithMembers, error) {
	tctx, cancel := s.withTimeout(ctx)
	chats, err := s.store.ListUserChats(tctx, userID)
	cancel()
	if err != nil {
		return nil, s.fail("list chats", err)
	}

	result := make([]models.ChatWithMembers, 0, len(chats))
	for i := range chats {
		detail, err := s.detail(ctx, &chats[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *detail)
	}
	return result, nil
}

func (s *ChatService) CreateGroupChat(ctx context.Context, adminID, name string, memberIDs []string) (*models.ChatWithMembers, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.InvalidInput("Group name is required")
	}

	members := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		canonical, ok := canonicalID(id)
		if !ok {
			return nil, apperror.InvalidInput("Invalid user id: " + id)
		}
		members = append(members, canonical)
	}

	adminID = sameID(adminID)
	members = lo.Without(lo.Uniq(members), adminID)
	if len(members) < MinGroupMembers {
		return nil, apperror.InvalidInput("More than 2 users are required to form a group chat")
	}

	tctx, cancel := s.withTimeout(ctx)
	chat, err := s.store.CreateGroupChat(tctx, name, adminID, members)
	cancel()
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, apperror.NotFound("One or more users not found")
	}
	if errors.Is(err, store.ErrDuplicateMember) {
		return nil, apperror.InvalidInput("Group members must be distinct")
	}
	if err != nil {
		return nil, s.fail("create group chat", err)
	}

	s.log.WithFields(logrus.Fields{"chat_id": chat.ID, "admin_id": adminID, "members": len(members) + 1}).
		Info("group chat created")
	return s.detail(ctx, chat)
}

func (s *ChatService) RenameGroupChat(ctx context.Context, chatID, name string) (*models.ChatWithMembers, error) {
	name = strings.TrimSpace(name)
	chatID, ok := canonicalID(chatID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid chat id")
	}
	if name == "" {
		return nil, apperror.InvalidInput("Chat name is required")
	}

	tctx, cancel := s.withTimeout(ctx)
	chat, err := s.store.RenameChat(tctx, chatID, name)
	cancel()
	if errors.Is(err, store.ErrChatNotFound) {
		return nil, apperror.NotFound("Chat not found")
	}
	if err != nil {
		return nil, s.fail("rename chat", err)
	}
	return s.detail(ctx, chat)
}

// AddMember is idempotent: adding an existing member leaves the chat unchanged.
func (s *ChatService) AddMember(ctx context.Context, chatID, userID string) (*models.ChatWithMembers, error) {
	return s.changeMembers(ctx, chatID, userID, "add member", s.store.AddMember)
}

// RemoveMember is idempotent: removing an absent user succeeds without change.
func (s *ChatService) RemoveMember(ctx context.Context, chatID, userID string) (*models.ChatWithMembers, error) {
	return s.changeMembers(ctx, chatID, userID, "remove member", s.store.RemoveMember)
}

func (s *ChatService) changeMembers(
	ctx context.Context,
	chatID, userID, op string,
	apply func(ctx context.Context, chatID, userID string) error,
) (*models.ChatWithMembers, error) {
	chatID, ok := canonicalID(chatID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid chat id")
	}
	userID, ok = canonicalID(userID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid user id")
	}

	tctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chat, err := s.store.GetChat(tctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		return nil, apperror.NotFound("Chat not found")
	}
	if err != nil {
		return nil, s.fail(op, err)
	}
	if !chat.IsGroupChat {
		return nil, apperror.InvalidInput("Members of a direct chat cannot change")
	}

	switch err := apply(tctx, chatID, userID); {
	case errors.Is(err, store.ErrChatNotFound):
		return nil, apperror.NotFound("Chat not found")
	case errors.Is(err, store.ErrUserNotFound):
		return nil, apperror.NotFound("User not found")
	case err != nil:
		return nil, s.fail(op, err)
	}

	chat, err = s.store.GetChat(tctx, chatID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("Chat not found")
		}
		return nil, s.fail(op, err)
	}
	return s.detail(ctx, chat)
}

// detail loads members, the group admin and the latest message of chat.
func (s *ChatService) detail(ctx context.Context, chat *models.Chat) (*models.ChatWithMembers, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.store.ListMembers(ctx, chat.ID)
	if err != nil {
		return nil, s.fail("list members", err)
	}

	latest, err := s.store.LatestMessage(ctx, chat.ID)
	if err != nil {
		return nil, s.fail("latest message", err)
	}

	detail := &models.ChatWithMembers{
		ID:            chat.ID,
		ChatName:      chat.ChatName,
		IsGroupChat:   chat.IsGroupChat,
		Users:         members,
		LatestMessage: latest,
		CreatedAt:     chat.CreatedAt,
		UpdatedAt:     chat.UpdatedAt,
	}

	if chat.GroupAdminID != nil {
		if admin, ok := lo.Find(members, func(u models.UserResponse) bool { return u.ID == *chat.GroupAdminID }); ok {
			detail.GroupAdmin = &admin
		} else if user, err := s.store.GetUserByID(ctx, *chat.GroupAdminID); err == nil {
			resp := user.ToResponse()
			detail.GroupAdmin = &resp
		}
	}
	return detail, nil
}
