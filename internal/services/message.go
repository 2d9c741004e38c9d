package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/models"
	"chatrelay/server/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Page selects a window of a chat's history, newest first.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type MessageService struct {
	base
}

func NewMessageService(st store.Store, log logrus.FieldLogger, timeout time.Duration) *MessageService {
	return &MessageService{base: newBase(st, log.WithField("service", "message"), timeout)}
}

// AppendMessage stores content sent by senderID to chatID. The sender has to
// be a member of the chat.
func (s *MessageService) AppendMessage(ctx context.Context, chatID, senderID, content string) (*models.MessageWithSender, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperror.InvalidInput("Message content is required")
	}
	chatID, ok := canonicalID(chatID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid chat id")
	}
	senderID = sameID(senderID)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	member, err := s.store.IsMember(ctx, chatID, senderID)
	if err != nil {
		return nil, s.fail("check membership", err)
	}
	if !member {
		return nil, apperror.InvalidInput("Chat does not exist or sender is not a member")
	}

	msg, err := s.store.AppendMessage(ctx, chatID, senderID, content)
	if isNotFound(err) {
		return nil, apperror.InvalidInput("Chat does not exist or sender is not a member")
	}
	if err != nil {
		return nil, s.fail("append message", err)
	}

	sender, err := s.store.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, s.fail("load sender", err)
	}

	s.log.WithFields(logrus.Fields{"chat_id": chatID, "message_id": msg.ID, "sender_id": senderID}).
		Debug("message stored")

	return &models.MessageWithSender{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		Sender:    sender.ToResponse(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}, nil
}

// ListMessages returns the page of chatID's history visible to callerID.
func (s *MessageService) ListMessages(ctx context.Context, chatID, callerID string, page Page) ([]models.MessageWithSender, error) {
	chatID, ok := canonicalID(chatID)
	if !ok {
		return nil, apperror.InvalidInput("Invalid chat id")
	}
	callerID = sameID(callerID)
	page = page.Normalize()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	member, err := s.store.IsMember(ctx, chatID, callerID)
	if err != nil {
		return nil, s.fail("check membership", err)
	}
	if !member {
		return nil, apperror.NotFound("Chat not found")
	}

	messages, err := s.store.ListMessages(ctx, chatID, page.Limit, page.Offset)
	if errors.Is(err, store.ErrChatNotFound) {
		return nil, apperror.NotFound("Chat not found")
	}
	if err != nil {
		return nil, s.fail("list messages", err)
	}
	return messages, nil
}
