package handlers

import (
	"chatrelay/server/internal/middleware"
	"chatrelay/server/internal/services"

	"github.com/gofiber/fiber/v2"
)

type AccessChatRequest struct {
	UserID string `json:"userId"`
}

type CreateGroupRequest struct {
	Name  string `json:"name"`
	Users IDList `json:"users"`
}

type RenameGroupRequest struct {
	ChatID   string `json:"chatId"`
	ChatName string `json:"chatName"`
}

type GroupMemberRequest struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type ChatHandler struct {
	chats *services.ChatService
}

func NewChatHandler(chats *services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// AccessChat returns the direct chat with userId, creating it if needed.
func (h *ChatHandler) AccessChat(c *fiber.Ctx) error {
	var req AccessChatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	chat, err := h.chats.FindOrCreateDirectChat(c.UserContext(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, chat)
}

// FindChat looks up the direct chat with :userId without creating one.
func (h *ChatHandler) FindChat(c *fiber.Ctx) error {
	chat, err := h.chats.FindDirectChat(c.UserContext(), middleware.GetUserID(c), c.Params("userId"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, chat)
}

func (h *ChatHandler) FetchChats(c *fiber.Ctx) error {
	chats, err := h.chats.ListChats(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, chats)
}

func (h *ChatHandler) CreateGroup(c *fiber.Ctx) error {
	var req CreateGroupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	chat, err := h.chats.CreateGroupChat(c.UserContext(), middleware.GetUserID(c), req.Name, req.Users)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, chat)
}

func (h *ChatHandler) RenameGroup(c *fiber.Ctx) error {
	var req RenameGroupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	chat, err := h.chats.RenameGroupChat(c.UserContext(), req.ChatID, req.ChatName)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, chat)
}

func (h *ChatHandler) AddToGroup(c *fiber.Ctx) error {
	var req GroupMemberRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	chat, err := h.chats.AddMember(c.UserContext(), req.ChatID, req.UserID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, chat)
}

func (h *ChatHandler) RemoveFromGroup(c *fiber.Ctx) error {
	var req GroupMemberRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	chat, err := h.chats.RemoveMember(c.UserContext(), req.ChatID, req.UserID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, chat)
}
