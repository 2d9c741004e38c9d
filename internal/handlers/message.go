package handlers

import (
	"chatrelay/server/internal/middleware"
	"chatrelay/server/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SendMessageRequest represents send message request body
type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type MessageHandler struct {
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg, err := h.messages.AppendMessage(c.UserContext(), req.ChatID, middleware.GetUserID(c), req.Content)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, msg)
}

// AllMessages returns a chat's history newest first, paged by ?limit and ?offset.
func (h *MessageHandler) AllMessages(c *fiber.Ctx) error {
	page := services.Page{
		Limit:  c.QueryInt("limit", services.DefaultPageLimit),
		Offset: c.QueryInt("offset", 0),
	}.Normalize()

	messages, err := h.messages.ListMessages(c.UserContext(), c.Params("chatId"), middleware.GetUserID(c), page)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
		"pagination": fiber.Map{
			"limit":  page.Limit,
			"offset": page.Offset,
		},
	})
}
