package handlers

import (
	"context"

	"chatrelay/server/internal/middleware"
	ws "chatrelay/server/internal/websocket"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketHandler struct {
	hub *ws.Hub
	log logrus.FieldLogger
}

func NewWebSocketHandler(hub *ws.Hub, log logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, log: log}
}

// Upgrade checks if the request should be upgraded to WebSocket
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"success": false,
		"error":   "WebSocket upgrade required",
	})
}

// Serve runs one connection until it closes.
func (h *WebSocketHandler) Serve(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.UserIDKey).(string)

	client := h.hub.NewClient(conn, userID)
	if err := h.hub.Register(client); err != nil {
		h.log.WithError(err).Warn("rejecting websocket connection")
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump(context.Background())
}

// Stats returns connection and room counts of this process.
func (h *WebSocketHandler) Stats(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, h.hub.Stats())
}
