package routes

import (
	"chatrelay/server/internal/handlers"
	"chatrelay/server/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Users     *handlers.UserHandler
	Chats     *handlers.ChatHandler
	Messages  *handlers.MessageHandler
	WebSocket *handlers.WebSocketHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Handlers, verifier middleware.TokenVerifier) {
	auth := middleware.AuthMiddleware(verifier)

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    fiber.Map{"status": "ok"},
		})
	})

	// User routes: signup and login are public
	users := api.Group("/users")
	users.Post("/signup", middleware.StrictRateLimiter(), h.Users.Signup)
	users.Post("/login", middleware.StrictRateLimiter(), h.Users.Login)
	users.Get("/check-access", auth, h.Users.CheckAccess)
	users.Get("/", auth, middleware.RelaxedRateLimiter(), h.Users.Search)

	chats := api.Group("/chat", auth)
	chats.Post("/", middleware.ModerateRateLimiter(), h.Chats.AccessChat)
	chats.Get("/", middleware.RelaxedRateLimiter(), h.Chats.FetchChats)
	chats.Get("/findChat/:userId", middleware.RelaxedRateLimiter(), h.Chats.FindChat)
	chats.Post("/group", middleware.ModerateRateLimiter(), h.Chats.CreateGroup)
	chats.Put("/rename", middleware.ModerateRateLimiter(), h.Chats.RenameGroup)
	chats.Put("/groupadd", middleware.ModerateRateLimiter(), h.Chats.AddToGroup)
	chats.Put("/groupremove", middleware.ModerateRateLimiter(), h.Chats.RemoveFromGroup)

	messages := api.Group("/message", auth)
	messages.Post("/", middleware.ModerateRateLimiter(), h.Messages.SendMessage)
	messages.Get("/:chatId", middleware.RelaxedRateLimiter(), h.Messages.AllMessages)

	api.Get("/ws/stats", auth, h.WebSocket.Stats)

	app.Get("/ws", auth, h.WebSocket.Upgrade, websocket.New(h.WebSocket.Serve))
}
