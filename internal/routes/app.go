package routes

import (
	"chatrelay/server/internal/handlers"
	"chatrelay/server/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
)

// NewApp creates the fiber app with the middleware every route shares.
func NewApp(log logrus.FieldLogger, allowedOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Chat Relay API",
		ErrorHandler: handlers.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	return app
}
