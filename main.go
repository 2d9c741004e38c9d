package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/server/internal/config"
	"chatrelay/server/internal/database"
	"chatrelay/server/internal/handlers"
	"chatrelay/server/internal/logger"
	"chatrelay/server/internal/routes"
	"chatrelay/server/internal/services"
	"chatrelay/server/internal/store"
	"chatrelay/server/internal/utils"
	ws "chatrelay/server/internal/websocket"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	st := store.NewPostgres(pool)
	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	userService := services.NewUserService(st, tokens, log, cfg.QueryTimeout)
	chatService := services.NewChatService(st, log, cfg.QueryTimeout)
	messageService := services.NewMessageService(st, log, cfg.QueryTimeout)

	hub := ws.NewHub(st, log, ws.Options{
		SendBuffer:   cfg.WSSendBuffer,
		MessageRate:  cfg.WSMessageRate,
		MessageBurst: cfg.WSMessageBurst,
		CheckTimeout: cfg.QueryTimeout,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	app := routes.NewApp(log, cfg.AllowedOrigins())
	routes.SetupRoutes(app, routes.Handlers{
		Users:     handlers.NewUserHandler(userService),
		Chats:     handlers.NewChatHandler(chatService),
		Messages:  handlers.NewMessageHandler(messageService),
		WebSocket: handlers.NewWebSocketHandler(hub, log),
	}, tokens)

	go func() {
		log.WithField("addr", cfg.Address()).Info("server starting")
		if err := app.Listen(cfg.Address()); err != nil {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// closing the hub first ends every socket so fiber is not left waiting on them
	stopHub()
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
