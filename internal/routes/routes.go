package routes

import (
	"log/slog"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/subleasehub/sublease-backend/internal/config"
	"github.com/subleasehub/sublease-backend/internal/handlers"
	"github.com/subleasehub/sublease-backend/internal/middleware"
	"github.com/subleasehub/sublease-backend/internal/repository"
	"github.com/subleasehub/sublease-backend/internal/services"
	chatws "github.com/subleasehub/sublease-backend/internal/websocket"
)

// RegisterRoutes wires the messaging API and the realtime gateway. cache may be nil.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, cache *redis.Client) (*chatws.Engine, error) {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	userDirectory := services.NewUserDirectory(userRepo, cache, cfg.UserCacheTTL)
	tokenVerifier := services.NewTokenVerifier(cfg.JWTSecret, userDirectory)
	chatService := services.NewChatService(db, conversationRepo, messageRepo, userDirectory)

	engine, err := chatws.NewEngine(chatService, tokenVerifier, chatws.Options{
		TypingTTL:     cfg.TypingTTL,
		SendBuffer:    cfg.WSSendBuffer,
		RatePerSecond: cfg.MessageRatePerSecond,
		RateBurst:     cfg.MessageRateBurst,
		Logger:        slog.Default().With(slog.String("component", "chat_engine")),
	})
	if err != nil {
		return nil, err
	}

	chatHandler := handlers.NewChatHandler(chatService, engine)
	gatewayHandler := handlers.NewGatewayHandler(engine, cfg.WSAuthTimeout)

	api := app.Group("/api")
	authProtected := api.Group("/v1", middleware.AuthRequired(tokenVerifier))

	messages := authProtected.Group("/messages")
	messages.Post("", chatHandler.SendMessage)
	messages.Get("/conversations", chatHandler.ListConversations)
	messages.Get("/conversations/:userId", chatHandler.GetConversation)
	messages.Post("/conversations/:userId", chatHandler.CreateConversation)
	messages.Get("/conversations/:conversationId/messages", chatHandler.GetMessages)
	messages.Post("/read", chatHandler.MarkRead)
	messages.Get("/unread/:userId/count", chatHandler.UnreadCount)
	messages.Get("/online", chatHandler.OnlineUsers)
	messages.Get("/online/:userId", chatHandler.UserOnlineStatus)
	messages.Get("/:id", chatHandler.GetMessage)
	messages.Put("/:id", chatHandler.UpdateMessage)
	messages.Delete("/:id", chatHandler.DeleteMessage)

	app.Use("/ws", gatewayHandler.WebSocketAuth)
	app.Get("/ws", websocket.New(gatewayHandler.HandleWebSocket))

	return engine, nil
}
