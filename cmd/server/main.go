package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/subleasehub/sublease-backend/internal/config"
	"github.com/subleasehub/sublease-backend/internal/database"
	"github.com/subleasehub/sublease-backend/internal/routes"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogger(cfg)

	// 2. Connect to Database and cache
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	ctx := context.Background()
	if err := database.ConnectDB(ctx, cfg.DBUrl); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	cache, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if cache == nil {
		log.Println("REDIS_URL not set, user lookups are uncached")
	}

	// 3. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSAllowOrigins}))
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	engine, err := routes.RegisterRoutes(app, cfg, database.DB, cache)
	if err != nil {
		log.Fatalf("Failed to register routes: %v", err)
	}

	// 4. Start Server
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 5. Shut down on SIGINT/SIGTERM
	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"chat-engine": func(ctx context.Context) error {
			return engine.Shutdown(ctx)
		},
		"http-server": func(ctx context.Context) error {
			if err := app.ShutdownWithContext(ctx); err != nil {
				return err
			}
			database.CloseDB()
			if cache != nil {
				return cache.Close()
			}
			return nil
		},
	})

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
