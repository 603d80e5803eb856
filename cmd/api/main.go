package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/api/handlers"
	"github.com/library-chat/backend/internal/llm"
	"github.com/library-chat/backend/internal/metrics"
	"github.com/library-chat/backend/internal/middleware/cors"
	"github.com/library-chat/backend/internal/middleware/ratelimit"
	"github.com/library-chat/backend/internal/middleware/security"
	"github.com/library-chat/backend/internal/retrieval"
	"github.com/library-chat/backend/internal/storage/sqlite"
	"github.com/library-chat/backend/internal/vector/milvus"
	"github.com/library-chat/backend/pkg/config"
	appLogger "github.com/library-chat/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting library chat API server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	vectorClient, err := milvus.NewClient(
		cfg.Vector.Endpoint,
		cfg.Vector.CollectionName,
		cfg.Vector.VectorDim,
		llmClient,
	)
	if err != nil {
		appLogger.Fatal("Failed to create vector client", zap.Error(err))
	}
	defer vectorClient.Close()

	retriever := retrieval.New(vectorClient)

	rateLimitStore, err := ratelimit.NewRedisStore(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		appLogger.Fatal("Failed to create rate limit store", zap.Error(err))
	}
	defer rateLimitStore.Close()

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedDomains: cfg.Site.AllowedFrontEndDomains,
	}))
	app.Use(cors.New(cors.Config{
		AllowedDomains: cfg.Site.AllowedFrontEndDomains,
		Logger:         appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(
		llmClient,
		retriever,
		sqliteClient,
		cfg.Site,
		cfg.LLM,
		vectorClient.CollectionName(),
	)

	rateLimiter := ratelimit.Middleware(ratelimit.Config{
		Store:     rateLimitStore,
		MaxPerDay: cfg.Site.QueriesPerUserPerDay,
		Logger:    appLogger.GetLogger(),
	})

	app.Post("/chat", rateLimiter, chatHandler.HandleChat)
	app.Get("/chat/history", chatHandler.GetHistory)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
