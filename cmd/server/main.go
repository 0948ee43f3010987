package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/patchnotes/api/internal/auth"
	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/config"
	"github.com/patchnotes/api/internal/handler"
	"github.com/patchnotes/api/internal/middleware"
	"github.com/patchnotes/api/internal/render"
	"github.com/patchnotes/api/internal/service"
	"github.com/patchnotes/api/internal/store"
	"github.com/patchnotes/api/internal/worker"
	ws "github.com/patchnotes/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize Postgres
	recordStore, err := store.Connect(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := recordStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	engineClient := client.NewEngineClient(&cfg.Engine)
	githubClient := client.NewGitHubClient(&cfg.GitHub)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, video URLs fall back to bucket addressing")
	}

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Render lifecycle core
	statusCache := store.NewStatusCache(redisClient, 5*time.Second)
	executor := render.NewExecutor(recordStore, statusCache)
	reader := render.NewStatusReader(recordStore, statusCache)
	initiator := render.NewInitiator(recordStore, engineClient, executor, cfg.Engine.Composition, cfg.Storage.BucketName)
	var urls render.URLBuilder
	if r2Client != nil {
		urls = r2Client
	}
	poller := render.NewPoller(reader, executor, engineClient, urls)

	// Initialize services
	summaryService := service.NewSummaryService(groqClient)
	noteService := service.NewNoteService(recordStore)
	renderService := service.NewRenderService(recordStore, executor, poller, asynqClient)
	distributionService := service.NewDistributionService(recordStore, asynqClient)

	// Initialize handlers
	noteHandler := handler.NewNoteHandler(noteService, renderService, distributionService, validate)
	renderHandler := handler.NewRenderHandler(renderService)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq":    groqClient.IsConfigured(),
				"engine":  engineClient.IsConfigured(),
				"github":  githubClient.IsConfigured(),
				"storage": r2Client != nil,
				"auth":    jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Note routes
	notes := api.Group("/notes")
	notes.Post("/", noteHandler.Create)
	notes.Get("/", noteHandler.List)
	notes.Get("/:noteId", noteHandler.Get)
	notes.Post("/:noteId/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), noteHandler.Generate)
	notes.Post("/:noteId/distribute", rateLimiter.DistributeLimit(cfg.RateLimit.DistributePerHour), noteHandler.Distribute)

	// Render lifecycle routes
	notes.Get("/:noteId/render/status", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), renderHandler.Status)
	notes.Post("/:noteId/render/retry", renderHandler.Retry)
	notes.Post("/:noteId/render/abandon", renderHandler.Abandon)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/notes/:noteId", websocket.New(func(c *websocket.Conn) {
		noteKey := c.Params("noteId")
		hub.HandleConnection(c, noteKey)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, recordStore, githubClient, summaryService, executor, initiator, r2Client, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	recordStore store.RecordStore,
	githubClient client.CommitHistory,
	summaryService service.Summarizer,
	executor *render.Executor,
	initiator *render.Initiator,
	r2Client *client.R2Client,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"pipeline":   6,
				"distribute": 4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	var storageClient client.StorageClient
	if r2Client != nil {
		storageClient = r2Client
	}

	pipelineWorker := worker.NewPipelineWorker(recordStore, githubClient, summaryService, executor, initiator, hub)
	distributionWorker := worker.NewDistributionWorker(recordStore, storageClient, nil)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeDistribute, distributionWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
