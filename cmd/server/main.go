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

	"github.com/practicepulse/api/internal/client"
	"github.com/practicepulse/api/internal/config"
	"github.com/practicepulse/api/internal/handler"
	"github.com/practicepulse/api/internal/middleware"
	"github.com/practicepulse/api/internal/pipeline"
	"github.com/practicepulse/api/internal/service"
	"github.com/practicepulse/api/internal/store"
	"github.com/practicepulse/api/internal/worker"
	ws "github.com/practicepulse/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	redisAvailable := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
		redisAvailable = false
	}

	// Job store: Redis when available, in-memory fallback for local dev
	var jobStore store.Store
	if redisAvailable {
		jobStore = store.NewRedisStore(redisClient)
	} else {
		log.Println("Info: using in-memory job store")
		jobStore = store.NewMemoryStore()
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

	// Sub-agent service client (mock fallback when unconfigured)
	agentsClient := client.NewAgentsClient(&cfg.Agents)
	if !agentsClient.IsConfigured() {
		log.Println("Info: agent service not configured, using mock agents")
	}

	// Pipeline engine and services
	engine := pipeline.NewEngine(jobStore, agentsClient, hub, time.Duration(cfg.Agents.Timeout)*time.Second)

	var enqueuer service.RunEnqueuer = service.NewAsynqEnqueuer(asynqClient)
	if !redisAvailable {
		enqueuer = service.NewInlineEnqueuer(engine)
	}
	automationService := service.NewAutomationService(jobStore, engine, enqueuer)

	// Handlers and middleware
	automationHandler := handler.NewAutomationHandler(automationService, validate)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    20 * 1024 * 1024, // 20MB, bounded by PMS export size
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
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
				"redis":  redisAvailable,
				"agents": agentsClient.IsConfigured(),
				"auth":   cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/automation/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), automationHandler.Create)
	jobs.Get("/", automationHandler.List)
	jobs.Get("/active", automationHandler.Active)
	jobs.Get("/:jobId", automationHandler.Status)
	jobs.Get("/:jobId/tasks", automationHandler.Tasks)
	jobs.Get("/:jobId/response", automationHandler.GetResponse)
	jobs.Put("/:jobId/response", automationHandler.UpdateResponse)
	jobs.Post("/:jobId/approval", rateLimiter.ApprovalsLimit(cfg.RateLimit.ApprovalsPerMin), automationHandler.Approve)
	jobs.Post("/:jobId/retry", rateLimiter.RetriesLimit(cfg.RateLimit.RetriesPerHour), automationHandler.Retry)
	jobs.Delete("/:jobId", automationHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	if redisAvailable {
		go startWorkerServer(cfg, engine)
	}

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

func startWorkerServer(cfg *config.Config, engine *pipeline.Engine) {
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
				"automation": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	automationWorker := worker.NewAutomationWorker(engine)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAutomation, automationWorker.ProcessTask)

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
