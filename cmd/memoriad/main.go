package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"memoria/internal/config"
	"memoria/internal/database"
	"memoria/internal/handlers"
	"memoria/internal/logging"
	"memoria/internal/services"
	"memoria/pkg/capabilities"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Memoria engine...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (port: %s, window: %d, schedule: %s)",
		cfg.Port, cfg.ContextWindowSize, cfg.ConsolidationSchedule)

	redisDB, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()

	neo4jDB, err := database.NewNeo4j(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Neo4j: %v", err)
	}
	defer neo4jDB.Close(context.Background())

	services.InitMetrics()

	// External capabilities. The HTTP implementations talk to whatever
	// embedding/affect/summary endpoints the deployment points them at.
	embedder := services.NewCachedEmbedder(
		capabilities.NewHTTPEmbedder(os.Getenv("EMBEDDER_URL"), cfg.EmbeddingDim, cfg.CapabilityTimeout),
		cfg.SimilarityCacheTTL,
	)
	classifier := capabilities.NewHTTPAffectClassifier(os.Getenv("CLASSIFIER_URL"), cfg.CapabilityTimeout)
	summarizer := capabilities.NewHTTPSummarizer(os.Getenv("SUMMARIZER_URL"), cfg.CapabilityTimeout)

	// Core services.
	limiter := services.NewRateLimiterService(redisDB, cfg.MemoryOpsPerMinute, cfg.QuotaWindow)
	graph := services.NewMemoryGraphService(neo4jDB)
	window := services.NewContextWindowService(redisDB, cfg.ContextWindowSize, cfg.ContextWindowTTL)
	forgetting := services.NewForgettingService(graph, cfg)
	longTerm := services.NewLongTermStoreService(graph, embedder, limiter, forgetting, cfg)
	activation := services.NewSpreadingActivationService(graph, embedder, limiter, forgetting, cfg)
	consolidation := services.NewConsolidationService(graph, redisDB, embedder, summarizer, forgetting, cfg)
	memory := services.NewMemoryService(window, longTerm, activation, forgetting, consolidation, classifier, cfg)

	scheduler, err := services.NewSchedulerService(redisDB, consolidation, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "memoria",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	prometheusMiddleware := fiberprometheus.New("memoria")
	prometheusMiddleware.RegisterAt(app, "/metrics")
	app.Use(prometheusMiddleware.Middleware)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := redisDB.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  "redis unavailable",
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.NewMemoryHandler(memory).Register(app)

	go func() {
		log.Printf("🌐 Listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("⚠️ Server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("⏹️ Shutting down...")
	cancel()

	if err := scheduler.Stop(); err != nil {
		log.Printf("⚠️ Scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
