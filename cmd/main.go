package main

import (
	"log"

	"github.com/classtrack/backend/internal/api/handlers"
	"github.com/classtrack/backend/internal/api/router"
	"github.com/classtrack/backend/internal/apperr"
	"github.com/classtrack/backend/internal/config"
	"github.com/classtrack/backend/internal/middleware"
	"github.com/classtrack/backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize storage
	dsn := storage.BuildDSN(cfg.Database)
	store, err := storage.NewPostgres(dsn)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Classtrack",
		ErrorHandler: apperr.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New())

	// Initialize handlers and middleware
	authHandler := handlers.NewAuthHandler(store, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.Auth.BcryptCost)
	teacherHandler := handlers.NewTeacherHandler(store, cfg.Auth.BcryptCost, cfg.Upload.Dir)
	studentHandler := handlers.NewStudentHandler(store)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	var limitStore middleware.AttemptStore = middleware.NewMemoryAttempts()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limitStore = middleware.NewRedisAttempts(client)
	}
	rateLimiter := middleware.NewRateLimiter(limitStore, cfg.Server.RateLimit.Enabled)

	// Initialize router
	apiRouter := router.NewRouter(
		app,
		authHandler,
		teacherHandler,
		studentHandler,
		authMiddleware,
		rateLimiter,
	)

	// Setup routes
	apiRouter.SetupRoutes()

	// Start server
	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
