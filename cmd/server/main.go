package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/mediadash/backend/internal/config"
	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/core/services"
	"github.com/mediadash/backend/internal/infrastructure/db"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	transporthttp "github.com/mediadash/backend/internal/transport/http"
	"gorm.io/gorm"
)

type requestIDKey struct{}

func main() {
	configPath := os.Getenv("MEDIADASH_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = ""
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	var database *gorm.DB
	var historyRepo ports.CompletedTaskRepository
	if cfg.Database.Enabled {
		database, err = db.NewPostgresConnection(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		log.Info("database connection established")

		if err := db.RunMigrations(database); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Info("database migrations completed")
		historyRepo = db.NewHistoryRepository(database, log.Named("history_repo"))
	} else {
		log.Warn("database disabled; completed task history is kept in memory")
		historyRepo = db.NewMemoryHistoryRepository(log.Named("history_repo"))
	}

	registry := services.NewWorkerRegistry(services.WorkerRegistryConfig{
		LogTailLines: cfg.Feed.LogTailLines,
		Logger:       log.Named("workers"),
	})
	history := services.NewHistoryService(services.HistoryServiceConfig{
		Repo:   historyRepo,
		Logger: log.Named("history"),
	})
	feed := services.NewStatusFeed(services.StatusFeedConfig{
		Workers:                registry,
		History:                history,
		WorkersInterval:        cfg.Feed.WorkersInterval,
		CompletedTasksInterval: cfg.Feed.CompletedTasksInterval,
		CompletedTasksLimit:    cfg.Feed.CompletedTasksLimit,
		PendingTasksInterval:   cfg.Feed.PendingTasksInterval,
		PendingTasksLimit:      cfg.Feed.PendingTasksLimit,
		Logger:                 log.Named("feed"),
	})
	log.Infow("status_feed_ready", "server_id", feed.ServerID())

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if stale := cfg.Feed.WorkerStaleAfter; stale > 0 {
		go registry.RunJanitor(janitorCtx, stale/2, stale)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:8888"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token, X-Worker-Token",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	app.Use(func(c *fiber.Ctx) error {
		hdr := cfg.Features.RequestIDHeader
		var reqID string
		if hdr != "" {
			reqID = c.Get(hdr)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey{}, reqID))
		return c.Next()
	})

	if cfg.Features.EnableRequestLogging {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			routePath := ""
			if c.Route() != nil {
				routePath = c.Route().Path
			}
			log.Infow("http_access",
				"method", c.Method(),
				"path", c.Path(),
				"route", routePath,
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.IP(),
				"user_agent", string(c.Request().Header.UserAgent()),
				"request_id", c.Locals("request_id"),
			)
			return err
		})
	}

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Logger:  log.Named("http"),
		Config:  cfg,
		Workers: registry,
		History: history,
		Feed:    feed,
	})

	addr := cfg.Server.Address()
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	log.Infof("server started on %s", addr)

	gracefulShutdown(app, database, log)
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusNotFound || code == fiber.StatusMethodNotAllowed {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
}

func gracefulShutdown(app *fiber.App, database *gorm.DB, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if database != nil {
		if err := db.Close(database); err != nil {
			log.Errorf("failed to close database connection: %v", err)
		}
	}

	log.Info("server exited gracefully")
}
