package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/mediadash/backend/internal/config"
	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/core/services"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	"github.com/mediadash/backend/internal/transport/http/handlers"
	httpmw "github.com/mediadash/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	Logger  *logger.Logger
	Config  *config.Config
	Workers ports.WorkerRegistry
	History ports.HistoryService
	Feed    *services.StatusFeed
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	dashHandler := handlers.NewDashHandler(cfg.Feed, cfg.Logger)
	workerHandler := handlers.NewWorkerHandler(cfg.Workers, cfg.Logger)
	historyHandler := handlers.NewHistoryHandler(cfg.History, cfg.Logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "server_id": cfg.Feed.ServerID()})
	})

	// Dashboard status feed
	app.Use("/dashws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/dashws", websocket.New(dashHandler.Handle))

	api := app.Group("/api/v1")

	// Worker routes
	workers := api.Group("/workers")
	workers.Post("/status", httpmw.WorkerAuth(cfg.Config), workerHandler.ReportStatus)
	workers.Get("/", httpmw.AdminAuth(cfg.Config), workerHandler.GetWorkers)
	workers.Delete("/:id", httpmw.AdminAuth(cfg.Config), workerHandler.DeleteWorker)

	// Pending queue routes
	pending := api.Group("/pending")
	pending.Get("/list", httpmw.AdminAuth(cfg.Config), workerHandler.ListPending)

	// History routes
	history := api.Group("/history")
	history.Post("/record", httpmw.WorkerAuth(cfg.Config), historyHandler.RecordTask)
	history.Post("/list", httpmw.AdminAuth(cfg.Config), historyHandler.ListTasks)
	history.Delete("/", httpmw.AdminAuth(cfg.Config), historyHandler.DeleteTasks)
}
