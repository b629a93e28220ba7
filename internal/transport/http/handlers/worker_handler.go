package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/core/services"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	"github.com/mediadash/backend/internal/transport/http/dto"
)

type WorkerHandler struct {
	registry ports.WorkerRegistry
	logger   *logger.Logger
}

func NewWorkerHandler(registry ports.WorkerRegistry, logger *logger.Logger) *WorkerHandler {
	return &WorkerHandler{registry: registry, logger: logger}
}

func (h *WorkerHandler) ReportStatus(c *fiber.Ctx) error {
	var req dto.WorkerStatusRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("worker_status_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("invalid request body"))
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("worker_status_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("validation failed", errs...))
	}

	status, err := h.registry.Upsert(req.ToReport())
	if err != nil {
		if errors.Is(err, services.ErrWorkerInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.Fail(err.Error()))
		}
		h.logger.Errorw("worker_status_upsert_failed", "worker_id", req.ID.String(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.Fail(err.Error()))
	}

	return c.JSON(dto.WorkerStatusResponse{Success: true, Worker: status})
}

func (h *WorkerHandler) GetWorkers(c *fiber.Ctx) error {
	return c.JSON(dto.WorkerListResponse{Success: true, Workers: h.registry.Snapshot()})
}

// ListPending pages through the queued files of every worker. start and
// length come from the query string; length 0 returns the rest.
func (h *WorkerHandler) ListPending(c *fiber.Ctx) error {
	start := c.QueryInt("start", 0)
	length := c.QueryInt("length", 0)
	if start < 0 || length < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("start and length must not be negative"))
	}

	all := h.registry.PendingTasks(0)
	page := all[min(start, len(all)):]
	if length > 0 && length < len(page) {
		page = page[:length]
	}
	return c.JSON(dto.PendingListResponse{
		Success:         true,
		RecordsTotal:    len(all),
		RecordsFiltered: len(all),
		Results:         page,
	})
}

func (h *WorkerHandler) DeleteWorker(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.registry.Remove(id); err != nil {
		if errors.Is(err, services.ErrWorkerNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.Fail("worker not found"))
		}
		h.logger.Errorw("worker_delete_failed", "worker_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.Fail(err.Error()))
	}

	h.logger.Infow("worker_delete_success", "worker_id", id)
	return c.JSON(dto.SuccessResponse{Success: true, Message: "worker removed"})
}
