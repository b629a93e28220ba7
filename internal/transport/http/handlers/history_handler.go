package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/core/services"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	"github.com/mediadash/backend/internal/transport/http/dto"
)

type HistoryHandler struct {
	service ports.HistoryService
	logger  *logger.Logger
}

func NewHistoryHandler(service ports.HistoryService, logger *logger.Logger) *HistoryHandler {
	return &HistoryHandler{service: service, logger: logger}
}

func (h *HistoryHandler) RecordTask(c *fiber.Ctx) error {
	var req dto.RecordTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("history_record_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("invalid request body"))
	}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("validation failed", errs...))
	}

	task, err := h.service.Record(c.UserContext(), req.ToInput())
	if err != nil {
		return h.fail(c, "history_record_failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "id": task.ID})
}

func (h *HistoryHandler) ListTasks(c *fiber.Ctx) error {
	var req dto.HistoryListRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			h.logger.Warnw("history_list_body_parse_failed", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("invalid request body"))
		}
	}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("validation failed", errs...))
	}

	page, err := h.service.List(c.UserContext(), req.ToFilter())
	if err != nil {
		return h.fail(c, "history_list_failed", err)
	}
	return c.JSON(dto.HistoryListResponse{Success: true, HistoryPage: page})
}

func (h *HistoryHandler) DeleteTasks(c *fiber.Ctx) error {
	var req dto.DeleteHistoryRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("history_delete_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("invalid request body"))
	}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail("validation failed", errs...))
	}

	n, err := h.service.Delete(c.UserContext(), req.IDList)
	if err != nil {
		return h.fail(c, "history_delete_failed", err)
	}
	return c.JSON(dto.DeleteHistoryResponse{Success: true, Deleted: n})
}

func (h *HistoryHandler) fail(c *fiber.Ctx, event string, err error) error {
	switch {
	case errors.Is(err, services.ErrHistoryInvalidInput):
		h.logger.Warnw(event, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.Fail(err.Error()))
	case errors.Is(err, services.ErrHistoryNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.Fail(err.Error()))
	default:
		h.logger.Errorw(event, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.Fail(err.Error()))
	}
}
