package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/patchnotes/api/internal/render"
	"github.com/patchnotes/api/internal/service"
	"github.com/patchnotes/api/internal/store"
	"github.com/patchnotes/api/pkg/response"
)

type RenderHandler struct {
	service *service.RenderService
}

func NewRenderHandler(svc *service.RenderService) *RenderHandler {
	return &RenderHandler{service: svc}
}

// Status handles GET /api/notes/:noteId/render/status
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	noteKey := c.Params("noteId")
	if noteKey == "" {
		return response.ValidationError(c, "Note ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), noteKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Note not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Retry handles POST /api/notes/:noteId/render/retry
func (h *RenderHandler) Retry(c *fiber.Ctx) error {
	noteKey := c.Params("noteId")
	if noteKey == "" {
		return response.ValidationError(c, "Note ID is required", nil)
	}

	result, err := h.service.Retry(c.Context(), noteKey)
	if err != nil {
		return renderError(c, err)
	}

	return response.OK(c, result)
}

// Abandon handles POST /api/notes/:noteId/render/abandon
func (h *RenderHandler) Abandon(c *fiber.Ctx) error {
	noteKey := c.Params("noteId")
	if noteKey == "" {
		return response.ValidationError(c, "Note ID is required", nil)
	}

	result, err := h.service.Abandon(c.Context(), noteKey)
	if err != nil {
		return renderError(c, err)
	}

	return response.OK(c, result)
}

// renderError maps render lifecycle errors onto the response envelope.
func renderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return response.NotFound(c, "Note not found")
	case errors.Is(err, render.ErrRenderActive):
		return response.Conflict(c, "A render is already in progress")
	case errors.Is(err, render.ErrConcurrentModification):
		return response.Conflict(c, "Render state changed concurrently, retry")
	case render.IsInvalidTransition(err):
		return response.ValidationError(c, err.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}
