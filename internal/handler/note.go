package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/patchnotes/api/internal/middleware"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/service"
	"github.com/patchnotes/api/internal/store"
	"github.com/patchnotes/api/pkg/response"
)

type NoteHandler struct {
	notes        *service.NoteService
	render       *service.RenderService
	distribution *service.DistributionService
	validator    *validator.Validate
}

func NewNoteHandler(notes *service.NoteService, render *service.RenderService, distribution *service.DistributionService, v *validator.Validate) *NoteHandler {
	return &NoteHandler{
		notes:        notes,
		render:       render,
		distribution: distribution,
		validator:    v,
	}
}

// Create handles POST /api/notes
func (h *NoteHandler) Create(c *fiber.Ctx) error {
	var req model.NoteCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	note, err := h.notes.CreateNote(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, note)
}

// List handles GET /api/notes
func (h *NoteHandler) List(c *fiber.Ctx) error {
	notes, err := h.notes.ListNotes(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, notes)
}

// Get handles GET /api/notes/:noteId
func (h *NoteHandler) Get(c *fiber.Ctx) error {
	noteKey := c.Params("noteId")
	if noteKey == "" {
		return response.ValidationError(c, "Note ID is required", nil)
	}

	note, err := h.notes.GetNote(c.Context(), noteKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Note not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, note)
}

// Generate handles POST /api/notes/:noteId/generate
func (h *NoteHandler) Generate(c *fiber.Ctx) error {
	noteKey := c.Params("noteId")
	if noteKey == "" {
		return response.ValidationError(c, "Note ID is required", nil)
	}

	result, err := h.render.StartPipeline(c.Context(), noteKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Note not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Distribute handles POST /api/notes/:noteId/distribute
func (h *NoteHandler) Distribute(c *fiber.Ctx) error {
	noteKey := c.Params("noteId")
	if noteKey == "" {
		return response.ValidationError(c, "Note ID is required", nil)
	}

	var req model.DistributeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.distribution.Distribute(c.Context(), noteKey, &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Note not found")
		}
		if errors.Is(err, service.ErrNoteNotReady) {
			return response.ValidationError(c, "Note content is not ready for distribution", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}
