package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/internal/utils"
)

// AdminActivityHandler exposes activity management for administrators.
type AdminActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewAdminActivityHandler constructs the handler.
func NewAdminActivityHandler(service service.ActivityService, logger zerolog.Logger) *AdminActivityHandler {
	return &AdminActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_activity_handler").Logger(),
	}
}

// Register wires the admin activity routes.
func (h *AdminActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
}

func (h *AdminActivityHandler) list(c *fiber.Ctx) error {
	items, err := h.service.List(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list activities")
	}
	return utils.OK(c, dto.NewActivityResponseSlice(items), "activities", fiber.Map{"count": len(items)})
}

func (h *AdminActivityHandler) create(c *fiber.Ctx) error {
	req, upload, err := h.parse(c)
	if err != nil {
		return respondError(c, h.logger, err, "invalid request")
	}

	created, err := h.service.Create(requestContext(c), req, upload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create activity")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "activity created", dto.NewActivityResponse(created))
}

func (h *AdminActivityHandler) update(c *fiber.Ctx) error {
	req, upload, err := h.parse(c)
	if err != nil {
		return respondError(c, h.logger, err, "invalid request")
	}

	updated, err := h.service.Update(requestContext(c), c.Params("id"), req, upload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update activity")
	}
	return utils.SendSuccess(c, "activity updated", dto.NewActivityResponse(updated))
}

func (h *AdminActivityHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to delete activity")
	}
	return utils.SendSuccess(c, "activity deleted", nil)
}

// parse accepts JSON bodies or multipart forms carrying an optional "file" part.
func (h *AdminActivityHandler) parse(c *fiber.Ctx) (dto.ActivityRequest, *dto.FileUpload, error) {
	var req dto.ActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return req, nil, errInvalidBody
	}
	if !isMultipart(c) {
		return req, nil, nil
	}

	upload, err := formUpload(c, "file")
	if err != nil {
		return req, nil, err
	}
	return req, upload, nil
}
