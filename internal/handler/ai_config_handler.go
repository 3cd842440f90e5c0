package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/internal/utils"
)

// AiConfigHandler exposes the tutor course context to administrators.
type AiConfigHandler struct {
	service service.AiConfigService
	logger  zerolog.Logger
}

// NewAiConfigHandler constructs the handler.
func NewAiConfigHandler(service service.AiConfigService, logger zerolog.Logger) *AiConfigHandler {
	return &AiConfigHandler{
		service: service,
		logger:  logger.With().Str("component", "ai_config_handler").Logger(),
	}
}

// Register wires the configuration routes.
func (h *AiConfigHandler) Register(router fiber.Router) {
	router.Get("", h.get)
	router.Put("", h.update)
}

func (h *AiConfigHandler) get(c *fiber.Ctx) error {
	cfg, err := h.service.Get(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load ai config")
	}
	return utils.SendSuccess(c, "ai config", dto.AiConfigResponse{Context: cfg.Context})
}

func (h *AiConfigHandler) update(c *fiber.Ctx) error {
	var req dto.AiConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, errInvalidBody.Error())
	}

	cfg, err := h.service.Update(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to save ai config")
	}
	return utils.SendSuccess(c, "ai config updated", dto.AiConfigResponse{Context: cfg.Context})
}
