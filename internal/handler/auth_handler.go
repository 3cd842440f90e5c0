package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/internal/utils"
)

// AuthHandler exchanges the administrator passphrase for a token.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register wires the login route.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Post("/login", h.login)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, errInvalidBody.Error())
	}

	resp, err := h.service.Login(requestContext(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPassphrase):
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		case errors.Is(err, service.ErrAdminDisabled):
			return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
		default:
			return respondError(c, h.logger, err, "login failed")
		}
	}

	return utils.SendSuccess(c, "authenticated", resp)
}
