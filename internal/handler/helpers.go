package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/middleware"
	"github.com/noah-isme/mural-go-api/internal/repository"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/internal/utils"
	"github.com/noah-isme/mural-go-api/pkg/attachment"
)

const storeUnavailableMessage = "activity store unavailable, check backend connectivity"

var errInvalidBody = errors.New("invalid request body")

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// validationDetails lists the failing fields of a validator error.
func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field()[:1]) + fieldErr.Field()[1:]
		if fieldErr.Param() != "" {
			details[field] = fmt.Sprintf("failed %s=%s", fieldErr.Tag(), fieldErr.Param())
			continue
		}
		details[field] = "failed " + fieldErr.Tag()
	}
	return details
}

// respondError maps service and store errors onto the response envelope.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	switch {
	case errors.Is(err, errInvalidBody):
		return utils.SendError(c, fiber.StatusBadRequest, errInvalidBody.Error())
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, attachment.ErrTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, attachment.ErrTooLarge.Error())
	case errors.Is(err, service.ErrValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrActivityNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "activity not found")
	case errors.Is(err, repository.ErrStoreUnavailable):
		requestLogger(logger, c).Error().Err(err).Msg("activity store unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, storeUnavailableMessage)
	case errors.Is(err, service.ErrTurnInProgress):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInitialization):
		return utils.SendError(c, fiber.StatusServiceUnavailable, service.ErrInitialization.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}

// formUpload reads an optional multipart file. A missing field yields nil.
func formUpload(c *fiber.Ctx, field string) (*dto.FileUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	return readUpload(files[0])
}

func readUpload(header *multipart.FileHeader) (*dto.FileUpload, error) {
	if header.Size > attachment.MaxSize {
		return nil, attachment.ErrTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, attachment.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if len(data) > attachment.MaxSize {
		return nil, attachment.ErrTooLarge
	}

	return &dto.FileUpload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}
