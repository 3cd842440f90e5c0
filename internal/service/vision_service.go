package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/pkg/ai"
	"github.com/noah-isme/mural-go-api/pkg/attachment"
)

// DefaultVisionPrompt is used when the caller sends an image without a question.
const DefaultVisionPrompt = "Describe this image in detail."

// VisionService answers one-shot questions about an uploaded image.
type VisionService interface {
	Describe(ctx context.Context, prompt string, image dto.FileUpload) (dto.VisionResponse, error)
}

type visionService struct {
	provider ai.Provider
	model    string
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewVisionService constructs the image analysis service.
func NewVisionService(provider ai.Provider, model string, logger zerolog.Logger) VisionService {
	return &visionService{
		provider: provider,
		model:    model,
		logger:   logger.With().Str("component", "vision_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/mural-go-api/internal/service/vision"),
	}
}

func (s *visionService) Describe(ctx context.Context, prompt string, image dto.FileUpload) (dto.VisionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "vision.describe", trace.WithAttributes(
		attribute.String("vision.provider", s.provider.Name()),
		attribute.Int("vision.size_bytes", len(image.Data)),
	))
	defer span.End()

	if len(image.Data) == 0 {
		return dto.VisionResponse{}, invalid("image", "is required")
	}
	if len(image.Data) > attachment.MaxSize {
		return dto.VisionResponse{}, attachmentError(attachment.ErrTooLarge)
	}

	mimeType := attachment.Detect(image.Data)
	if !strings.HasPrefix(mimeType, "image/") {
		return dto.VisionResponse{}, invalid("image", "must be an image file")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultVisionPrompt
	}

	session, err := s.provider.NewSession(ctx, ai.SessionConfig{Model: s.model})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session failed")
		return dto.VisionResponse{}, err
	}

	stream, err := session.SendMessageStream(ctx, prompt, &ai.InlineAttachment{
		Name:     image.Name,
		MimeType: mimeType,
		Data:     image.Data,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return dto.VisionResponse{}, err
	}

	text, err := ai.Collect(stream)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		s.logger.Error().Err(err).Msg("vision stream failed")
		return dto.VisionResponse{}, err
	}

	return dto.VisionResponse{Text: text, Provider: s.provider.Name()}, nil
}
