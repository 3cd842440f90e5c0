package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/repository"
)

// AiConfigService reads and replaces the course context given to the tutor. The text reaches
// the model verbatim; changes apply to sessions initialised afterwards.
type AiConfigService interface {
	Get(ctx context.Context) (models.AiConfig, error)
	Update(ctx context.Context, req dto.AiConfigRequest) (models.AiConfig, error)
}

type aiConfigService struct {
	repo      repository.AiConfigRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAiConfigService constructs the tutor configuration service.
func NewAiConfigService(repo repository.AiConfigRepository, validate *validator.Validate, logger zerolog.Logger) AiConfigService {
	return &aiConfigService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "ai_config_service").Logger(),
	}
}

func (s *aiConfigService) Get(ctx context.Context) (models.AiConfig, error) {
	return s.repo.Load(ctx)
}

func (s *aiConfigService) Update(ctx context.Context, req dto.AiConfigRequest) (models.AiConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.AiConfig{}, err
	}

	cfg := models.AiConfig{Context: strings.TrimSpace(req.Context)}
	if cfg.Context == "" {
		return models.AiConfig{}, invalid("context", "is required")
	}
	if err := s.repo.Save(ctx, cfg); err != nil {
		s.logger.Error().Err(err).Msg("failed to save ai config")
		return models.AiConfig{}, err
	}

	s.logger.Info().Int("length", len(cfg.Context)).Msg("ai config updated")
	return cfg, nil
}
