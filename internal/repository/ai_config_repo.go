package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/mural-go-api/internal/models"
)

// AiConfigKey is the blob key of the singleton tutor configuration.
const AiConfigKey = "tutor:ai-config"

// AiConfigRepository reads and overwrites the tutor configuration.
type AiConfigRepository interface {
	Load(ctx context.Context) (models.AiConfig, error)
	Save(ctx context.Context, cfg models.AiConfig) error
}

type aiConfigRepository struct {
	blobs    BlobStore
	fallback models.AiConfig
}

// NewAiConfigRepository returns fallback until a configuration is saved.
func NewAiConfigRepository(blobs BlobStore, fallback models.AiConfig) AiConfigRepository {
	return &aiConfigRepository{blobs: blobs, fallback: fallback}
}

func (r *aiConfigRepository) Load(ctx context.Context) (models.AiConfig, error) {
	raw, err := r.blobs.Get(ctx, AiConfigKey)
	if errors.Is(err, ErrBlobNotFound) {
		return r.fallback, nil
	}
	if err != nil {
		return models.AiConfig{}, err
	}

	var cfg models.AiConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.AiConfig{}, fmt.Errorf("decode ai config: %w", err)
	}
	return cfg, nil
}

func (r *aiConfigRepository) Save(ctx context.Context, cfg models.AiConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode ai config: %w", err)
	}
	return r.blobs.Put(ctx, AiConfigKey, payload)
}
