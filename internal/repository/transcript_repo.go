package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/mural-go-api/internal/models"
)

const transcriptKeyPrefix = "tutor:transcript:"

// TranscriptKey returns the blob key of a session transcript.
func TranscriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}

// TranscriptRepository persists one transcript per tutor session.
type TranscriptRepository interface {
	Load(ctx context.Context, sessionID string) (models.Transcript, error)
	Save(ctx context.Context, sessionID string, transcript models.Transcript) error
	Clear(ctx context.Context, sessionID string) error
}

type transcriptRepository struct {
	blobs BlobStore
}

// NewTranscriptRepository stores transcripts as JSON blobs.
func NewTranscriptRepository(blobs BlobStore) TranscriptRepository {
	return &transcriptRepository{blobs: blobs}
}

func (r *transcriptRepository) Load(ctx context.Context, sessionID string) (models.Transcript, error) {
	raw, err := r.blobs.Get(ctx, TranscriptKey(sessionID))
	if errors.Is(err, ErrBlobNotFound) {
		return models.Transcript{}, nil
	}
	if err != nil {
		return nil, err
	}

	var transcript models.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if transcript == nil {
		transcript = models.Transcript{}
	}
	return transcript, nil
}

func (r *transcriptRepository) Save(ctx context.Context, sessionID string, transcript models.Transcript) error {
	if transcript == nil {
		transcript = models.Transcript{}
	}
	payload, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return r.blobs.Put(ctx, TranscriptKey(sessionID), payload)
}

func (r *transcriptRepository) Clear(ctx context.Context, sessionID string) error {
	return r.blobs.Delete(ctx, TranscriptKey(sessionID))
}
