package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/pkg/ai"
	"github.com/noah-isme/mural-go-api/pkg/attachment"
)

// FileStorage abstracts external attachment destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AttachmentService turns uploaded files into stored attachment content and back.
type AttachmentService interface {
	FromPayload(ctx context.Context, payload dto.AttachmentPayload) (models.Attachment, error)
	FromUpload(ctx context.Context, file dto.FileUpload) (models.Attachment, error)
	Open(ctx context.Context, stored models.Attachment) (attachment.Payload, error)
	Inline(ctx context.Context, stored models.Attachment) (*ai.InlineAttachment, error)
	Backend() string
}

type attachmentService struct {
	storage   FileStorage
	backend   string
	http      *http.Client
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewAttachmentService stores attachments inline when storage is nil, otherwise uploads them
// and keeps the returned URL.
func NewAttachmentService(storage FileStorage, backend string, logger zerolog.Logger) AttachmentService {
	if storage == nil {
		backend = "inline"
	}
	return &attachmentService{
		storage:   storage,
		backend:   backend,
		http:      &http.Client{Timeout: 15 * time.Second},
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "attachment_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/mural-go-api/internal/service/attachment"),
	}
}

func (s *attachmentService) Backend() string {
	return s.backend
}

func (s *attachmentService) FromPayload(ctx context.Context, payload dto.AttachmentPayload) (models.Attachment, error) {
	name := s.cleanName(payload.Name)
	if attachment.IsReference(payload.Data) {
		return models.Attachment{Name: name, MimeType: attachment.NormalizeMime(payload.Type), Content: strings.TrimSpace(payload.Data)}, nil
	}

	decoded, err := attachment.FromBase64(payload.Data, payload.Type)
	if err != nil {
		return models.Attachment{}, attachmentError(err)
	}
	return s.store(ctx, name, decoded.MimeType, decoded.Data)
}

func (s *attachmentService) FromUpload(ctx context.Context, file dto.FileUpload) (models.Attachment, error) {
	if len(file.Data) > attachment.MaxSize {
		return models.Attachment{}, attachmentError(attachment.ErrTooLarge)
	}
	mimeType := attachment.NormalizeMime(file.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = attachment.Detect(file.Data)
	}
	return s.store(ctx, s.cleanName(file.Name), mimeType, file.Data)
}

func (s *attachmentService) store(ctx context.Context, name, mimeType string, data []byte) (models.Attachment, error) {
	ctx, span := s.tracer.Start(ctx, "attachment.store", trace.WithAttributes(
		attribute.String("attachment.backend", s.backend),
		attribute.String("attachment.mime", mimeType),
		attribute.Int("attachment.size_bytes", len(data)),
	))
	defer span.End()

	if s.storage == nil {
		content, err := attachment.Encode(data, mimeType)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode failed")
			return models.Attachment{}, attachmentError(err)
		}
		return models.Attachment{Name: name, MimeType: mimeType, Content: content}, nil
	}

	if len(data) == 0 {
		return models.Attachment{}, attachmentError(attachment.ErrEmpty)
	}
	if len(data) > attachment.MaxSize {
		return models.Attachment{}, attachmentError(attachment.ErrTooLarge)
	}

	url, err := s.storage.Upload(ctx, name, bytes.NewReader(data))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		s.logger.Error().Err(err).Str("name", name).Msg("attachment upload failed")
		return models.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}

	return models.Attachment{Name: name, MimeType: mimeType, Content: url}, nil
}

// Open returns the attachment bytes. Inline content is decoded; references are downloaded.
func (s *attachmentService) Open(ctx context.Context, stored models.Attachment) (attachment.Payload, error) {
	if attachment.IsDataURL(stored.Content) {
		payload, err := attachment.Decode(stored.Content)
		if err != nil {
			return attachment.Payload{}, err
		}
		if stored.MimeType != "" {
			payload.MimeType = stored.MimeType
		}
		return payload, nil
	}
	if !attachment.IsReference(stored.Content) {
		return attachment.Payload{}, attachment.ErrNotDataURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stored.Content, nil)
	if err != nil {
		return attachment.Payload{}, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return attachment.Payload{}, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return attachment.Payload{}, fmt.Errorf("download attachment: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, attachment.MaxSize+1))
	if err != nil {
		return attachment.Payload{}, fmt.Errorf("download attachment: %w", err)
	}
	if len(data) > attachment.MaxSize {
		return attachment.Payload{}, attachment.ErrTooLarge
	}

	mimeType := stored.MimeType
	if mimeType == "" {
		mimeType = attachment.Detect(data)
	}
	return attachment.Payload{MimeType: mimeType, Data: data}, nil
}

// Inline prepares a stored attachment for a model request.
func (s *attachmentService) Inline(ctx context.Context, stored models.Attachment) (*ai.InlineAttachment, error) {
	payload, err := s.Open(ctx, stored)
	if err != nil {
		return nil, err
	}
	return &ai.InlineAttachment{Name: stored.Name, MimeType: payload.MimeType, Data: payload.Data}, nil
}

func (s *attachmentService) cleanName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSpace(s.sanitizer.Sanitize(base))
	if base == "" || base == "." || base == "/" {
		return "attachment"
	}
	return base
}

func attachmentError(err error) error {
	if errors.Is(err, attachment.ErrTooLarge) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return &ValidationError{Field: "attachment", Message: err.Error()}
}
