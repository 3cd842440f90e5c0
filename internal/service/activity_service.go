package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/observability"
	"github.com/noah-isme/mural-go-api/internal/repository"
)

// ActivityService exposes administrator use cases over the activity store.
type ActivityService interface {
	List(ctx context.Context) ([]models.Activity, error)
	Get(ctx context.Context, id string) (models.Activity, error)
	Create(ctx context.Context, req dto.ActivityRequest, upload *dto.FileUpload) (models.Activity, error)
	Update(ctx context.Context, id string, req dto.ActivityRequest, upload *dto.FileUpload) (models.Activity, error)
	Delete(ctx context.Context, id string) error
}

// ChangeNotifier is told about every successful write.
type ChangeNotifier interface {
	NotifyChanged(ctx context.Context, reason string)
}

type activityService struct {
	store       repository.ActivityStore
	attachments AttachmentService
	notifier    ChangeNotifier
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewActivityService constructs the administrator activity service.
func NewActivityService(store repository.ActivityStore, attachments AttachmentService, notifier ChangeNotifier, validate *validator.Validate, logger zerolog.Logger) ActivityService {
	return &activityService{
		store:       store,
		attachments: attachments,
		notifier:    notifier,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "activity_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/mural-go-api/internal/service/activity"),
	}
}

func (s *activityService) List(ctx context.Context) ([]models.Activity, error) {
	return s.store.List(ctx)
}

func (s *activityService) Get(ctx context.Context, id string) (models.Activity, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

func (s *activityService) Create(ctx context.Context, req dto.ActivityRequest, upload *dto.FileUpload) (models.Activity, error) {
	ctx, span := s.tracer.Start(ctx, "activities.create")
	defer span.End()

	fields, err := s.fields(req)
	if err != nil {
		observability.ActivityMutations().WithLabelValues("create", "invalid").Inc()
		span.SetStatus(codes.Error, "validation failed")
		return models.Activity{}, err
	}

	change, err := s.attachmentChange(ctx, req, upload)
	if err != nil {
		observability.ActivityMutations().WithLabelValues("create", "invalid").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "attachment rejected")
		return models.Activity{}, err
	}

	created, err := s.store.Create(ctx, fields, change.Attachment)
	if err != nil {
		observability.ActivityMutations().WithLabelValues("create", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.Error().Err(err).Str("title", fields.Title).Msg("failed to create activity")
		return models.Activity{}, err
	}

	span.SetAttributes(attribute.String("activity.id", created.ID))
	observability.ActivityMutations().WithLabelValues("create", "ok").Inc()
	s.logger.Info().Str("activity_id", created.ID).Str("type", string(created.Type)).Msg("activity created")
	s.notify(ctx, "activity.created")

	return created, nil
}

func (s *activityService) Update(ctx context.Context, id string, req dto.ActivityRequest, upload *dto.FileUpload) (models.Activity, error) {
	ctx, span := s.tracer.Start(ctx, "activities.update", trace.WithAttributes(attribute.String("activity.id", id)))
	defer span.End()

	fields, err := s.fields(req)
	if err != nil {
		observability.ActivityMutations().WithLabelValues("update", "invalid").Inc()
		span.SetStatus(codes.Error, "validation failed")
		return models.Activity{}, err
	}

	change, err := s.attachmentChange(ctx, req, upload)
	if err != nil {
		observability.ActivityMutations().WithLabelValues("update", "invalid").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "attachment rejected")
		return models.Activity{}, err
	}

	updated, err := s.store.Update(ctx, strings.TrimSpace(id), fields, change)
	if err != nil {
		observability.ActivityMutations().WithLabelValues("update", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return models.Activity{}, err
	}

	observability.ActivityMutations().WithLabelValues("update", "ok").Inc()
	s.logger.Info().Str("activity_id", updated.ID).Msg("activity updated")
	s.notify(ctx, "activity.updated")

	return updated, nil
}

func (s *activityService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "activities.delete", trace.WithAttributes(attribute.String("activity.id", id)))
	defer span.End()

	if err := s.store.Remove(ctx, strings.TrimSpace(id)); err != nil {
		observability.ActivityMutations().WithLabelValues("delete", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return err
	}

	observability.ActivityMutations().WithLabelValues("delete", "ok").Inc()
	s.logger.Info().Str("activity_id", id).Msg("activity removed")
	s.notify(ctx, "activity.deleted")
	return nil
}

func (s *activityService) fields(req dto.ActivityRequest) (models.ActivityFields, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.ActivityFields{}, err
	}

	date, err := models.ParseDate(req.Date)
	if err != nil {
		return models.ActivityFields{}, invalid("date", "must be a YYYY-MM-DD date")
	}
	activityType, err := models.ParseActivityType(req.Type)
	if err != nil {
		return models.ActivityFields{}, invalid("type", "must be one of exam, assignment, task, announcement")
	}

	fields := models.ActivityFields{
		Title:       s.clean(req.Title),
		Subject:     s.clean(req.Subject),
		Description: s.clean(req.Description),
		Date:        date,
		Type:        activityType,
	}
	if fields.Title == "" {
		return models.ActivityFields{}, invalid("title", "is required")
	}
	if fields.Subject == "" {
		return models.ActivityFields{}, invalid("subject", "is required")
	}

	return fields, nil
}

func (s *activityService) attachmentChange(ctx context.Context, req dto.ActivityRequest, upload *dto.FileUpload) (repository.AttachmentChange, error) {
	switch {
	case upload != nil:
		stored, err := s.attachments.FromUpload(ctx, *upload)
		if err != nil {
			return repository.AttachmentChange{}, err
		}
		return repository.ReplaceAttachment(stored), nil
	case req.Attachment != nil:
		if err := s.validator.Struct(req.Attachment); err != nil {
			return repository.AttachmentChange{}, err
		}
		stored, err := s.attachments.FromPayload(ctx, *req.Attachment)
		if err != nil {
			return repository.AttachmentChange{}, err
		}
		return repository.ReplaceAttachment(stored), nil
	case req.RemoveAttachment:
		return repository.RemoveAttachment(), nil
	default:
		return repository.KeepAttachment(), nil
	}
}

func (s *activityService) clean(value string) string {
	return sanitizeText(s.sanitizer, value)
}

func (s *activityService) notify(ctx context.Context, reason string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyChanged(ctx, reason)
}
