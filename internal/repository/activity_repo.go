package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/mural-go-api/internal/models"
)

var (
	// ErrActivityNotFound is returned when an update targets an unknown id.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrStoreUnavailable wraps every backend failure.
	ErrStoreUnavailable = errors.New("activity store unavailable")
)

// AttachmentChangeKind selects how an update treats the stored attachment.
type AttachmentChangeKind int

// Attachment change kinds.
const (
	AttachmentKeep AttachmentChangeKind = iota
	AttachmentRemove
	AttachmentReplace
)

// AttachmentChange describes the attachment part of an update.
type AttachmentChange struct {
	Kind       AttachmentChangeKind
	Attachment *models.Attachment
}

// KeepAttachment leaves the stored attachment untouched.
func KeepAttachment() AttachmentChange {
	return AttachmentChange{Kind: AttachmentKeep}
}

// RemoveAttachment clears the stored attachment.
func RemoveAttachment() AttachmentChange {
	return AttachmentChange{Kind: AttachmentRemove}
}

// ReplaceAttachment stores a new attachment.
func ReplaceAttachment(attachment models.Attachment) AttachmentChange {
	return AttachmentChange{Kind: AttachmentReplace, Attachment: &attachment}
}

func (c AttachmentChange) apply(current *models.Attachment) *models.Attachment {
	switch c.Kind {
	case AttachmentRemove:
		return nil
	case AttachmentReplace:
		return c.Attachment
	default:
		return current
	}
}

// ActivityStore persists board activities. List returns every stored activity, expired ones
// included, ordered by date then creation.
type ActivityStore interface {
	List(ctx context.Context) ([]models.Activity, error)
	Get(ctx context.Context, id string) (models.Activity, error)
	Create(ctx context.Context, fields models.ActivityFields, attachment *models.Attachment) (models.Activity, error)
	Update(ctx context.Context, id string, fields models.ActivityFields, change AttachmentChange) (models.Activity, error)
	Remove(ctx context.Context, id string) error
}

// SortActivities orders activities by date, then creation time, then id.
func SortActivities(items []models.Activity) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

type activityRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewActivityRepository constructs an activity store backed by GORM.
func NewActivityRepository(db *gorm.DB) ActivityStore {
	return &activityRepository{db: db, now: time.Now}
}

func (r *activityRepository) List(ctx context.Context) ([]models.Activity, error) {
	var items []models.Activity
	if err := r.db.WithContext(ctx).Order("date ASC, created_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, unavailable("list activities", err)
	}
	return items, nil
}

func (r *activityRepository) Get(ctx context.Context, id string) (models.Activity, error) {
	var activity models.Activity
	if err := r.db.WithContext(ctx).First(&activity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Activity{}, ErrActivityNotFound
		}
		return models.Activity{}, unavailable("get activity", err)
	}
	return activity, nil
}

func (r *activityRepository) Create(ctx context.Context, fields models.ActivityFields, attachment *models.Attachment) (models.Activity, error) {
	activity := models.Activity{
		ID:         uuid.NewString(),
		CreatedAt:  r.now().UTC(),
		Attachment: attachment,
	}
	activity.Apply(fields)

	if err := r.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return models.Activity{}, unavailable("create activity", err)
	}
	return activity, nil
}

func (r *activityRepository) Update(ctx context.Context, id string, fields models.ActivityFields, change AttachmentChange) (models.Activity, error) {
	var updated models.Activity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			return err
		}
		updated.Apply(fields)
		updated.Attachment = change.apply(updated.Attachment)
		return tx.Save(&updated).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Activity{}, ErrActivityNotFound
		}
		return models.Activity{}, unavailable("update activity", err)
	}
	return updated, nil
}

func (r *activityRepository) Remove(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Activity{}, "id = ?", id).Error; err != nil {
		return unavailable("remove activity", err)
	}
	return nil
}
