package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/mural-go-api/internal/models"
)

type memoryActivityStore struct {
	mu    sync.RWMutex
	items []models.Activity
	now   func() time.Time
}

// NewMemoryActivityStore returns a process-local store. Contents are lost on restart.
func NewMemoryActivityStore() ActivityStore {
	return &memoryActivityStore{now: time.Now}
}

func (s *memoryActivityStore) List(context.Context) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Activity, len(s.items))
	for i, item := range s.items {
		out[i] = cloneActivity(item)
	}
	// Insertion order already breaks date ties.
	sortByDate(out)
	return out, nil
}

func (s *memoryActivityStore) Get(_ context.Context, id string) (models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return cloneActivity(item), nil
		}
	}
	return models.Activity{}, ErrActivityNotFound
}

func (s *memoryActivityStore) Create(_ context.Context, fields models.ActivityFields, attachment *models.Attachment) (models.Activity, error) {
	activity := models.Activity{
		ID:         uuid.NewString(),
		CreatedAt:  s.now().UTC(),
		Attachment: copyAttachment(attachment),
	}
	activity.Apply(fields)

	s.mu.Lock()
	s.items = append(s.items, activity)
	s.mu.Unlock()

	return cloneActivity(activity), nil
}

func (s *memoryActivityStore) Update(_ context.Context, id string, fields models.ActivityFields, change AttachmentChange) (models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		updated := s.items[i]
		updated.Apply(fields)
		updated.Attachment = copyAttachment(change.apply(updated.Attachment))
		s.items[i] = updated
		return cloneActivity(updated), nil
	}
	return models.Activity{}, ErrActivityNotFound
}

func (s *memoryActivityStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func sortByDate(items []models.Activity) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})
}

func cloneActivity(activity models.Activity) models.Activity {
	activity.Attachment = copyAttachment(activity.Attachment)
	activity.AttachmentRaw = nil
	return activity
}

func copyAttachment(attachment *models.Attachment) *models.Attachment {
	if attachment == nil {
		return nil
	}
	clone := *attachment
	return &clone
}
