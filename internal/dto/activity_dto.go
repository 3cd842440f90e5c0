package dto

import (
	"time"

	"github.com/noah-isme/mural-go-api/internal/models"
)

// AttachmentPayload is the wire form of an activity attachment. Data is a data URL, bare
// base64 text or, for object-store backends, a URL.
type AttachmentPayload struct {
	Name string `json:"name" validate:"required,max=255"`
	Type string `json:"type" validate:"omitempty,max=255"`
	Data string `json:"data" validate:"required"`
}

// ActivityRequest captures create and update payloads for administrators.
type ActivityRequest struct {
	Title            string             `json:"title" form:"title" validate:"required,max=255"`
	Subject          string             `json:"subject" form:"subject" validate:"required,max=255"`
	Description      string             `json:"description" form:"description" validate:"max=5000"`
	Date             string             `json:"date" form:"date" validate:"required,datetime=2006-01-02"`
	Type             string             `json:"type" form:"type" validate:"required,oneof=exam assignment task announcement"`
	Attachment       *AttachmentPayload `json:"attachment,omitempty" form:"-"`
	RemoveAttachment bool               `json:"removeAttachment,omitempty" form:"removeAttachment"`
}

// FileUpload is a raw attachment received as multipart form data.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// ActivityResponse is the public representation of an activity.
type ActivityResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Subject     string               `json:"subject"`
	Description string               `json:"description"`
	Date        string               `json:"date"`
	Type        models.ActivityType  `json:"type"`
	CreatedAt   time.Time            `json:"createdAt"`
	Attachment  *AttachmentPayload   `json:"attachment,omitempty"`
	Status      *ActivityStatusBadge `json:"status,omitempty"`
}

// ActivityStatusBadge summarises how close an activity is to its due date.
type ActivityStatusBadge struct {
	DaysUntilDue int  `json:"daysUntilDue"`
	DueToday     bool `json:"dueToday"`
	Overdue      bool `json:"overdue"`
}

// BoardFilter narrows the public board.
type BoardFilter struct {
	Type models.ActivityType
}

// BoardResponse wraps the visible activity list.
type BoardResponse struct {
	Items []ActivityResponse `json:"items"`
	Count int                `json:"count"`
	Today string             `json:"today,omitempty"`
}

// NewActivityResponse converts a stored activity into its wire form.
func NewActivityResponse(activity models.Activity) ActivityResponse {
	response := ActivityResponse{
		ID:          activity.ID,
		Title:       activity.Title,
		Subject:     activity.Subject,
		Description: activity.Description,
		Date:        activity.Date.String(),
		Type:        activity.Type,
		CreatedAt:   activity.CreatedAt,
	}
	if activity.Attachment != nil {
		response.Attachment = &AttachmentPayload{
			Name: activity.Attachment.Name,
			Type: activity.Attachment.MimeType,
			Data: activity.Attachment.Content,
		}
	}
	return response
}

// NewActivityResponseSlice converts a list of activities.
func NewActivityResponseSlice(activities []models.Activity) []ActivityResponse {
	responses := make([]ActivityResponse, 0, len(activities))
	for _, activity := range activities {
		responses = append(responses, NewActivityResponse(activity))
	}
	return responses
}

// NewBoardResponse builds the board payload with due-date badges relative to today.
func NewBoardResponse(activities []models.Activity, today models.Date) BoardResponse {
	items := NewActivityResponseSlice(activities)
	for i, activity := range activities {
		days := int(activity.Date.Time().Sub(today.Time()).Hours() / 24)
		items[i].Status = &ActivityStatusBadge{
			DaysUntilDue: days,
			DueToday:     days == 0,
			Overdue:      days < 0,
		}
	}
	return BoardResponse{Items: items, Count: len(items), Today: today.String()}
}

// FeedMessage is pushed to live board websocket clients.
type FeedMessage struct {
	Type    string         `json:"type"`
	Board   *BoardResponse `json:"board,omitempty"`
	Message string         `json:"message,omitempty"`
}
