package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityType classifies a board entry.
type ActivityType string

// Supported activity types.
const (
	ActivityTypeExam         ActivityType = "exam"
	ActivityTypeAssignment   ActivityType = "assignment"
	ActivityTypeTask         ActivityType = "task"
	ActivityTypeAnnouncement ActivityType = "announcement"
)

// ActivityTypes lists every valid type in display order.
var ActivityTypes = []ActivityType{
	ActivityTypeExam,
	ActivityTypeAssignment,
	ActivityTypeTask,
	ActivityTypeAnnouncement,
}

// ParseActivityType normalises and validates a type name.
func ParseActivityType(value string) (ActivityType, error) {
	candidate := ActivityType(strings.ToLower(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid activity type %q", value)
}

// Valid reports whether t is one of the enumerated types.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Attachment is a file attached to an activity. Content is either a data URL or a
// dereferenceable URL, depending on the attachment backend.
type Attachment struct {
	Name     string `json:"name" bson:"name"`
	MimeType string `json:"type" bson:"type"`
	Content  string `json:"data" bson:"data"`
}

// ActivityFields holds the administrator-mutable part of an activity.
type ActivityFields struct {
	Title       string
	Subject     string
	Description string
	Date        Date
	Type        ActivityType
}

// Activity is a board entry with a due date.
type Activity struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Subject       string         `gorm:"size:255;not null" json:"subject"`
	Description   string         `gorm:"type:text" json:"description"`
	Date          Date           `gorm:"type:varchar(10);index;not null" json:"date"`
	Type          ActivityType   `gorm:"size:32;not null" json:"type"`
	CreatedAt     time.Time      `gorm:"index;autoCreateTime:false" json:"createdAt"`
	AttachmentRaw datatypes.JSON `gorm:"column:attachment" json:"-"`
	Attachment    *Attachment    `gorm:"-" json:"attachment,omitempty"`
}

// Fields returns the mutable fields of the activity.
func (a Activity) Fields() ActivityFields {
	return ActivityFields{
		Title:       a.Title,
		Subject:     a.Subject,
		Description: a.Description,
		Date:        a.Date,
		Type:        a.Type,
	}
}

// Apply overwrites the mutable fields.
func (a *Activity) Apply(fields ActivityFields) {
	a.Title = fields.Title
	a.Subject = fields.Subject
	a.Description = fields.Description
	a.Date = fields.Date
	a.Type = fields.Type
}

// HasAttachment reports whether an attachment is present.
func (a Activity) HasAttachment() bool {
	return a.Attachment != nil
}

// BeforeSave encodes the attachment column; absent attachments are stored as NULL.
func (a *Activity) BeforeSave(tx *gorm.DB) error {
	raw, err := EncodeAttachment(a.Attachment)
	if err != nil {
		return err
	}
	a.AttachmentRaw = raw
	return nil
}

// AfterFind hydrates the attachment after retrieval.
func (a *Activity) AfterFind(tx *gorm.DB) error {
	attachment, err := DecodeAttachment(a.AttachmentRaw)
	if err != nil {
		return err
	}
	a.Attachment = attachment
	return nil
}

// EncodeAttachment serialises an optional attachment for a JSON column.
func EncodeAttachment(attachment *Attachment) (datatypes.JSON, error) {
	if attachment == nil {
		return nil, nil
	}
	payload, err := json.Marshal(attachment)
	if err != nil {
		return nil, fmt.Errorf("encode attachment: %w", err)
	}
	return datatypes.JSON(payload), nil
}

// DecodeAttachment is the inverse of EncodeAttachment.
func DecodeAttachment(raw datatypes.JSON) (*Attachment, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var attachment Attachment
	if err := json.Unmarshal([]byte(trimmed), &attachment); err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return &attachment, nil
}
