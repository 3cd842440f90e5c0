package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/mural-go-api/internal/models"
)

// NothingScheduled replaces the activity section when the board is empty.
const NothingScheduled = "There is nothing scheduled on the board right now."

const instructionTimeLayout = "Monday, 2 January 2006, 15:04 MST"

// ContextAssembler renders the standing system instruction of a tutor session.
type ContextAssembler struct {
	Persona  string
	Location *time.Location
}

// Build is a pure function of its arguments.
func (a ContextAssembler) Build(cfg models.AiConfig, activities []models.Activity, now time.Time) string {
	location := a.Location
	if location == nil {
		location = time.UTC
	}

	var b strings.Builder
	if persona := strings.TrimSpace(a.Persona); persona != "" {
		b.WriteString(persona)
		b.WriteString("\n\n")
	}

	b.WriteString("Current date and time: ")
	b.WriteString(now.In(location).Format(instructionTimeLayout))
	b.WriteString("\n\n")

	b.WriteString("Board activities:\n")
	if len(activities) == 0 {
		b.WriteString(NothingScheduled)
		b.WriteString("\n")
	}
	for _, activity := range activities {
		b.WriteString(activityLine(activity))
		b.WriteString("\n")
	}

	b.WriteString("\nCourse context:\n")
	b.WriteString(cfg.Context)

	return b.String()
}

func activityLine(activity models.Activity) string {
	notes := flatten(activity.Description)
	if notes == "" {
		notes = "none"
	}
	hasAttachment := "no"
	if activity.HasAttachment() {
		hasAttachment = "yes"
	}
	return fmt.Sprintf("- %s | %s | %s | subject: %s | notes: %s | attachment: %s",
		activity.Date, activity.Type, flatten(activity.Title), flatten(activity.Subject), notes, hasAttachment)
}

// flatten collapses all whitespace runs, newlines included, into single spaces.
func flatten(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
