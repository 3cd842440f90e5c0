package service

import "github.com/noah-isme/mural-go-api/internal/models"

// IsExpired reports whether an activity due on date should be hidden on today. An activity
// stays visible through its due date and the following day.
func IsExpired(date, today models.Date) bool {
	return today.After(date.AddDays(1))
}

// VisibleActivities drops expired activities and keeps the remaining order by date.
func VisibleActivities(items []models.Activity, today models.Date) []models.Activity {
	visible := make([]models.Activity, 0, len(items))
	for _, item := range items {
		if IsExpired(item.Date, today) {
			continue
		}
		visible = append(visible, item)
	}
	sortByDate(visible)
	return visible
}
