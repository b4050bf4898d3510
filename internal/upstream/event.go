package upstream

import (
	"time"

	"github.com/asean-events/checkin-station/internal/models"
)

// Layouts accepted for event timestamps. Zone-less values are read in the
// display timezone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

type wireEvent struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	StartsAt *string `json:"starts_at"`
	EndsAt   *string `json:"ends_at"`
	IsActive *bool   `json:"is_active"`
	Phase    string  `json:"phase"`
}

func (w wireEvent) toEvent(loc *time.Location) models.Event {
	return models.Event{
		ID:       w.ID,
		Title:    w.Title,
		StartsAt: parseTime(w.StartsAt, loc),
		EndsAt:   parseTime(w.EndsAt, loc),
		IsActive: w.IsActive,
		Phase:    models.EventPhase(w.Phase),
	}
}

func parseTime(s *string, loc *time.Location) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, *s, loc); err == nil {
			return &t
		}
	}
	return nil
}
