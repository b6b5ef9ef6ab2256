// Package agenda keeps a client-side copy of the server's events and shapes
// it for display.
package agenda

import (
	"errors"
	"slices"
	"strings"
	"time"

	"scheduler/internal/models"
)

// ErrRequired mirrors the server's required-field check so a client can fail
// fast. The server still validates.
var ErrRequired = errors.New("title, date and time are required")

// Mirror is a local copy of the event list. It is refreshed wholesale after
// a list and patched with the event returned by each mutation.
type Mirror struct {
	events []models.Event
}

// Replace swaps in a freshly listed set of events.
func (m *Mirror) Replace(events []models.Event) {
	m.events = slices.Clone(events)
}

// Add appends a created event.
func (m *Mirror) Add(ev models.Event) {
	m.events = append(m.events, ev)
}

// Put replaces the event with ev's id, if present.
func (m *Mirror) Put(ev models.Event) {
	for i := range m.events {
		if m.events[i].ID == ev.ID {
			m.events[i] = ev
			return
		}
	}
}

// Remove drops the event with the given id.
func (m *Mirror) Remove(id int64) {
	m.events = slices.DeleteFunc(m.events, func(ev models.Event) bool { return ev.ID == id })
}

// Day returns the events on date ordered by time of day.
func (m *Mirror) Day(date string) []models.Event {
	var out []models.Event
	for _, ev := range m.events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	// HH:MM is zero padded, so string order is time order.
	slices.SortStableFunc(out, func(a, b models.Event) int { return strings.Compare(a.Time, b.Time) })
	return out
}

// CheckRequired reports whether in has every field the server requires.
func CheckRequired(in models.EventInput) error {
	if in.Title == "" || in.Date == "" || in.Time == "" {
		return ErrRequired
	}
	return nil
}

// Clock formats "HH:MM" as a 12-hour time such as "2:30 PM". Values that do
// not parse are returned unchanged.
func Clock(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

var categoryLabels = map[string]string{
	models.CategoryWork:     "Work",
	models.CategoryPersonal: "Personal",
	models.CategoryHealth:   "Health",
	models.CategoryOther:    "Other",
}

// CategoryLabel is the display name of a category; unknown values show as Other.
func CategoryLabel(category string) string {
	if !models.KnownCategory(category) {
		category = models.CategoryOther
	}
	return categoryLabels[category]
}
