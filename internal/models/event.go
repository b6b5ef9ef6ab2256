package models

import "time"

// Recognized category labels. The store accepts any string; consumers display
// anything outside this set as CategoryOther.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryHealth   = "health"
	CategoryOther    = "other"
)

// Event represents a single scheduled item held by the store.
type Event struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"` // YYYY-MM-DD
	Time        string `json:"time"` // HH:MM, 24-hour
	Description string `json:"description"`
	Category    string `json:"category"`
}

// EventInput is the payload for creating an event. Description and Category
// are optional and defaulted by the store.
type EventInput struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// EventPatch is the payload for updating an event. A nil field keeps the
// stored value; a non-nil field overwrites it, including with "".
type EventPatch struct {
	ID          *int64  `json:"id"`
	Title       *string `json:"title,omitempty"`
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// Apply merges the non-nil fields of p onto ev and returns the result.
func (p EventPatch) Apply(ev Event) Event {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Date != nil {
		ev.Date = *p.Date
	}
	if p.Time != nil {
		ev.Time = *p.Time
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Category != nil {
		ev.Category = *p.Category
	}
	return ev
}

// KnownCategory reports whether c is one of the recognized labels.
func KnownCategory(c string) bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryHealth, CategoryOther:
		return true
	}
	return false
}

// StartLayout is the layout of Date and Time joined by a space.
const StartLayout = "2006-01-02 15:04"

// Start parses the event's date and time in loc.
func (e Event) Start(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(StartLayout, e.Date+" "+e.Time, loc)
}
