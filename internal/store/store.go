package store

import (
	"errors"
	"log/slog"
	"sync"

	"scheduler/internal/models"
)

var (
	// ErrValidation is returned when title, date or time is missing.
	ErrValidation = errors.New("title, date and time are required")
	// ErrMissingID is returned when an update or delete carries no usable id.
	ErrMissingID = errors.New("event id is required")
	// ErrNotFound is returned when no live event has the requested id.
	ErrNotFound = errors.New("event not found")
)

// Store holds the live events in memory. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	events []models.Event
	nextID int64
	logger *slog.Logger
}

// New creates an empty store. Ids start at 1, so 0 never names an event.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{nextID: 1, logger: logger}
}

// List returns every event, or only those whose date equals date when it is
// non-empty. Order is insertion order.
func (s *Store) List(date string) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, len(s.events))
	for _, ev := range s.events {
		if date != "" && ev.Date != date {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Create validates in, assigns an id and appends the new event.
func (s *Store) Create(in models.EventInput) (models.Event, error) {
	if in.Title == "" || in.Date == "" || in.Time == "" {
		return models.Event{}, ErrValidation
	}
	ev := models.Event{
		Title:       in.Title,
		Date:        in.Date,
		Time:        in.Time,
		Description: in.Description,
		Category:    in.Category,
	}
	if ev.Category == "" {
		ev.Category = models.CategoryOther
	}

	s.mu.Lock()
	ev.ID = s.nextID
	s.nextID++
	s.events = append(s.events, ev)
	s.mu.Unlock()

	s.logger.Info("Event created", "id", ev.ID, "date", ev.Date, "time", ev.Time)
	return ev, nil
}

// Update merges the fields present in patch onto the stored event with the
// same id. Unlike a bare merge, it then applies Create's required-field rule:
// a patch that blanks title, date or time fails with ErrValidation and the
// stored event is left as it was.
func (s *Store) Update(patch models.EventPatch) (models.Event, error) {
	if patch.ID == nil || *patch.ID == 0 {
		return models.Event{}, ErrMissingID
	}
	id := *patch.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Event{}, ErrNotFound
	}
	merged := patch.Apply(s.events[i])
	if merged.Title == "" || merged.Date == "" || merged.Time == "" {
		return models.Event{}, ErrValidation
	}
	s.events[i] = merged

	s.logger.Info("Event updated", "id", id)
	return merged, nil
}

// Delete removes the first event with the given id and returns it.
// An id of 0 is treated as missing.
func (s *Store) Delete(id int64) (models.Event, error) {
	if id == 0 {
		return models.Event{}, ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Event{}, ErrNotFound
	}
	ev := s.events[i]
	s.events = append(s.events[:i], s.events[i+1:]...)

	s.logger.Info("Event deleted", "id", id)
	return ev, nil
}

// Len returns the number of live events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Seed adds a few sample events on date, useful for a first look at the UI.
func (s *Store) Seed(date string) {
	samples := []models.EventInput{
		{Title: "Team meeting", Date: date, Time: "10:00", Description: "Weekly team sync", Category: models.CategoryWork},
		{Title: "Lunch", Date: date, Time: "12:30", Description: "Lunch with a friend", Category: models.CategoryPersonal},
		{Title: "Workout", Date: date, Time: "18:00", Description: "Gym session", Category: models.CategoryHealth},
	}
	for _, in := range samples {
		// Samples always carry the required fields.
		_, _ = s.Create(in)
	}
	s.logger.Debug("Seeded sample events", "date", date, "count", len(samples))
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id int64) int {
	for i, ev := range s.events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}
