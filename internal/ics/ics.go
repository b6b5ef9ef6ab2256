// Package ics renders stored events as iCalendar data.
package ics

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"scheduler/internal/models"
)

const ProductID = "-//scheduler//EN"

// ErrEmpty is returned by Write when no event could be rendered. A
// VCALENDAR must hold at least one component.
var ErrEmpty = errors.New("no events to render")

// CR is not escaped by the encoder and makes it fail.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// uidNamespace scopes the name-based UIDs derived from event ids.
var uidNamespace = uuid.MustParse("4f1c7d8e-2b6a-4c3e-9a57-0d8e6b1f2a90")

// Options control how date/time strings become timestamps.
type Options struct {
	Location *time.Location
	Duration time.Duration
	// Now stamps DTSTAMP; time.Now when nil.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// UID returns the stable iCalendar UID for an event id.
func UID(id int64) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatInt(id, 10))).String()
}

// Component converts an event to a VEVENT with the given UID.
func Component(ev models.Event, uid string, opts Options) (*ical.Component, error) {
	start, err := ev.Start(opts.location())
	if err != nil {
		return nil, fmt.Errorf("event %d has no usable date/time: %w", ev.ID, err)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, lineBreaks.Replace(ev.Title))
	ve.Props.SetDateTime(ical.PropDateTimeStamp, opts.now())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(opts.Duration))
	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, lineBreaks.Replace(ev.Description))
	}
	if ev.Category != "" {
		ve.Props.SetText(ical.PropCategories, lineBreaks.Replace(ev.Category))
	}
	return ve, nil
}

// NewCalendar returns an empty VCALENDAR with the required properties set.
func NewCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	return cal
}

// Calendar builds a VCALENDAR holding every event that has a parseable
// date and time. Events that don't are logged and left out.
func Calendar(events []models.Event, opts Options, logger *slog.Logger) *ical.Calendar {
	cal := NewCalendar()
	for _, ev := range events {
		ve, err := Component(ev, UID(ev.ID), opts)
		if err != nil {
			if logger != nil {
				logger.Warn("Skipping event in calendar export", "id", ev.ID, "error", err)
			}
			continue
		}
		cal.Children = append(cal.Children, ve)
	}
	return cal
}

// Write encodes the calendar for events to w. It returns ErrEmpty, writing
// nothing, when none of the events can be rendered.
func Write(w io.Writer, events []models.Event, opts Options, logger *slog.Logger) error {
	cal := Calendar(events, opts, logger)
	if len(cal.Children) == 0 {
		return ErrEmpty
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}
