package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"scheduler/internal/ics"
	"scheduler/internal/models"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "scheduler/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient writes events into one calendar collection of a CalDAV server.
type CalDAVClient struct {
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
	calendar     ics.Options
}

// NewClient connects to endpoint and locates the calendar named calendarName.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string, opts ics.Options) (*CalDAVClient, error) {
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := findCalendar(ctx, caldavClient, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return &CalDAVClient{
		webdavClient: webdavClient,
		logger:       logger,
		calendarPath: calendarPath,
		calendar:     opts,
	}, nil
}

func (c *CalDAVClient) Name() string { return "icloud" }

// Put writes the event as <uid>.ics, overwriting any previous copy. An empty
// uid means the event has not been pushed before and gets a fresh one.
func (c *CalDAVClient) Put(ctx context.Context, event models.Event, uid string) (string, error) {
	if uid == "" {
		uid = GenerateUID()
	}
	c.logger.Debug("Pushing event to CalDAV", "eventTitle", event.Title, "uid", uid)

	vevent, err := ics.Component(event, uid, c.calendar)
	if err != nil {
		return "", err
	}
	cal := ics.NewCalendar()
	cal.Children = append(cal.Children, vevent)

	writer, err := c.webdavClient.Create(ctx, c.eventPath(uid))
	if err != nil {
		return "", fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to upload event: %w", err)
	}

	c.logger.Info("Successfully pushed event to CalDAV", "eventTitle", event.Title)
	return uid, nil
}

// Remove deletes the calendar object for uid.
func (c *CalDAVClient) Remove(ctx context.Context, uid string) error {
	if err := c.webdavClient.RemoveAll(ctx, c.eventPath(uid)); err != nil {
		return fmt.Errorf("failed to remove event from CalDAV server: %w", err)
	}
	c.logger.Info("Removed event from CalDAV", "uid", uid)
	return nil
}

func (c *CalDAVClient) eventPath(uid string) string {
	return path.Join(c.calendarPath, uid+".ics")
}

// findCalendar discovers the user's calendars and returns the path of the one
// with the matching name.
func findCalendar(ctx context.Context, client *caldav.Client, name string) (string, error) {
	principalPath, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return strings.TrimSuffix(cal.Path, "/") + "/", nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
