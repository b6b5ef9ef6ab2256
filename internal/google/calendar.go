package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"scheduler/internal/models"
)

const (
	credentialsFile = "credentials.json"
)

// CalendarClient pushes events into one Google calendar.
type CalendarClient struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
	loc        *time.Location
	duration   time.Duration
}

// NewClient creates a new Google Calendar client.
// It loads the OAuth token saved by the auth command for accountName, from a
// file named token-<accountName>.json.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName, calendarID string, loc *time.Location, duration time.Duration) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(TokenFile(accountName))
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return newCalendarClient(service, logger, calendarID, loc, duration), nil
}

func newCalendarClient(service *calendar.Service, logger *slog.Logger, calendarID string, loc *time.Location, duration time.Duration) *CalendarClient {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarClient{service: service, logger: logger, calendarID: calendarID, loc: loc, duration: duration}
}

func (c *CalendarClient) Name() string { return "google" }

// Put inserts the event, or updates the Google event remoteID when set, and
// returns the Google event id.
func (c *CalendarClient) Put(ctx context.Context, event models.Event, remoteID string) (string, error) {
	gev, err := c.toGoogleEvent(event)
	if err != nil {
		return "", err
	}

	var saved *calendar.Event
	if remoteID == "" {
		saved, err = c.service.Events.Insert(c.calendarID, gev).Context(ctx).Do()
	} else {
		saved, err = c.service.Events.Update(c.calendarID, remoteID, gev).Context(ctx).Do()
	}
	if err != nil {
		return "", fmt.Errorf("failed to save event in google calendar: %w", err)
	}

	c.logger.Info("Successfully pushed event to Google Calendar", "title", event.Title, "googleID", saved.Id)
	return saved.Id, nil
}

// Remove deletes the Google event remoteID.
func (c *CalendarClient) Remove(ctx context.Context, remoteID string) error {
	if err := c.service.Events.Delete(c.calendarID, remoteID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event from google calendar: %w", err)
	}
	c.logger.Info("Removed event from Google Calendar", "googleID", remoteID)
	return nil
}

// toGoogleEvent converts an internal Event to the Google Calendar shape.
func (c *CalendarClient) toGoogleEvent(event models.Event) (*calendar.Event, error) {
	start, err := event.Start(c.loc)
	if err != nil {
		return nil, fmt.Errorf("event %d has no usable date/time: %w", event.ID, err)
	}
	end := start.Add(c.duration)

	return &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.loc.String()},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"category": event.Category},
		},
	}, nil
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// TokenFile is the file the token for accountName is kept in.
func TokenFile(accountName string) string {
	return fmt.Sprintf("token-%s.json", accountName)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
