// Package client talks to the event API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"scheduler/internal/models"
)

const eventsPath = "/api/events"

// ErrNoEvents is returned by ICS when the server has nothing to export.
var ErrNoEvents = errors.New("no events to export")

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client calls the event API rooted at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
	// Language is sent as Accept-Language when set.
	Language string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// List returns all events, or those on date when it is non-empty.
func (c *Client) List(ctx context.Context, date string) ([]models.Event, error) {
	var events []models.Event
	if err := c.do(ctx, http.MethodGet, eventsPath, dateQuery(date), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) Create(ctx context.Context, in models.EventInput) (models.Event, error) {
	var ev models.Event
	err := c.do(ctx, http.MethodPost, eventsPath, nil, in, &ev)
	return ev, err
}

func (c *Client) Update(ctx context.Context, patch models.EventPatch) (models.Event, error) {
	var ev models.Event
	err := c.do(ctx, http.MethodPut, eventsPath, nil, patch, &ev)
	return ev, err
}

func (c *Client) Delete(ctx context.Context, id int64) (models.Event, error) {
	var ev models.Event
	q := url.Values{"id": {strconv.FormatInt(id, 10)}}
	err := c.do(ctx, http.MethodDelete, eventsPath, q, nil, &ev)
	return ev, err
}

// ICS copies the server's iCalendar feed to w. Nothing is written when it
// returns ErrNoEvents.
func (c *Client) ICS(ctx context.Context, date string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, eventsPath+".ics", dateQuery(date), nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch calendar feed: %w", err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return ErrNoEvents
	default:
		var env envelope
		_ = json.NewDecoder(res.Body).Decode(&env)
		return &APIError{Status: res.StatusCode, Message: env.Message}
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		return fmt.Errorf("failed to read calendar feed: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, q, payload)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return &APIError{Status: res.StatusCode}
	}
	if !env.Success {
		return &APIError{Status: res.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Language != "" {
		req.Header.Set("Accept-Language", c.Language)
	}
	return req, nil
}

func dateQuery(date string) url.Values {
	if date == "" {
		return nil
	}
	return url.Values{"date": {date}}
}
