package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scheduler/internal/ics"
	"scheduler/internal/messages"
	"scheduler/internal/metrics"
	"scheduler/internal/models"
	"scheduler/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, es EventStore) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	cat, err := messages.New("en")
	require.NoError(t, err)
	m := metrics.New(es.Len)
	s := New(Options{
		Store:    es,
		Catalog:  cat,
		Metrics:  m,
		Calendar: ics.Options{Location: time.UTC, Duration: time.Hour},
		Logger:   discardLogger(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, m
}

func do(t *testing.T, method, url, body string, header ...string) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res.StatusCode, env
}

func decodeEvent(t *testing.T, raw json.RawMessage) models.Event {
	t.Helper()
	var ev models.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func decodeEvents(t *testing.T, raw json.RawMessage) []models.Event {
	t.Helper()
	var evs []models.Event
	require.NoError(t, json.Unmarshal(raw, &evs))
	return evs
}

func TestCreateListUpdateDeleteFlow(t *testing.T) {
	ts, _ := newTestServer(t, store.New(discardLogger()))
	url := ts.URL + "/api/events"

	code, env := do(t, http.MethodPost, url, `{"title":"Standup","date":"2024-01-01","time":"09:00"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)
	assert.Equal(t, "Event created.", env.Message)
	created := decodeEvent(t, env.Data)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "other", created.Category)
	assert.Equal(t, "", created.Description)

	_, _ = do(t, http.MethodPost, url, `{"title":"Other day","date":"2024-01-02","time":"08:00","category":"work"}`)

	code, env = do(t, http.MethodGet, url+"?date=2024-01-01", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Listed events for 2024-01-01.", env.Message)
	assert.Equal(t, []models.Event{created}, decodeEvents(t, env.Data))

	code, env = do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Listed all events.", env.Message)
	assert.Len(t, decodeEvents(t, env.Data), 2)

	body, _ := json.Marshal(map[string]any{"id": created.ID, "time": "10:00"})
	code, env = do(t, http.MethodPut, url, string(body))
	require.Equal(t, http.StatusOK, code)
	updated := decodeEvent(t, env.Data)
	assert.Equal(t, "Standup", updated.Title)
	assert.Equal(t, "10:00", updated.Time)

	delURL := ts.URL + "/api/events?id=" + jsonNumber(created.ID)
	code, env = do(t, http.MethodDelete, delURL, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Event deleted.", env.Message)
	assert.Equal(t, updated, decodeEvent(t, env.Data))

	code, env = do(t, http.MethodDelete, delURL, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Event not found.", env.Message)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestEmptyListIsArray(t *testing.T) {
	ts, _ := newTestServer(t, store.New(discardLogger()))
	code, env := do(t, http.MethodGet, ts.URL+"/api/events?date=2099-01-01", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestCreateValidation(t *testing.T) {
	st := store.New(discardLogger())
	ts, _ := newTestServer(t, st)
	url := ts.URL + "/api/events"

	for _, body := range []string{`{}`, `{"date":"2024-01-01","time":"09:00"}`, `{"title":"A","time":"09:00"}`, `{"title":"A","date":"2024-01-01","time":""}`} {
		code, env := do(t, http.MethodPost, url, body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.False(t, env.Success)
		assert.Equal(t, "Title, date and time are required.", env.Message)
		assert.Empty(t, env.Data)
	}
	assert.Equal(t, 0, st.Len())
}

func TestBodiesAreDecodedStrictly(t *testing.T) {
	st := store.New(discardLogger())
	ts, _ := newTestServer(t, st)
	url := ts.URL + "/api/events"

	code, env := do(t, http.MethodPost, url, `{"title":"A","date":"2024-01-01","time":"09:00","owner":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "The request body is not valid.", env.Message)

	code, _ = do(t, http.MethodPost, url, `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPut, url, `{"id":"1","title":"A"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 0, st.Len())
}

func TestUpdateErrors(t *testing.T) {
	st := store.New(discardLogger())
	ev, err := st.Create(models.EventInput{Title: "A", Date: "2024-01-01", Time: "09:00"})
	require.NoError(t, err)
	ts, _ := newTestServer(t, st)
	url := ts.URL + "/api/events"

	code, env := do(t, http.MethodPut, url, `{"title":"X"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "The id of the event to update is required.", env.Message)

	code, env = do(t, http.MethodPut, url, `{"id":999,"title":"X"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Event not found.", env.Message)

	code, env = do(t, http.MethodPut, url, `{"id":`+jsonNumber(ev.ID)+`,"title":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Title, date and time are required.", env.Message)

	assert.Equal(t, []models.Event{ev}, st.List(""))
}

func TestDeleteMissingID(t *testing.T) {
	ts, _ := newTestServer(t, store.New(discardLogger()))
	for _, q := range []string{"", "?id=", "?id=0", "?id=abc"} {
		code, env := do(t, http.MethodDelete, ts.URL+"/api/events"+q, "")
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.Equal(t, "The id of the event to delete is required.", env.Message)
	}
}

func TestLocalizedMessages(t *testing.T) {
	ts, _ := newTestServer(t, store.New(discardLogger()))
	code, env := do(t, http.MethodPost, ts.URL+"/api/events", `{}`, "Accept-Language", "ko-KR,ko;q=0.9")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "제목, 날짜, 시간은 필수 입력 항목입니다.", env.Message)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, store.New(discardLogger()))
	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/api/events", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	assert.Equal(t, "GET, POST, PUT, DELETE", res.Header.Get("Allow"))
}

type panicStore struct{}

func (panicStore) List(string) []models.Event { panic("boom") }
func (panicStore) Len() int                   { return 0 }
func (panicStore) Create(models.EventInput) (models.Event, error) {
	return models.Event{}, errors.New("disk on fire")
}
func (panicStore) Update(models.EventPatch) (models.Event, error) { panic("boom") }
func (panicStore) Delete(int64) (models.Event, error)            { panic("boom") }

func TestUnexpectedFailuresBecome500(t *testing.T) {
	ts, _ := newTestServer(t, panicStore{})
	url := ts.URL + "/api/events"

	code, env := do(t, http.MethodGet, url, "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Failed to list events.", env.Message)

	code, env = do(t, http.MethodPost, url, `{"title":"A","date":"2024-01-01","time":"09:00"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to create the event.", env.Message)

	code, env = do(t, http.MethodPut, url, `{"id":1}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to update the event.", env.Message)

	code, env = do(t, http.MethodDelete, url+"?id=1", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to delete the event.", env.Message)
}

func TestCalendarFeed(t *testing.T) {
	st := store.New(discardLogger())
	_, _ = st.Create(models.EventInput{Title: "A", Date: "2024-01-01", Time: "09:00"})
	_, _ = st.Create(models.EventInput{Title: "B", Date: "2024-01-02", Time: "09:00"})
	ts, _ := newTestServer(t, st)

	res, err := http.Get(ts.URL + "/api/events.ics?date=2024-01-02")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/calendar")

	cal, err := ical.NewDecoder(res.Body).Decode()
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	summary, err := events[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "B", summary)
}

func TestHealthAndMetrics(t *testing.T) {
	st := store.New(discardLogger())
	st.Seed("2024-01-01")
	ts, _ := newTestServer(t, st)

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	res.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 3, health["events"])
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))

	_, _ = do(t, http.MethodGet, ts.URL+"/api/events", "")

	res, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `scheduler_http_requests_total{code="200",operation="list"} 1`)
	assert.Contains(t, string(body), "scheduler_events 3")
}

func TestServeValidationAndShutdown(t *testing.T) {
	cat, err := messages.New("en")
	require.NoError(t, err)
	s := New(Options{Store: store.New(discardLogger()), Catalog: cat, Logger: discardLogger()})
	assert.Error(t, s.Serve(context.Background(), ""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestCalendarFeedForEmptyDay(t *testing.T) {
	st := store.New(discardLogger())
	_, _ = st.Create(models.EventInput{Title: "A", Date: "2024-01-01", Time: "whenever"})
	ts, _ := newTestServer(t, st)

	for _, q := range []string{"?date=2099-01-01", ""} {
		res, err := http.Get(ts.URL + "/api/events.ics" + q)
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.StatusCode, q)
		assert.Empty(t, body)
	}
}

func TestCalendarFeedWithCarriageReturns(t *testing.T) {
	st := store.New(discardLogger())
	_, _ = st.Create(models.EventInput{Title: "A", Date: "2024-01-01", Time: "09:00"})
	_, _ = st.Create(models.EventInput{Title: "B", Date: "2024-01-01", Time: "10:00", Description: "line1\r\nline2"})
	ts, _ := newTestServer(t, st)

	res, err := http.Get(ts.URL + "/api/events.ics")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	cal, err := ical.NewDecoder(res.Body).Decode()
	require.NoError(t, err)
	assert.Len(t, cal.Events(), 2)
}

func TestCalendarFeedFailureIs500(t *testing.T) {
	ts, _ := newTestServer(t, panicStore{})
	code, env := do(t, http.MethodGet, ts.URL+"/api/events.ics", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Failed to render the calendar.", env.Message)
}

func TestDeleteReadsLeadingDigits(t *testing.T) {
	st := store.New(discardLogger())
	ev, err := st.Create(models.EventInput{Title: "A", Date: "2024-01-01", Time: "09:00"})
	require.NoError(t, err)
	ts, _ := newTestServer(t, st)

	code, env := do(t, http.MethodDelete, ts.URL+"/api/events?id="+jsonNumber(ev.ID)+"abc", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, ev, decodeEvent(t, env.Data))
	assert.Equal(t, 0, st.Len())
}

func TestQueryID(t *testing.T) {
	cases := map[string]int64{
		"":      0,
		"abc":   0,
		"0":     0,
		"12":    12,
		"12abc": 12,
		" 7":    7,
		"+5":    5,
		"-3":    -3,
		"-":     0,
		"1.9":   1,
	}
	for raw, want := range cases {
		assert.Equal(t, want, queryID(raw), raw)
	}
}
