package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/message"

	"scheduler/internal/ics"
	"scheduler/internal/messages"
	"scheduler/internal/metrics"
	"scheduler/internal/models"
	"scheduler/internal/store"
)

const maxBodyBytes = 1 << 20

// EventStore is the set of operations the API exposes over HTTP.
type EventStore interface {
	List(date string) []models.Event
	Create(in models.EventInput) (models.Event, error)
	Update(patch models.EventPatch) (models.Event, error)
	Delete(id int64) (models.Event, error)
	Len() int
}

// Envelope wraps every response body of the event endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

type Server struct {
	store    EventStore
	catalog  *messages.Catalog
	metrics  *metrics.Metrics
	calendar ics.Options
	log      *slog.Logger
	httpSrv  *http.Server
}

type Options struct {
	Store    EventStore
	Catalog  *messages.Catalog
	Metrics  *metrics.Metrics
	Calendar ics.Options
	Logger   *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    opts.Store,
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		calendar: opts.Calendar,
		log:      logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("GET /api/events.ics", s.instrument("ics", s.recoverWith(messages.ExportFailed, s.handleICS)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.httpSrv = &http.Server{Handler: s.logRequests(mux), ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Serve listens on addr and blocks until the server stops. Cancelling ctx
// shuts it down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("bind address required")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("Event API listening", "addr", ln.Addr().String())
	go s.shutdownOnContext(ctx)
	if err := s.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdownOnContext(ctx context.Context) {
	<-ctx.Done()
	timeout, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(timeout)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.instrument("list", s.recoverWith(messages.ListFailed, s.handleList))(w, r)
	case http.MethodPost:
		s.instrument("create", s.recoverWith(messages.CreateFailed, s.handleCreate))(w, r)
	case http.MethodPut:
		s.instrument("update", s.recoverWith(messages.UpdateFailed, s.handleUpdate))(w, r)
	case http.MethodDelete:
		s.instrument("delete", s.recoverWith(messages.DeleteFailed, s.handleDelete))(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeErr(w, http.StatusMethodNotAllowed, s.printer(r).Sprintf(messages.MethodNotAllowed))
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	p := s.printer(r)
	date := r.URL.Query().Get("date")
	events := s.store.List(date)
	msg := p.Sprintf(messages.ListedAll)
	if date != "" {
		msg = p.Sprintf(messages.ListedDate, date)
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: events, Message: msg})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := s.printer(r)
	var in models.EventInput
	if err := decodeStrict(w, r, &in); err != nil {
		s.log.Debug("Rejected create body", "error", err)
		writeErr(w, http.StatusBadRequest, p.Sprintf(messages.InvalidBody))
		return
	}
	ev, err := s.store.Create(in)
	if err != nil {
		s.writeStoreErr(w, p, err, messages.RequiredFields, messages.CreateFailed)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: ev, Message: p.Sprintf(messages.Created)})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p := s.printer(r)
	var patch models.EventPatch
	if err := decodeStrict(w, r, &patch); err != nil {
		s.log.Debug("Rejected update body", "error", err)
		writeErr(w, http.StatusBadRequest, p.Sprintf(messages.InvalidBody))
		return
	}
	ev, err := s.store.Update(patch)
	if err != nil {
		s.writeStoreErr(w, p, err, messages.UpdateIDRequired, messages.UpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: ev, Message: p.Sprintf(messages.Updated)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := s.printer(r)
	id := queryID(r.URL.Query().Get("id"))
	ev, err := s.store.Delete(id)
	if err != nil {
		s.writeStoreErr(w, p, err, messages.DeleteIDRequired, messages.DeleteFailed)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: ev, Message: p.Sprintf(messages.Deleted)})
}

// handleICS answers 204 when there is nothing to put in the calendar.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	events := s.store.List(r.URL.Query().Get("date"))
	var buf bytes.Buffer
	err := ics.Write(&buf, events, s.calendar, s.log)
	switch {
	case errors.Is(err, ics.ErrEmpty):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		s.log.Error("Failed to render calendar feed", "error", err)
		writeErr(w, http.StatusInternalServerError, s.printer(r).Sprintf(messages.ExportFailed))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "events": s.store.Len()})
}

// writeStoreErr maps store errors to statuses. badRequest is the message for
// the operation's 400 case; failed is the generic 500 message.
func (s *Server) writeStoreErr(w http.ResponseWriter, p *message.Printer, err error, badRequest, failed string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeErr(w, http.StatusBadRequest, p.Sprintf(messages.RequiredFields))
	case errors.Is(err, store.ErrMissingID):
		writeErr(w, http.StatusBadRequest, p.Sprintf(badRequest))
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, p.Sprintf(messages.NotFound))
	default:
		s.log.Error("Event store failure", "error", err)
		writeErr(w, http.StatusInternalServerError, p.Sprintf(failed))
	}
}

func (s *Server) printer(r *http.Request) *message.Printer {
	return s.catalog.Printer(r.Header.Get("Accept-Language"))
}

// recoverWith turns a panic in next into a 500 envelope carrying failed.
func (s *Server) recoverWith(failed string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("Recovered from panic in event handler", "panic", rec, "path", r.URL.Path)
				writeErr(w, http.StatusInternalServerError, s.printer(r).Sprintf(failed))
			}
		}()
		next(w, r)
	}
}

func (s *Server) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next(rec, r)
		s.metrics.Observe(operation, rec.status, time.Since(started))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.log.Log(r.Context(), level, "Handled request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// queryID reads the leading integer of raw, ignoring whatever follows it, so
// "12abc" is 12. No digits at all gives 0, which the store treats as missing.
func queryID(raw string) int64 {
	digits := strings.TrimLeft(raw, " \t\n\r")
	end := 0
	if end < len(digits) && (digits[end] == '+' || digits[end] == '-') {
		end++
	}
	start := end
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	id, err := strconv.ParseInt(digits[:end], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func decodeStrict(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Envelope{Success: false, Message: msg})
}
