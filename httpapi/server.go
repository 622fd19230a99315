// Package httpapi exposes a Library over HTTP with JSON bodies.
//
// Failures are reported as {"error": "<code>"} using the library's stable
// error codes. Validation failures map to 400, unknown books or borrowers
// to 404, and conflict, capacity and borrowed-book failures to 409.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/poiesic/circulate"
	"github.com/poiesic/circulate/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestIDHeader carries the request id echoed on every response.
const RequestIDHeader = "X-Request-ID"

// Server routes HTTP requests to a Library.
type Server struct {
	lib      *circulate.Library
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	router   *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// WithGatherer sets the metrics source served on /metrics.
// Default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer creates a Server over lib.
func NewServer(lib *circulate.Library, opts ...Option) *Server {
	s := &Server{
		lib:      lib,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/catalog", s.dropDB).Methods(http.MethodDelete)

	r.HandleFunc("/books", s.addBook).Methods(http.MethodPost)
	r.HandleFunc("/books", s.listBooks).Methods(http.MethodGet)
	r.HandleFunc("/books/{isbn}", s.getBook).Methods(http.MethodGet)
	r.HandleFunc("/books/{isbn}", s.editBook).Methods(http.MethodPatch)
	r.HandleFunc("/books/{isbn}", s.deleteBook).Methods(http.MethodDelete)
	r.HandleFunc("/books/{isbn}/borrowers", s.bookBorrowers).Methods(http.MethodGet)

	r.HandleFunc("/borrowers", s.addBorrower).Methods(http.MethodPost)
	r.HandleFunc("/borrowers", s.searchBorrowers).Methods(http.MethodGet).Queries("name", "{name}")
	r.HandleFunc("/borrowers/{username}", s.getBorrower).Methods(http.MethodGet)
	r.HandleFunc("/borrowers/{username}", s.editBorrower).Methods(http.MethodPatch)
	r.HandleFunc("/borrowers/{username}", s.deleteBorrower).Methods(http.MethodDelete)
	r.HandleFunc("/borrowers/{username}/books", s.borrowedBooks).Methods(http.MethodGet)
	r.HandleFunc("/borrowers/{username}/books/{isbn}", s.checkout).Methods(http.MethodPut)
	r.HandleFunc("/borrowers/{username}/books/{isbn}", s.returnBook).Methods(http.MethodDelete)
	return r
}

// requestID tags the request with an id, taken from the request header
// when present, and logs the request once it completes.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		s.logger.Debug("request",
			"id", id, "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed", time.Since(start))
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorBody struct {
	Error string `json:"error"`
}

// Codes for failures that do not come from the library.
const (
	codeInvalidRequest = "invalid_request"
	codeInternal       = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, ok := core.CodeOf(err)
	if !ok {
		s.logger.Error("request failed", "id", RequestID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: codeInternal})
		return
	}
	writeJSON(w, statusFor(err), errorBody{Error: string(code)})
}

func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict, core.KindCapacity, core.KindInvariant:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errInvalidBody, err)
	}
	return nil
}

var errInvalidBody = errors.New("invalid request body")

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.logger.Debug("bad request", "err", err)
	writeJSON(w, http.StatusBadRequest, errorBody{Error: codeInvalidRequest})
}
