package surface

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of a failed call.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Status    int       `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler serves the method table over HTTP:
//
//	GET  /healthz
//	GET  /methods
//	POST /call/{method}   body: JSON array of positional arguments
func (s *Surface) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.Get("/methods", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, s.Methods())
	})
	router.Post("/call/{method}", s.handleCall)
	return router
}

func (s *Surface) handleCall(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.Call(r.Context(), method, body)
	switch {
	case errors.Is(err, ErrUnknownMethod):
		respondError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, ErrBadArguments):
		respondError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	setJSONHeaders(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func setJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

func respondJSON(w http.ResponseWriter, payload any) {
	setJSONHeaders(w)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	setJSONHeaders(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     http.StatusText(status),
		Status:    status,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// NewServer wraps h with the timeouts used for the serve command.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
}
