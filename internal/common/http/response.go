// Package http provides the JSON response helpers and router setup shared by the HTTP entry points.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON writes data as a JSON body with the given status.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Success writes a 200 response wrapping data.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// Error writes a failed response with the given status.
func Error(w http.ResponseWriter, err error, statusCode int) {
	JSON(w, statusCode, Response{Success: false, Error: err.Error()})
}

// HandleError picks the status code from the sentinel the error wraps.
func HandleError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, errors.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidInput):
		statusCode = http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
	}

	Error(w, err, statusCode)
}

// NewRouter creates a chi router with the standard middleware stack.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	return r
}
