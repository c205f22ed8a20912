package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"quiz-attempt-engine/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	OK        bool          `json:"ok"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *errorPayload `json:"error,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, status, envelope{OK: true, Data: data, RequestID: middleware.GetReqID(r.Context())})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	write(w, status, envelope{
		Error:     &errorPayload{Code: codeFromStatus(status), Message: msg},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptFinished),
		errors.Is(err, domain.ErrAnswerLocked),
		errors.Is(err, domain.ErrQuestionNotActive):
		return http.StatusConflict
	case domain.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}
