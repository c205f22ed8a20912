package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"quiz-attempt-engine/internal/app"
	"quiz-attempt-engine/internal/domain"
)

// AttemptHandler serves the REST side of attempts.
type AttemptHandler struct {
	service  *app.AttemptService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAttemptHandler(service *app.AttemptService, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{service: service, logger: logger, validate: validator.New()}
}

type startRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// Start handles POST /quizzes/{quizID}/attempts.
func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "userId is required")
		return
	}

	view, err := h.service.Start(r.Context(), chi.URLParam(r, "quizID"), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, view)
}

// Get handles GET /attempts/{attemptID}. An attempt that is not live is resumed
// from its snapshot.
func (h *AttemptHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Resume(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// Submit handles POST /attempts/{attemptID}/submit.
func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	view, err := h.service.Resume(r.Context(), attemptID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view.Status.Finished() {
		h.fail(w, r, domain.ErrAttemptFinished)
		return
	}
	sub, err := h.service.Submit(r.Context(), attemptID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, sub)
}

func (h *AttemptHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("attempt request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, status, "")
		return
	}
	writeError(w, r, status, err.Error())
}
