package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quiz-attempt-engine/internal/app"
	"quiz-attempt-engine/internal/logging"
)

// NewRouter wires the REST endpoints and the attempt websocket.
func NewRouter(service *app.AttemptService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	attempts := NewAttemptHandler(service, logger)
	ws := NewWSHandler(service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Post("/quizzes/{quizID}/attempts", attempts.Start)
	r.Route("/attempts/{attemptID}", func(ar chi.Router) {
		ar.Get("/", attempts.Get)
		ar.Post("/submit", attempts.Submit)
		ar.Get("/ws", ws.ServeWS)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
