package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quiz-attempt-engine/internal/app"
	"quiz-attempt-engine/internal/domain"
)

// Outbound message types that are not attempt events.
const (
	msgState    = "state"
	msgRejected = "rejected"
	msgError    = "error"
)

type WSHandler struct {
	service  *app.AttemptService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// ServeWS attaches a websocket to a live attempt. The attempt is resumed first if
// needed; closing the socket suspends it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	ctx := r.Context()

	view, err := h.service.Resume(ctx, attemptID)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "attempt_id", attemptID, "error", err)
		return
	}
	defer conn.Close()

	if view.Status.Finished() {
		_ = conn.WriteJSON(outboundMessage[domain.AttemptView]{Type: msgState, Payload: view})
		return
	}

	updates, cancel, err := h.service.Subscribe(ctx, attemptID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[messagePayload]{Type: msgError, Payload: messagePayload{Message: err.Error()}})
		return
	}
	defer cancel()
	defer h.suspend(ctx, attemptID)

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "attempt_id", attemptID, "error", err)
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	push(outboundMessage[any]{Type: msgState, Payload: view})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.dispatch(ctx, attemptID, inbound); ok {
			push(msg)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch runs one inbound command and returns the direct reply, if any.
// Progress is otherwise reported through the attempt's event stream.
func (h *WSHandler) dispatch(ctx context.Context, attemptID string, in inboundMessage) (outboundMessage[any], bool) {
	var err error
	switch in.Type {
	case "draft":
		var answer domain.AnswerRecord
		if jsonErr := json.Unmarshal(in.Payload, &answer); jsonErr != nil || answer.QuestionID == "" {
			return errorMessage("invalid draft payload"), true
		}
		err = h.service.SetDraft(ctx, attemptID, answer)
	case "next":
		var view domain.AttemptView
		view, err = h.service.Next(ctx, attemptID)
		if err == nil {
			return outboundMessage[any]{Type: msgState, Payload: view}, true
		}
	case "pause":
		err = h.service.Pause(ctx, attemptID)
	case "resume":
		err = h.service.Unpause(ctx, attemptID)
	case "submit":
		_, err = h.service.Submit(ctx, attemptID)
	case "state":
		var view domain.AttemptView
		view, err = h.service.View(ctx, attemptID)
		if err == nil {
			return outboundMessage[any]{Type: msgState, Payload: view}, true
		}
	default:
		return errorMessage("unsupported message type"), true
	}

	switch {
	case err == nil:
		return outboundMessage[any]{}, false
	case errors.Is(err, domain.ErrAnswerLocked),
		errors.Is(err, domain.ErrQuestionNotActive),
		errors.Is(err, domain.ErrAttemptFinished):
		return outboundMessage[any]{Type: msgRejected, Payload: messagePayload{Message: err.Error()}}, true
	default:
		return errorMessage(err.Error()), true
	}
}

func (h *WSHandler) suspend(ctx context.Context, attemptID string) {
	err := h.service.Suspend(context.WithoutCancel(ctx), attemptID)
	if err != nil && !errors.Is(err, domain.ErrAttemptNotFound) && !errors.Is(err, domain.ErrAttemptFinished) {
		h.logger.Warn("suspend on disconnect failed", "attempt_id", attemptID, "error", err)
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: msgError, Payload: messagePayload{Message: msg}}
}
