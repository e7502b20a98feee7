// Package bridge implements the webhook-to-completion-to-push pipeline:
// parse the inbound event, validate it, ask the completion backend for a
// reply, and relay the reply to the sender.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"linebridge/internal/domain"
	"linebridge/internal/line"
)

// Outcomes of a handled delivery, used for logging, metrics, and the journal.
const (
	OutcomeCompleted        = "completed"
	OutcomeRejected         = "rejected"
	OutcomeMalformed        = "malformed"
	OutcomeCompletionFailed = "completion_failed"
	OutcomeRelayFailed      = "relay_failed"
)

const (
	rejectText        = "Please input text."
	fallbackFaultText = "Something is wrong."
)

// Response is the artifact returned to the invoking transport: a status code
// and a pre-serialized JSON body.
type Response struct {
	StatusCode int
	Body       string

	// Outcome and UserID are for the transport's own bookkeeping (metrics,
	// journal); they are not part of the wire response.
	Outcome string
	UserID  string
}

// Handler runs the pipeline for one webhook delivery. It holds no per-call
// state; a single Handler serves concurrent deliveries.
type Handler struct {
	completer domain.Completer
	pusher    domain.Pusher
	logger    *slog.Logger
}

type HandlerConfig struct {
	Completer domain.Completer
	Pusher    domain.Pusher
	Logger    *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		completer: cfg.Completer,
		pusher:    cfg.Pusher,
		logger:    cfg.Logger,
	}
}

// Handle processes one raw webhook body and returns the response for the
// transport. Only the first event of a delivery is processed; the platform
// contract does not rule out batching, so extra events are logged and skipped.
func (h *Handler) Handle(ctx context.Context, body []byte) Response {
	start := time.Now()

	payload, err := line.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("malformed webhook payload", "err", err)
		return h.respond(http.StatusBadRequest, err.Error(), OutcomeMalformed, "")
	}

	if extra := len(payload.Events) - 1; extra > 0 {
		h.logger.Warn("multi-event delivery, processing first event only", "skipped", extra)
	}

	event := payload.Events[0]
	userID := event.Source.UserID

	if event.Message.Type != line.MessageTypeText {
		h.logger.Info("non-text message rejected",
			"user_id", userID,
			"message_type", event.Message.Type,
		)
		return h.respond(http.StatusUnauthorized, rejectText, OutcomeRejected, userID)
	}

	reply, err := h.completer.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: event.Message.Text},
	})
	if err != nil {
		uerr := &domain.UpstreamError{Stage: domain.StageCompletion, Err: err}
		h.logger.Error("completion failed", "user_id", userID, "err", uerr)
		return h.respond(http.StatusUnauthorized, faultText(err), OutcomeCompletionFailed, userID)
	}

	if err := h.pusher.Push(ctx, userID, reply.Content); err != nil {
		uerr := &domain.UpstreamError{Stage: domain.StageRelay, Err: err}
		h.logger.Error("relay failed", "user_id", userID, "err", uerr)
		return h.respond(http.StatusUnauthorized, faultText(err), OutcomeRelayFailed, userID)
	}

	h.logger.Info("delivery completed",
		"user_id", userID,
		"reply_len", len(reply.Content),
		"elapsed", time.Since(start),
	)
	return h.respond(http.StatusOK, reply.Content, OutcomeCompleted, userID)
}

// envelope is the JSON body shape shared by every exit path.
type envelope struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

func (h *Handler) respond(status int, text string, outcome string, userID string) Response {
	body, _ := json.MarshalIndent(envelope{
		ResponseType: "in_channel",
		Text:         text,
	}, "", "  ")
	return Response{
		StatusCode: status,
		Body:       string(body),
		Outcome:    outcome,
		UserID:     userID,
	}
}

// faultText returns the fault's description, or a generic fallback when the
// fault carries none.
func faultText(err error) string {
	if err == nil || err.Error() == "" {
		return fallbackFaultText
	}
	return err.Error()
}

// Stage extracts the failing upstream stage from an outcome, for journal rows.
func Stage(outcome string) string {
	switch outcome {
	case OutcomeCompletionFailed:
		return string(domain.StageCompletion)
	case OutcomeRelayFailed:
		return string(domain.StageRelay)
	}
	return ""
}
