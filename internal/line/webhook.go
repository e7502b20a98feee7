package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"linebridge/internal/domain"
)

// Message types delivered by the LINE messaging platform.
const (
	MessageTypeText    = "text"
	MessageTypeImage   = "image"
	MessageTypeSticker = "sticker"
)

// WebhookPayload is the body of a LINE webhook delivery. A delivery carries an
// ordered list of events; destination is the bot user ID the delivery is for.
type WebhookPayload struct {
	Destination string  `json:"destination,omitempty"`
	Events      []Event `json:"events"`
}

// Event is one webhook event (message, follow, unfollow, ...).
type Event struct {
	Type    string        `json:"type,omitempty"`
	Message *EventMessage `json:"message"`
	Source  *EventSource  `json:"source"`
}

// EventMessage is the message object of a message event. Text is only set when
// Type is "text".
type EventMessage struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// EventSource identifies the sender of an event.
type EventSource struct {
	Type   string `json:"type,omitempty"`
	UserID string `json:"userId"`
}

// ParseWebhook parses a raw webhook body into a WebhookPayload. It returns a
// *domain.MalformedPayloadError when the body is not valid JSON or the first
// event lacks a message or a sender user ID.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &domain.MalformedPayloadError{Reason: "invalid JSON", Err: err}
	}
	if len(payload.Events) == 0 {
		return nil, &domain.MalformedPayloadError{Reason: "missing events"}
	}
	first := payload.Events[0]
	if first.Message == nil {
		return nil, &domain.MalformedPayloadError{Reason: "missing message in first event"}
	}
	if first.Source == nil || first.Source.UserID == "" {
		return nil, &domain.MalformedPayloadError{Reason: "missing source.userId in first event"}
	}
	return &payload, nil
}

// VerifySignature checks the X-Line-Signature header value against the request
// body. LINE signs deliveries with HMAC-SHA256 under the channel secret and
// sends the digest base64-encoded.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
