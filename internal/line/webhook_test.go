package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"linebridge/internal/domain"
)

func TestParseWebhook_TextEvent(t *testing.T) {
	body := []byte(`{"destination":"Ubot","events":[{"type":"message","message":{"id":"1","type":"text","text":"hello"},"source":{"type":"user","userId":"U1"}}]}`)

	payload, err := ParseWebhook(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(payload.Events))
	}
	ev := payload.Events[0]
	if ev.Message.Type != MessageTypeText || ev.Message.Text != "hello" {
		t.Errorf("unexpected message: %+v", ev.Message)
	}
	if ev.Source.UserID != "U1" {
		t.Errorf("expected U1, got %q", ev.Source.UserID)
	}
}

func TestParseWebhook_InvalidJSON(t *testing.T) {
	_, err := ParseWebhook([]byte("not json"))
	var merr *domain.MalformedPayloadError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedPayloadError, got %v", err)
	}
}

func TestParseWebhook_MissingEvents(t *testing.T) {
	for _, body := range []string{`{}`, `{"events":[]}`} {
		if _, err := ParseWebhook([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestParseWebhook_MissingMessage(t *testing.T) {
	body := []byte(`{"events":[{"source":{"userId":"U1"}}]}`)
	var merr *domain.MalformedPayloadError
	if _, err := ParseWebhook(body); !errors.As(err, &merr) {
		t.Fatalf("expected MalformedPayloadError, got %v", err)
	}
}

func TestParseWebhook_MissingUserID(t *testing.T) {
	for _, body := range []string{
		`{"events":[{"message":{"type":"text","text":"hi"}}]}`,
		`{"events":[{"message":{"type":"text","text":"hi"},"source":{"type":"group"}}]}`,
	} {
		if _, err := ParseWebhook([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := signBody("channel-secret", body)

	if !VerifySignature("channel-secret", body, sig) {
		t.Error("valid signature should verify")
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	if VerifySignature("channel-secret", []byte("body"), "bm90IGEgc2lnbmF0dXJl") {
		t.Error("invalid signature should not verify")
	}
}

func TestVerifySignature_Empty(t *testing.T) {
	if VerifySignature("channel-secret", []byte("body"), "") {
		t.Error("empty signature should not verify")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := signBody("other-secret", body)

	if VerifySignature("channel-secret", body, sig) {
		t.Error("signature under wrong secret should not verify")
	}
}
