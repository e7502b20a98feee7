package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"linebridge/internal/bridge"
	"linebridge/internal/domain"
	"linebridge/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type okCompleter struct{}

func (okCompleter) Complete(_ context.Context, _ []domain.ChatMessage) (domain.ChatMessage, error) {
	return domain.ChatMessage{Role: domain.RoleAssistant, Content: "Hi there"}, nil
}

type okPusher struct{}

func (okPusher) Push(_ context.Context, _ string, _ string) error { return nil }

func newTestServer(channelSecret, metricsEP string) (*Server, *metrics.Collector) {
	collector := metrics.NewCollector()
	handler := bridge.NewHandler(bridge.HandlerConfig{
		Completer: okCompleter{},
		Pusher:    okPusher{},
		Logger:    testLogger(),
	})
	srv := New(Config{
		WebhookPath:     "/webhook/line",
		ChannelSecret:   channelSecret,
		Handler:         handler,
		Collector:       collector,
		MetricsEndpoint: metricsEP,
		Logger:          testLogger(),
	})
	return srv, collector
}

const textEvent = `{"events":[{"message":{"type":"text","text":"hello"},"source":{"userId":"U1"}}]}`

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Success(t *testing.T) {
	srv, collector := newTestServer("", "")

	req := httptest.NewRequest("POST", "/webhook/line", strings.NewReader(textEvent))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "Hi there") {
		t.Errorf("expected reply in body, got %s", rr.Body.String())
	}
	if n := collector.Deliveries(bridge.OutcomeCompleted); n != 1 {
		t.Errorf("expected 1 completed delivery recorded, got %d", n)
	}
}

func TestWebhook_GETNotAllowed(t *testing.T) {
	srv, _ := newTestServer("", "")

	req := httptest.NewRequest("GET", "/webhook/line", nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	srv, _ := newTestServer("channel-secret", "")

	req := httptest.NewRequest("POST", "/webhook/line", strings.NewReader(textEvent))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	srv, _ := newTestServer("channel-secret", "")

	req := httptest.NewRequest("POST", "/webhook/line", strings.NewReader(textEvent))
	req.Header.Set("X-Line-Signature", "bm90IGEgc2lnbmF0dXJl")
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestWebhook_ValidSignature(t *testing.T) {
	srv, _ := newTestServer("channel-secret", "")

	req := httptest.NewRequest("POST", "/webhook/line", strings.NewReader(textEvent))
	req.Header.Set("X-Line-Signature", signBody("channel-secret", []byte(textEvent)))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer("", "")

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer("", "/metrics")

	// One delivery, then scrape.
	req := httptest.NewRequest("POST", "/webhook/line", strings.NewReader(textEvent))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	req = httptest.NewRequest("GET", "/metrics", nil)
	rr = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `linebridge_deliveries_total{outcome="completed"} 1`) {
		t.Errorf("expected delivery counter in exposition, got:\n%s", rr.Body.String())
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	srv, _ := newTestServer("", "")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for disabled metrics, got %d", rr.Code)
	}
}
