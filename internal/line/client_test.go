package line

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testClientLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPush_Success(t *testing.T) {
	var gotPath, gotAuth, gotRetryKey string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetryKey = r.Header.Get("X-Line-Retry-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AccessToken: "token-1", APIBase: srv.URL, Logger: testClientLogger()})
	if err := c.Push(context.Background(), "U1", "Hi there"); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/v2/bot/message/push" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotRetryKey == "" {
		t.Error("expected X-Line-Retry-Key to be set")
	}

	var req struct {
		To       string `json:"to"`
		Messages []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatal(err)
	}
	if req.To != "U1" {
		t.Errorf("expected to=U1, got %q", req.To)
	}
	if len(req.Messages) != 1 || req.Messages[0].Type != "text" || req.Messages[0].Text != "Hi there" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
}

func TestPush_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"The request body has 1 error(s)"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AccessToken: "token-1", APIBase: srv.URL, Logger: testClientLogger()})
	err := c.Push(context.Background(), "U1", "text")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "line API 400") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestGetBotInfo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/info" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"userId":"Ubot","displayName":"bridge-bot"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AccessToken: "token-1", APIBase: srv.URL, Logger: testClientLogger()})
	info, err := c.GetBotInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.DisplayName != "bridge-bot" {
		t.Errorf("unexpected bot info: %+v", info)
	}
}

func TestGetBotInfo_InvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AccessToken: "bad", APIBase: srv.URL, Logger: testClientLogger()})
	if _, err := c.GetBotInfo(context.Background()); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
