package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"linebridge/internal/domain"
)

const defaultAPIBase = "https://api.openai.com/v1"

// OpenAI implements domain.Completer against OpenAI-compatible
// chat-completions APIs.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration // 0 = no client timeout
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

// Model returns the configured model identifier.
func (o *OpenAI) Model() string { return o.model }

// Healthy checks that the API is reachable and the key is accepted.
func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openai: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai returned %d", resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model    string               `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
}

type oaiChoice struct {
	Message      domain.ChatMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

// Complete sends one chat-completions request and returns choices[0].message.
// A response with no choices or an empty assistant message is an error, never
// an empty reply.
func (o *OpenAI) Complete(ctx context.Context, messages []domain.ChatMessage) (domain.ChatMessage, error) {
	jsonBody, err := json.Marshal(oaiRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return domain.ChatMessage{}, fmt.Errorf("openai %d: %s", resp.StatusCode, string(respBody))
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("decode: %w", err)
	}

	if len(oaiResp.Choices) == 0 {
		return domain.ChatMessage{}, fmt.Errorf("openai: response has no choices")
	}
	reply := oaiResp.Choices[0].Message
	if reply.Content == "" {
		return domain.ChatMessage{}, fmt.Errorf("openai: empty assistant message")
	}

	o.logger.Debug("completion received",
		"model", o.model,
		"finish_reason", oaiResp.Choices[0].FinishReason,
		"reply_len", len(reply.Content),
	)
	return reply, nil
}
