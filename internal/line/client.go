package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultAPIBase = "https://api.line.me"

// Client talks to the LINE Messaging API on behalf of a bot channel.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	accessToken string
	apiBase     string
	client      *http.Client
	logger      *slog.Logger
}

type ClientConfig struct {
	AccessToken string
	APIBase     string        // override for tests
	Timeout     time.Duration // default: 30s
	Logger      *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		accessToken: cfg.AccessToken,
		apiBase:     cfg.APIBase,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Push delivers a text message to the given user. Each call carries a fresh
// X-Line-Retry-Key so a transport-level retry of the same logical push is
// deduplicated by the platform rather than delivered twice.
func (c *Client) Push(ctx context.Context, userID string, text string) error {
	body, err := json.Marshal(pushRequest{
		To:       userID,
		Messages: []pushMessage{{Type: MessageTypeText, Text: text}},
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Line-Retry-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("line API %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Debug("line push delivered", "to", userID, "text_len", len(text))
	return nil
}

// BotInfo is the subset of GET /v2/bot/info used by diagnostics.
type BotInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// GetBotInfo fetches the bot profile. Used by doctor to validate the channel
// access token without sending anything to a user.
func (c *Client) GetBotInfo(ctx context.Context) (*BotInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBase+"/v2/bot/info", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("line: invalid channel access token")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("line API %d: %s", resp.StatusCode, string(respBody))
	}

	var info BotInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &info, nil
}
