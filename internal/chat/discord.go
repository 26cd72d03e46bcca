// Package chat provides the chat channel abstraction and the Discord REST
// adapter used to deliver notifications.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultDiscordBaseURL = "https://discord.com/api/v10"

// DefaultMessageLimit is Discord's per-message character cap.
const DefaultMessageLimit = 2000

// ErrMessageNotFound is returned when a message id no longer exists in the
// channel.
var ErrMessageNotFound = errors.New("message not found")

// Message is a delivered chat message.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Channel is the narrow chat collaborator interface: discrete messages with
// a per-message size limit, addressable by id.
type Channel interface {
	// Send posts text to the channel and returns the new message id.
	Send(ctx context.Context, channelID, text string) (string, error)

	// Fetch retrieves a message by id, returning ErrMessageNotFound when it
	// is already gone.
	Fetch(ctx context.Context, channelID, messageID string) (Message, error)

	// Delete removes a message by id.
	Delete(ctx context.Context, channelID, messageID string) error
}

// DiscordClient is a Channel backed by the Discord REST API.
type DiscordClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDiscordClient creates a REST client authenticated as a bot user.
// baseURL may be empty to use the public API endpoint.
func NewDiscordClient(baseURL, botToken string, timeout time.Duration) *DiscordClient {
	if baseURL == "" {
		baseURL = defaultDiscordBaseURL
	}
	return &DiscordClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   botToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts a message to the channel.
func (c *DiscordClient) Send(ctx context.Context, channelID, text string) (string, error) {
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	payload := map[string]string{"content": text}

	var msg Message
	if err := c.do(ctx, http.MethodPost, path, payload, &msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Fetch retrieves a message by id.
func (c *DiscordClient) Fetch(ctx context.Context, channelID, messageID string) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)

	var msg Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Delete removes a message by id.
func (c *DiscordClient) Delete(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do executes an authenticated API call, decoding the response into out
// when out is non-nil.
func (c *DiscordClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrMessageNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord API error (status %d): %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
