// Package telegram is a minimal Telegram Bot API client covering what the
// hoster needs: long-polling, sending and editing messages, and identity
// lookups for hosted bot tokens.
package telegram

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

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Bot API on behalf of the hoster's own bot identity.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// MessageRef identifies a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// BotIdentity is the result of a getMe lookup.
type BotIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Update is one long-poll result.
type Update struct {
	UpdateID int64   `json:"update_id"`
	Message  Message `json:"message"`
}

// Message carries the fields the intake flow cares about.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

func NewClient(token, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:      strings.TrimSpace(token),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 40 * time.Second},
	}
}

// GetMe resolves the client's own bot identity.
func (c *Client) GetMe(ctx context.Context) (BotIdentity, error) {
	return getMe(ctx, c.httpClient, c.baseURL, c.token)
}

// Send delivers a plain text message and returns a reference for later edits.
func (c *Client) Send(ctx context.Context, chatID int64, text string) (MessageRef, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	body, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return MessageRef{}, fmt.Errorf("send message: %w", err)
	}

	var resp struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return MessageRef{}, fmt.Errorf("decode sendMessage response: %w", err)
	}
	return MessageRef{ChatID: chatID, MessageID: resp.Result.MessageID}, nil
}

// Edit replaces the text of a previously sent message.
func (c *Client) Edit(ctx context.Context, ref MessageRef, text string) error {
	payload := map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
		"text":       text,
	}
	if _, err := c.call(ctx, "editMessageText", payload); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// GetUpdates long-polls for new updates past the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": timeoutSeconds,
	}
	body, err := c.call(ctx, "getUpdates", payload)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	var resp struct {
		Result []Update `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	return resp.Result, nil
}

func (c *Client) call(ctx context.Context, method string, payload any) ([]byte, error) {
	return apiCall(ctx, c.httpClient, c.baseURL, c.token, method, payload)
}

func getMe(ctx context.Context, hc *http.Client, baseURL, token string) (BotIdentity, error) {
	body, err := apiCall(ctx, hc, baseURL, token, "getMe", map[string]any{})
	if err != nil {
		return BotIdentity{}, err
	}

	var resp struct {
		OK     bool        `json:"ok"`
		Result BotIdentity `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return BotIdentity{}, fmt.Errorf("decode getMe response: %w", err)
	}
	if !resp.OK || resp.Result.ID == 0 {
		return BotIdentity{}, errors.New("invalid bot token")
	}
	return resp.Result, nil
}

func apiCall(ctx context.Context, hc *http.Client, baseURL, token, method string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", baseURL, strings.TrimSpace(token), method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram response: %w", err)
	}

	var envelope struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(respBody, &envelope)

	if resp.StatusCode >= http.StatusBadRequest || !envelope.OK {
		description := strings.TrimSpace(envelope.Description)
		if description == "" {
			description = strings.TrimSpace(string(respBody))
		}
		if description == "" {
			description = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, errors.New(description)
	}

	return respBody, nil
}
