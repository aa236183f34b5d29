package line

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

	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

var errTokenRequired = errors.New("line channel access token is required")

// Client is a thin wrapper over the LINE Messaging API surface the relay
// needs: pushing text messages and resolving sender display names.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient validates credentials and builds the API client.
func NewClient(ctx context.Context, cfg config.LineConfig, logg *logger.Logger) (*Client, error) {
	token := strings.TrimSpace(cfg.ChannelAccessToken)
	if token == "" {
		return nil, errTokenRequired
	}

	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}

	if logg != nil {
		logg.Info(ctx, "line client initialized")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}, nil
}

// APIError carries the platform's HTTP status and response body so callers can
// surface them verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line api: status %d: %s", e.StatusCode, e.Body)
}

// IsClientError reports whether the platform rejected the request (4xx), the
// class of failure eligible for the no-quote fallback.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type textMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	QuoteToken string `json:"quoteToken,omitempty"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// PushText sends a text message to the given route (user, group or room id).
// quoteToken, when non-empty, makes the message visually quote the original.
func (c *Client) PushText(ctx context.Context, to, text, quoteToken string) error {
	body := pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text, QuoteToken: quoteToken}},
	}
	return c.post(ctx, "/v2/bot/message/push", body)
}

type profileResponse struct {
	DisplayName string `json:"displayName"`
}

// GetProfile resolves a user's display name.
func (c *Client) GetProfile(ctx context.Context, userID string) (string, error) {
	return c.getDisplayName(ctx, "/v2/bot/profile/"+userID)
}

// GetGroupMemberProfile resolves a display name within a group.
func (c *Client) GetGroupMemberProfile(ctx context.Context, groupID, userID string) (string, error) {
	return c.getDisplayName(ctx, fmt.Sprintf("/v2/bot/group/%s/member/%s", groupID, userID))
}

// GetRoomMemberProfile resolves a display name within a room.
func (c *Client) GetRoomMemberProfile(ctx context.Context, roomID, userID string) (string, error) {
	return c.getDisplayName(ctx, fmt.Sprintf("/v2/bot/room/%s/member/%s", roomID, userID))
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal line request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build line request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return newAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getDisplayName(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("build line request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("line request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", newAPIError(resp)
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("decode line profile: %w", err)
	}
	return profile.DisplayName, nil
}

func newAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}
