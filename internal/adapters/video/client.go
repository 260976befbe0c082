// Package video is the client for the video-room provider. Rooms and meeting
// tokens are provisioned here; media itself never touches the platform.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/telecare/platform/internal/shared/config"
	apperrors "github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

const providerName = "video provider"

// Room is a provisioned video room
type Room struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client calls the video provider REST API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new video provider client
func NewClient(cfg config.VideoConfig) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Configured reports whether the provider credentials are present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// CreateRoom provisions a private room that expires at the given time.
func (c *Client) CreateRoom(ctx context.Context, consultationID types.ID, expiresAt time.Time) (*Room, error) {
	if !c.Configured() {
		return nil, apperrors.NotConfigured(providerName)
	}

	reqBody := map[string]any{
		"name":    "consultation-" + consultationID.String(),
		"privacy": "private",
		"properties": map[string]any{
			"exp":                 expiresAt.Unix(),
			"enable_chat":         false,
			"enable_screenshare":  true,
			"start_video_off":     false,
			"eject_at_room_exp":   true,
			"max_participants":    2,
		},
	}

	var room struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/rooms", reqBody, &room); err != nil {
		return nil, err
	}

	return &Room{ID: room.Name, URL: room.URL}, nil
}

// CreateToken issues a short-lived meeting token for one participant.
// Owner tokens carry room controls; doctors get them, patients do not.
func (c *Client) CreateToken(ctx context.Context, roomID string, participantID types.ID, isOwner bool) (string, error) {
	if !c.Configured() {
		return "", apperrors.NotConfigured(providerName)
	}

	reqBody := map[string]any{
		"properties": map[string]any{
			"room_name": roomID,
			"user_id":   participantID.String(),
			"is_owner":  isOwner,
			"exp":       time.Now().Add(2 * time.Hour).Unix(),
		},
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/meeting-tokens", reqBody, &result); err != nil {
		return "", err
	}

	return result.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Dependency(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
			Info  string `json:"info"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return apperrors.Dependency(providerName,
			fmt.Errorf("status %d: %s %s", resp.StatusCode, apiErr.Error, apiErr.Info))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Dependency(providerName, fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}
