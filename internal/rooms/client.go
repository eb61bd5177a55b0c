// Package rooms is the client for the external real-time room store. The
// store owns all board document state; this service only issues lifecycle
// commands against it.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when the store reports no room for an id.
var ErrNotFound = errors.New("room not found")

// Metadata is the flat key/value map the store attaches to a room. Boards
// use title, createdOn, createdBy and archived.
type Metadata map[string]string

type Room struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// GetRoom fetches a room record by id.
func (c *Client) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &room)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// CreateRoom creates a room record with its metadata and default access
// policy. The store offers no way to create the room and its storage
// document in one call.
func (c *Client) CreateRoom(ctx context.Context, roomID string, metadata Metadata, defaultAccesses []string) error {
	body := map[string]any{
		"id":              roomID,
		"metadata":        metadata,
		"defaultAccesses": defaultAccesses,
	}
	return c.do(ctx, http.MethodPost, "/rooms", body, nil)
}

// UpdateRoom replaces a room's metadata object. The store has no partial
// patch; callers must send the full merged map.
func (c *Client) UpdateRoom(ctx context.Context, roomID string, metadata Metadata) error {
	body := map[string]any{"metadata": metadata}
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID), body, nil)
}

// UpdateRoomID migrates a room to a new id, keeping its metadata, storage
// and history.
func (c *Client) UpdateRoomID(ctx context.Context, currentID, newID string) error {
	body := map[string]any{"newRoomId": newID}
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(currentID)+"/update-room-id", body, nil)
}

// InitializeStorage writes the initial storage document of a room. Fails if
// the room already has storage.
func (c *Client) InitializeStorage(ctx context.Context, roomID string, root StorageNode) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/storage", root, nil)
}

// ListRooms returns every room whose id starts with the given prefix,
// following the store's cursor pagination to the end.
func (c *Client) ListRooms(ctx context.Context, prefix string) ([]Room, error) {
	query := fmt.Sprintf("roomId^%q", prefix)

	var all []Room
	cursor := ""
	for {
		path := "/rooms?query=" + url.QueryEscape(query)
		if cursor != "" {
			path += "&startingAfter=" + url.QueryEscape(cursor)
		}

		var page struct {
			NextCursor *string `json:"nextCursor"`
			Data       []Room  `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)

		if page.NextCursor == nil || *page.NextCursor == "" {
			break
		}
		cursor = *page.NextCursor
	}
	return all, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("room store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("room store %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(payload))
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
