// Package identity looks up display profiles from the external identity
// provider. Profiles are presentation data only; authorization never
// consults this package.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when the provider has no user for an id.
var ErrNotFound = errors.New("user not found")

type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *RedisCache
}

// NewClient creates an identity provider client. cache may be nil, in which
// case every lookup goes to the provider.
func NewClient(baseURL, apiKey string, cache *RedisCache) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
	}
}

// GetUser resolves a user id to a display profile, via the cache when one
// is configured. Cache failures fall through to the provider.
func (c *Client) GetUser(ctx context.Context, userID string) (Profile, error) {
	if c.cache != nil {
		profile, ok, err := c.cache.Get(ctx, userID)
		if err != nil {
			log.Printf("identity: cache read %s: %v", userID, err)
		} else if ok {
			return profile, nil
		}
	}

	profile, err := c.fetch(ctx, userID)
	if err != nil {
		// A gone user may still have a cached entry, e.g. one that failed
		// to decode above; drop it so it does not outlive the account.
		if c.cache != nil && errors.Is(err, ErrNotFound) {
			if cerr := c.cache.Invalidate(ctx, userID); cerr != nil {
				log.Printf("identity: cache invalidate %s: %v", userID, cerr)
			}
		}
		return Profile{}, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, profile); err != nil {
			log.Printf("identity: cache write %s: %v", userID, err)
		}
	}
	return profile, nil
}

func (c *Client) fetch(ctx context.Context, userID string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Profile{}, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Profile{}, fmt.Errorf("identity %s: status %d: %s", userID, resp.StatusCode, payload)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if profile.ID == "" {
		profile.ID = userID
	}
	return profile, nil
}
