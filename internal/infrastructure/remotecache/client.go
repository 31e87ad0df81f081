// Package remotecache persists tool-cache directories across ephemeral
// runners, addressed by a string key. Every failure here is recoverable:
// callers treat restore errors as cache misses and swallow save errors, so
// a degraded cache service never blocks an install.
package remotecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrAlreadyExists reports a save against a key a racing peer already
// populated. Any successful save is equally valid, so callers ignore it.
var ErrAlreadyExists = errors.New("cache entry already exists")

// ErrDisabled reports an operation against a client with no backend URL.
var ErrDisabled = errors.New("remote cache not configured")

// Store is what the install pipeline needs from a cache backend.
type Store interface {
	// Restore extracts the entry under key into destDir. The boolean is
	// false on a miss.
	Restore(ctx context.Context, key, destDir string) (bool, error)
	// Save uploads srcDir under key.
	Save(ctx context.Context, key, srcDir string) error
}

// Client talks to the cache service over HTTP: tarballs stored at
// `<base>/v1/caches/<key>`.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the cache service at baseURL. An empty
// baseURL yields a disabled client whose operations fail with ErrDisabled.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *Client) entryURL(key string) string {
	return fmt.Sprintf("%s/v1/caches/%s", c.baseURL, url.PathEscape(key))
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Restore fetches the tarball stored under key and extracts it into
// destDir. A 404 is a miss, not an error.
func (c *Client) Restore(ctx context.Context, key, destDir string) (bool, error) {
	if c.baseURL == "" {
		return false, ErrDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.entryURL(key), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create restore request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("cache restore failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return false, nil
	default:
		return false, fmt.Errorf("cache restore failed with status %d", resp.StatusCode)
	}

	if err := unpack(resp.Body, destDir); err != nil {
		return false, fmt.Errorf("cache restore failed: %w", err)
	}
	return true, nil
}

// Save archives srcDir and uploads it under key. A 409 from the service
// means a racing peer won; reported as ErrAlreadyExists.
func (c *Client) Save(ctx context.Context, key, srcDir string) error {
	if c.baseURL == "" {
		return ErrDisabled
	}

	var body bytes.Buffer
	if err := pack(srcDir, &body); err != nil {
		return fmt.Errorf("cache save failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.entryURL(key), &body)
	if err != nil {
		return fmt.Errorf("failed to create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/gzip")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cache save failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrAlreadyExists
	default:
		return fmt.Errorf("cache save failed with status %d", resp.StatusCode)
	}
}

var _ Store = (*Client)(nil)
