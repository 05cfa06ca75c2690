package dfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/utils"
)

// Client talks to a Swift-style distributed file store: token auth against an
// auth endpoint, then per-object PUTs against the storage URL the auth
// response hands back. The token is cached and refreshed once per request on
// 401/403, so a mid-batch token expiry does not fail the batch.
type Client struct {
	http *http.Client
	cfg  config.SwiftConfig
	log  *logrus.Logger

	mu         sync.Mutex
	token      string
	storageURL string
}

// NewClient creates a new object store Client instance
func NewClient(httpClient *http.Client, cfg config.SwiftConfig, log *logrus.Logger) *Client {
	return &Client{
		http: httpClient,
		cfg:  cfg,
		log:  log,
	}
}

// authenticate obtains a fresh token and storage URL, replacing any cached
// credentials. Callers hold no lock; authenticate takes it itself.
func (c *Client) authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: creating auth request: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("X-Storage-User", c.cfg.User)
	req.Header.Set("X-Storage-Pass", c.cfg.Key)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: auth request: %w", utils.ErrUpload, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: auth returned status %d %s", utils.ErrUpload, resp.StatusCode, resp.Status)
	}

	token := resp.Header.Get("X-Auth-Token")
	storageURL := resp.Header.Get("X-Storage-Url")
	if token == "" || storageURL == "" {
		return fmt.Errorf("%w: auth response missing X-Auth-Token or X-Storage-Url", utils.ErrUpload)
	}

	c.mu.Lock()
	c.token = token
	c.storageURL = strings.TrimRight(storageURL, "/")
	c.mu.Unlock()

	c.log.WithField("storage_url", storageURL).Debug("Object store token refreshed")
	return nil
}

// credentials returns the cached token and storage URL, authenticating first
// if no token is cached yet.
func (c *Client) credentials(ctx context.Context) (token, storageURL string, err error) {
	c.mu.Lock()
	token, storageURL = c.token, c.storageURL
	c.mu.Unlock()

	if token != "" {
		return token, storageURL, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", "", err
	}
	c.mu.Lock()
	token, storageURL = c.token, c.storageURL
	c.mu.Unlock()
	return token, storageURL, nil
}

// put uploads body to objectPath (bucket-qualified, e.g. "maps_foo/3/1/2.png").
// A 401/403 triggers one token refresh and a single replay; getBody re-opens
// the payload for that replay.
func (c *Client) put(ctx context.Context, objectPath, contentType string, getBody func() (io.ReadCloser, error)) error {
	refreshed := false
	for {
		token, storageURL, err := c.credentials(ctx)
		if err != nil {
			return err
		}

		body, err := getBody()
		if err != nil {
			return fmt.Errorf("%w: opening payload for '%s': %w", utils.ErrFilesystem, objectPath, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, storageURL+"/"+objectPath, body)
		if err != nil {
			body.Close()
			return fmt.Errorf("%w: creating PUT for '%s': %w", utils.ErrRequestCreation, objectPath, err)
		}
		req.Header.Set("X-Auth-Token", token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: PUT '%s': %w", utils.ErrUpload, objectPath, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && !refreshed:
			c.log.WithFields(logrus.Fields{"object": objectPath, "status_code": resp.StatusCode}).
				Warn("Token rejected, re-authenticating")
			if err := c.authenticate(ctx); err != nil {
				return err
			}
			refreshed = true
			continue
		default:
			return fmt.Errorf("%w: PUT '%s' returned status %d %s", utils.ErrUpload, objectPath, resp.StatusCode, resp.Status)
		}
	}
}

// EnsureBucket creates the named container. Swift container creation is
// idempotent (201 on create, 202 if it already exists), so callers do not
// need to check for existence first.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	err := c.put(ctx, bucket, "", func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("")), nil
	})
	if err != nil {
		return fmt.Errorf("%w: creating bucket '%s': %w", utils.ErrUpload, bucket, err)
	}
	return nil
}
