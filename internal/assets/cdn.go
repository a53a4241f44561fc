package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// StatusError carries the upstream status code so the render retry policy can
// classify the failure without knowing this client.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cdn: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("cdn: unexpected status %d: %s", e.Status, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Status }

// CDNClient talks to the remote asset store the generation providers pull
// source material from. Uploaded URLs are time-limited; callers go through
// the render cache rather than holding them.
type CDNClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewCDNClient builds a client for the asset store at baseURL.
func NewCDNClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) (*CDNClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("cdn: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("cdn: parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &CDNClient{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Upload pushes bytes under the fingerprint key and returns the served URL.
func (c *CDNClient) Upload(ctx context.Context, key string, data []byte) (string, error) {
	target := c.baseURL + "/assets/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("cdn: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cdn: upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	// The store echoes the canonical (possibly signed) URL in the Location
	// header; fall back to the upload target.
	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}
	c.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("cdn: uploaded")
	return target, nil
}

// Probe checks whether a previously issued URL still answers. A 404/410 is a
// definitive "gone" and returns false without error; transport failures
// return an error for the retry policy to chew on.
func (c *CDNClient) Probe(ctx context.Context, remoteURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, remoteURL, nil)
	if err != nil {
		return false, fmt.Errorf("cdn: build probe request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("cdn: probe %s: %w", remoteURL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusForbidden:
		// Expired signed URLs commonly answer 403.
		return false, nil
	default:
		return false, &StatusError{Status: resp.StatusCode}
	}
}
