// Package farcaster provides a thin client for the Neynar Farcaster API:
// feed-mention fetching, cast publishing/replying, and webhook management.
package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/BTreeMap/CastPipe/internal/models"
)

// DefaultBaseURL is the Neynar API endpoint.
const DefaultBaseURL = "https://api.neynar.com"

// Retry policy for outbound calls: transient conditions (rate limiting,
// server errors, no response) are retried with jittered exponential backoff;
// other client errors propagate immediately.
const (
	maxAttempts = 3
	baseBackoff = 400 * time.Millisecond
)

// Opts holds client configuration.
type Opts struct {
	APIKey     string
	SignerUUID string
	FID        int64
	BaseURL    string
	HTTPClient *http.Client
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the Neynar API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithSignerUUID sets the signer used for publishing casts.
func WithSignerUUID(uuid string) Option {
	return func(o *Opts) { o.SignerUUID = uuid }
}

// WithFID sets the bot's own FID.
func WithFID(fid int64) Option {
	return func(o *Opts) { o.FID = fid }
}

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = hc }
}

// Client talks to the Neynar API.
type Client struct {
	apiKey     string
	signerUUID string
	fid        int64
	baseURL    string
	hc         *http.Client
}

// NewClient creates a Farcaster API client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		slog.Error("Farcaster API key not set")
		return nil, fmt.Errorf("farcaster API key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	slog.Debug("Farcaster client created", "base_url", cfg.BaseURL, "fid", cfg.FID, "signer_set", cfg.SignerUUID != "")
	return &Client{
		apiKey:     cfg.APIKey,
		signerUUID: cfg.SignerUUID,
		fid:        cfg.FID,
		baseURL:    cfg.BaseURL,
		hc:         cfg.HTTPClient,
	}, nil
}

// FID returns the bot's own FID.
func (c *Client) FID() int64 { return c.fid }

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("farcaster API error: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << attempt
	return d + time.Duration(rand.Int63n(int64(d/4)+1))
}

// doJSON performs one API call with the retry policy applied.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			slog.Debug("Client.doJSON: retrying", "path", path, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			// No response at all counts as transient.
			lastErr = fmt.Errorf("request failed: %w", err)
			slog.Warn("Client.doJSON: transport error", "error", err, "path", path, "attempt", attempt+1)
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response: %w", readErr)
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
			if apiErr.Transient() {
				lastErr = apiErr
				slog.Warn("Client.doJSON: transient API error", "status", resp.StatusCode, "path", path, "attempt", attempt+1)
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

// PublishCast posts a new top-level cast and returns its hash.
func (c *Client) PublishCast(ctx context.Context, text string) (string, error) {
	if c.signerUUID == "" {
		return "", fmt.Errorf("signer UUID not set")
	}
	req := map[string]interface{}{
		"signer_uuid": c.signerUUID,
		"text":        text,
	}
	var resp struct {
		Cast struct {
			Hash string `json:"hash"`
		} `json:"cast"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/farcaster/cast", req, &resp); err != nil {
		slog.Error("Client.PublishCast failed", "error", err)
		return "", err
	}
	slog.Info("Client.PublishCast succeeded", "hash", resp.Cast.Hash)
	return resp.Cast.Hash, nil
}

// ReplyCast posts a reply under the given parent cast.
func (c *Client) ReplyCast(ctx context.Context, parentID, text string) error {
	if c.signerUUID == "" {
		return fmt.Errorf("signer UUID not set")
	}
	req := map[string]interface{}{
		"signer_uuid": c.signerUUID,
		"text":        text,
		"parent":      map[string]string{"hash": parentID},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/farcaster/cast", req, nil); err != nil {
		slog.Error("Client.ReplyCast failed", "error", err, "parent", parentID)
		return err
	}
	slog.Info("Client.ReplyCast succeeded", "parent", parentID)
	return nil
}

// FetchMentions returns the raw cast payloads from the mentions feed.
func (c *Client) FetchMentions(ctx context.Context) ([]json.RawMessage, error) {
	path := fmt.Sprintf("/v2/farcaster/feed/user/mentions?fid=%d&viewer_fid=%d", c.fid, c.fid)
	var resp struct {
		Casts []json.RawMessage `json:"casts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		slog.Error("Client.FetchMentions failed", "error", err)
		return nil, err
	}
	slog.Debug("Client.FetchMentions succeeded", "count", len(resp.Casts))
	return resp.Casts, nil
}

// RecentMentions fetches the mentions feed and normalizes it into canonical
// mention records, dropping payloads with no usable id.
func (c *Client) RecentMentions(ctx context.Context) ([]models.Mention, error) {
	raws, err := c.FetchMentions(ctx)
	if err != nil {
		return nil, err
	}
	mentions := make([]models.Mention, 0, len(raws))
	for _, raw := range raws {
		m := NormalizeMention(raw)
		if m.ID == "" {
			slog.Debug("Client.RecentMentions: dropping payload without id")
			continue
		}
		mentions = append(mentions, m)
	}
	return mentions, nil
}
