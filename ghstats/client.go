// Package ghstats fetches a GitHub user's public profile, repositories and events and
// condenses them into the stats and activity payloads served by the portfolio.
package ghstats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "https://api.github.com"
	DefaultRepoLimit      = 20
	DefaultTopLanguages   = 6
	DefaultTopRepos       = 6
	DefaultActivityWindow = 30 * 24 * time.Hour
	DefaultActivityLimit  = 10
	DefaultWorkers        = 4

	userAgent       = "folio-stats"
	maxResponseSize = 8 << 20
)

var (
	ErrUpstreamStatus = errors.New("github: unexpected status")
	ErrRateLimited    = errors.New("github: rate limit exceeded")
	ErrMalformed      = errors.New("github: malformed response")
	ErrNoUser         = errors.New("github: no user configured")
)

// Config holds the knobs of a Client. Zero values fall back to the defaults above.
type Config struct {
	User           string
	Token          string
	BaseURL        string
	Timeout        time.Duration
	RepoLimit      int
	TopLanguages   int
	ActivityWindow time.Duration
	ActivityLimit  int
	Workers        int
}

// Client talks to the GitHub REST API on behalf of a single user.
type Client struct {
	HTTPClient *http.Client
	// Now is the time source for activity windows and streaks.
	Now func() time.Time

	user           string
	token          string
	baseURL        string
	repoLimit      int
	topLanguages   int
	activityWindow time.Duration
	activityLimit  int
	workers        int
}

func NewClient(cfg Config) *Client {
	c := &Client{
		HTTPClient:     &http.Client{Timeout: cfg.Timeout},
		Now:            time.Now,
		user:           cfg.User,
		token:          cfg.Token,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		repoLimit:      cfg.RepoLimit,
		topLanguages:   cfg.TopLanguages,
		activityWindow: cfg.ActivityWindow,
		activityLimit:  cfg.ActivityLimit,
		workers:        cfg.Workers,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.repoLimit <= 0 {
		c.repoLimit = DefaultRepoLimit
	}
	if c.topLanguages <= 0 {
		c.topLanguages = DefaultTopLanguages
	}
	if c.activityWindow <= 0 {
		c.activityWindow = DefaultActivityWindow
	}
	if c.activityLimit <= 0 {
		c.activityLimit = DefaultActivityLimit
	}
	if c.workers <= 0 {
		c.workers = DefaultWorkers
	}
	return c
}

// User returns the GitHub login the client reports on.
func (c *Client) User() string {
	return c.user
}

type errorEnvelope struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

// getObject fetches path and decodes a JSON object into out.
func (c *Client) getObject(ctx context.Context, path string, out any) error {
	return c.get(ctx, path, '{', out)
}

// getArray fetches path and decodes a JSON array into out.
func (c *Client) getArray(ctx context.Context, path string, out any) error {
	return c.get(ctx, path, '[', out)
}

func (c *Client) get(ctx context.Context, path string, kind byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		_ = json.Unmarshal(body, &envelope)
		if isRateLimited(resp, envelope.Message) {
			return fmt.Errorf("%w: %s (reset %s)", ErrRateLimited, path, resp.Header.Get("X-RateLimit-Reset"))
		}
		return fmt.Errorf("%w: %s returned %d %s", ErrUpstreamStatus, path, resp.StatusCode, envelope.Message)
	}

	return decode(path, body, kind, out)
}

func isRateLimited(resp *http.Response, message string) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return strings.Contains(strings.ToLower(message), "rate limit")
}

// decode checks the shape of body before trusting it: the JSON kind has to match and an
// object must not be an error envelope.
func decode(path string, body []byte, kind byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != kind {
		var envelope errorEnvelope
		if json.Unmarshal(trimmed, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("%w: %s: %s", ErrMalformed, path, envelope.Message)
		}
		return fmt.Errorf("%w: %s: expected %q", ErrMalformed, path, kind)
	}
	if kind == '{' {
		var envelope errorEnvelope
		if json.Unmarshal(trimmed, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("%w: %s: %s", ErrMalformed, path, envelope.Message)
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return nil
}

func (c *Client) userPath(suffix string) string {
	return "/users/" + url.PathEscape(c.user) + suffix
}
