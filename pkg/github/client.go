// Package github provides the minimal GitHub REST client the decision
// core needs: repository file content, open pull-request listing, and
// user permission lookup. Requests go through a retrying transport.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"
	// maxResponseSize limits API response size to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024 // 10MB
	// maxErrorBodySize limits error response body reading for debugging.
	maxErrorBodySize = 1024
	// maxPerPage is the page size used for list endpoints.
	maxPerPage = 100
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("github: not found")

// APIError represents a non-2xx response from the GitHub API.
type APIError struct {
	Status     string
	Body       string
	URL        string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github API error: %s", e.Status)
}

// Client is a GitHub REST API client scoped to one installation.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	token      string
	api        string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithAPIURL points the client at a non-default API endpoint, e.g. a
// GitHub Enterprise instance or a test server.
func WithAPIURL(api string) Option {
	return func(c *Client) { c.api = strings.TrimSuffix(api, "/") }
}

// WithHTTPClient sets a custom HTTP client. Its transport is wrapped with
// retry logic if not already wrapped.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient.Transport == nil {
			httpClient.Transport = &RetryTransport{Base: http.DefaultTransport}
		} else if _, ok := httpClient.Transport.(*RetryTransport); !ok {
			httpClient.Transport = &RetryTransport{Base: httpClient.Transport}
		}
		c.httpClient = httpClient
	}
}

// NewClient creates a client authenticated with the given token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:  token,
		api:    DefaultAPIURL,
		logger: slog.Default(),
		httpClient: &http.Client{
			Transport: &RetryTransport{Base: http.DefaultTransport},
			Timeout:   2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIURL returns the API endpoint this client talks to.
func (c *Client) APIURL() string { return c.api }

// RepositoryURL returns the canonical API URL of a repository, used to
// recognize pull requests whose base lives in this installation rather
// than in a fork.
func (c *Client) RepositoryURL(owner, repo string) string {
	return fmt.Sprintf("%s/repos/%s/%s", c.api, owner, repo)
}

// Content fetches a file from the repository and returns its decoded
// bytes. A missing file yields ErrNotFound.
func (c *Client) Content(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path)
	if ref != "" {
		apiPath += "?ref=" + url.QueryEscape(ref)
	}

	var payload struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.get(ctx, apiPath, &payload); err != nil {
		return nil, err
	}
	if payload.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding %q for %s", payload.Encoding, path)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding %s content: %w", path, err)
	}
	return decoded, nil
}

// OpenPulls lists the repository's open pull requests, following
// pagination until exhausted.
func (c *Client) OpenPulls(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	var all []PullRequest
	page := 1
	for {
		path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&page=%d&per_page=%d", owner, repo, page, maxPerPage)
		var pulls []PullRequest
		if err := c.get(ctx, path, &pulls); err != nil {
			return nil, err
		}
		all = append(all, pulls...)
		if len(pulls) < maxPerPage {
			return all, nil
		}
		page++
	}
}

// UserPermission returns the permission level for a user on a repository:
// "admin", "write", "read", or "none".
func (c *Client) UserPermission(ctx context.Context, owner, repo, username string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s/permission", owner, repo, username)
	var payload struct {
		Permission string `json:"permission"`
	}
	if err := c.get(ctx, path, &payload); err != nil {
		return "", err
	}
	return payload.Permission, nil
}

// get makes a GET request to the API and decodes the JSON response into v.
func (c *Client) get(ctx context.Context, path string, v any) error {
	apiURL := c.api + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.ErrorContext(ctx, "GitHub API request failed", "url", apiURL, "error", err, "elapsed", elapsed)
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.DebugContext(ctx, "failed to close response body", "error", closeErr, "url", apiURL)
		}
	}()

	c.logger.DebugContext(ctx, "GitHub API response received",
		"status", resp.Status,
		"url", apiURL,
		"elapsed", elapsed,
		"rate_limit_remaining", resp.Header.Get("X-Ratelimit-Remaining"))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", apiURL, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr != nil {
			body = []byte("failed to read response body")
		}
		c.logger.ErrorContext(ctx, "GitHub API error",
			"status", resp.Status,
			"url", apiURL,
			"body", string(body))
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			URL:        apiURL,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
